package domain

const (
	PlanMux  = "mux"
	PlanCopy = "copy"
)

// ItemPlan 是对一个输出文件的最小执行计划（只描述 src/dst，不做任何写入）。
type ItemPlan struct {
	Kind string // PlanMux | PlanCopy
	// Key 是条目在报告中的主键：mux 为图片的 RelPath，copy 为源文件的 RelPath。
	Key string

	SrcImage string // mux：图片；copy：被拷贝的源文件
	SrcVideo string // 仅 mux
	DstAbs   string

	// Skip 为 true 表示目标已存在且未开启 overwrite。
	Skip bool
}
