package domain

// MediaKind 是按扩展名判定的文件角色。
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindOther MediaKind = "other"
)

// MediaFile 描述一次扫描得到的文件（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - Stem 是去掉扩展名后的 RelPath，配对时按字节比较（区分大小写）
type MediaFile struct {
	AbsPath string
	RelPath string
	Stem    string    // RelPath without ext, e.g. "2024/IMG_0001"
	Ext     string    // 原始扩展名（保留大小写），例如 ".MOV"
	Kind    MediaKind // 由小写扩展名决定
	Size    int64
	ModUnix int64
}
