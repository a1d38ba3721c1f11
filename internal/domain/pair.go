package domain

// MediaPair 是按文件名（去扩展名）配对得到的一组图片 + 视频。
// 扫描时临时构造，合成时消费一次，不持久化。
type MediaPair struct {
	Image MediaFile
	Video MediaFile
}

const (
	UnpairedNoVideo = "no_video" // 图片找不到同名视频
	UnpairedNoImage = "no_image" // 视频找不到同名图片
	UnpairedOther   = "other"    // 既不是图片也不是视频
)

// Unpaired 描述没有参与合成的输入文件。
type Unpaired struct {
	File   MediaFile
	Reason string
}
