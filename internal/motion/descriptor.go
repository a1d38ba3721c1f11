package motion

import "fmt"

const (
	// Namespace 是 XMP APP1 段的标识字符串（payload 以它加一个 NUL 开头）。
	Namespace = "http://ns.adobe.com/xap/1.0/"

	// ImageMime / VideoMime 是写进 Container:Directory 的 MIME 类型。
	ImageMime = "image/jpeg"
	VideoMime = "video/mp4"
)

// Signature 是描述段 payload 的前缀：Namespace + NUL（共 29 字节）。
// 用它区分 XMP 段与同为 APP1 的 EXIF 段。
var Signature = []byte(Namespace + "\x00")

// descriptorTemplate 唯一的可变量是 %[1]d（视频偏移），分别写入：
// - GCamera:MotionPhotoOffset（新格式）
// - GCamera:MicroVideoOffset（旧格式，老版本相册只认它）
// - 视频条目的 Item:Length
const descriptorTemplate = `<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="mpmux">
  <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
    <rdf:Description rdf:about=""
        xmlns:GCamera="http://ns.google.com/photos/1.0/camera/"
        xmlns:Container="http://ns.google.com/photos/1.0/container/"
        xmlns:Item="http://ns.google.com/photos/1.0/container/item/"
      GCamera:MotionPhoto="1"
      GCamera:MotionPhotoVersion="1"
      GCamera:MotionPhotoPresentationTimestampUs="-1"
      GCamera:MotionPhotoOffset="%[1]d"
      GCamera:MicroVideo="1"
      GCamera:MicroVideoVersion="1"
      GCamera:MicroVideoPresentationTimestampUs="-1"
      GCamera:MicroVideoOffset="%[1]d">
      <Container:Directory>
        <rdf:Seq>
          <rdf:li rdf:parseType="Resource">
            <Container:Item
              Item:Mime="` + ImageMime + `"
              Item:Semantic="Primary"/>
          </rdf:li>
          <rdf:li rdf:parseType="Resource">
            <Container:Item
              Item:Mime="` + VideoMime + `"
              Item:Semantic="MotionPhoto"
              Item:Length="%[1]d"/>
          </rdf:li>
        </rdf:Seq>
      </Container:Directory>
    </rdf:Description>
  </rdf:RDF>
</x:xmpmeta>
`

// BuildDescriptor 生成动态照片的 XMP 描述文本。
//
// videoOffset 是从文件末尾往前数、视频开始处的字节数（即视频长度）。
// 相同输入总是得到相同输出。
func BuildDescriptor(videoOffset int64) string {
	return fmt.Sprintf(descriptorTemplate, videoOffset)
}

// descriptorPayload 返回完整的段 payload：Signature + 描述文本。
func descriptorPayload(videoOffset int64) []byte {
	text := BuildDescriptor(videoOffset)
	p := make([]byte, 0, len(Signature)+len(text))
	p = append(p, Signature...)
	return append(p, text...)
}
