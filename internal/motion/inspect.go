package motion

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"

	"github.com/John-Robertt/mpmux/internal/jpegx"
)

// 解析器（HTML5 树）会把标签名与属性名统一转成小写，这里的 key 也都用小写。
const (
	keyMotionPhoto       = "gcamera:motionphoto"
	keyMicroVideo        = "gcamera:microvideo"
	keyMotionPhotoOffset = "gcamera:motionphotooffset"
	keyMicroVideoOffset  = "gcamera:microvideooffset"
	keyItemMime          = "item:mime"
	keyItemLength        = "item:length"
)

var elementKeys = map[string]bool{
	keyMotionPhoto:       true,
	keyMicroVideo:        true,
	keyMotionPhotoOffset: true,
	keyMicroVideoOffset:  true,
}

// SegmentInfo 是 Inspect 输出中的一个应用段。
type SegmentInfo struct {
	Marker     string `json:"marker"`
	Offset     int    `json:"offset"`
	Length     int    `json:"length"`
	Descriptor bool   `json:"descriptor"`
}

// Info 描述一个（可能已合成的）JPEG 文件里与动态照片相关的信息。
// 偏移字段为 -1 表示描述中没有该字段。
type Info struct {
	Size        int           `json:"size"`
	Segments    []SegmentInfo `json:"segments"`
	TailOffset  int           `json:"tail_offset"`
	Descriptors int           `json:"descriptors"`
	MotionPhoto bool          `json:"motion_photo"`

	VideoOffset       int64 `json:"video_offset"`
	LegacyVideoOffset int64 `json:"legacy_video_offset"`
	VideoItemLength   int64 `json:"video_item_length"`

	// OffsetInRange 表示声明的偏移落在文件内；VideoStart = Size - 偏移。
	OffsetInRange bool   `json:"offset_in_range"`
	VideoStart    int64  `json:"video_start"`
	VideoBrand    string `json:"video_brand"` // ISO-BMFF ftyp 的 major brand，找不到时为空
	// VideoMIME 是按内容嗅探出的尾部数据类型（只用于展示，不参与任何校验）。
	VideoMIME string `json:"video_mime"`
}

// descriptorFields 是从一段 XMP 文本中读出的字段。
type descriptorFields struct {
	motionPhoto  bool
	offset       int64
	legacyOffset int64
	itemLength   int64
}

func (f descriptorFields) tagged() bool {
	return f.motionPhoto || f.offset >= 0 || f.legacyOffset >= 0
}

// Inspect 读取 data 的段结构与动态照片描述。仅当 data 不是 JPEG 时返回错误。
func Inspect(data []byte) (Info, error) {
	segs, tail, err := jpegx.Scan(data)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Size:              len(data),
		Segments:          make([]SegmentInfo, 0, len(segs)),
		TailOffset:        tail,
		VideoOffset:       -1,
		LegacyVideoOffset: -1,
		VideoItemLength:   -1,
		VideoStart:        -1,
	}

	found := false
	for _, s := range segs {
		isDesc := s.HasPayloadPrefix(data, Signature)
		info.Segments = append(info.Segments, SegmentInfo{
			Marker:     s.Marker.Name(),
			Offset:     s.Start,
			Length:     s.Length,
			Descriptor: isDesc,
		})
		if !isDesc {
			continue
		}
		info.Descriptors++

		f := parseDescriptor(s.Payload(data)[len(Signature):])
		if !f.tagged() || found {
			continue
		}
		// 多个描述段时以第一个声明了动态照片的为准。
		found = true
		info.MotionPhoto = true
		info.VideoOffset = f.offset
		info.LegacyVideoOffset = f.legacyOffset
		info.VideoItemLength = f.itemLength
	}

	off := info.VideoOffset
	if off < 0 {
		off = info.LegacyVideoOffset
	}
	if off > 0 && off <= int64(len(data)) {
		info.OffsetInRange = true
		info.VideoStart = int64(len(data)) - off
		info.VideoBrand = ftypBrand(data[info.VideoStart:])
		info.VideoMIME = mimetype.Detect(data[info.VideoStart:]).String()
	}
	return info, nil
}

// IsTagged 判断图片的任一 XMP 段是否已声明动态照片。非 JPEG 输入返回 false。
func IsTagged(image []byte) bool {
	sc, err := jpegx.NewScanner(image)
	if err != nil {
		return false
	}
	for {
		s, ok := sc.Next()
		if !ok {
			return false
		}
		if !s.HasPayloadPrefix(image, Signature) {
			continue
		}
		if parseDescriptor(s.Payload(image)[len(Signature):]).tagged() {
			return true
		}
	}
}

// parseDescriptor 宽松地读取 XMP 文本：同时接受属性形式（GCamera:MicroVideoOffset="…"）
// 与元素形式（<GCamera:MicroVideoOffset>…</…>），不同厂商两种写法都有。
func parseDescriptor(text []byte) descriptorFields {
	f := descriptorFields{offset: -1, legacyOffset: -1, itemLength: -1}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(text))
	if err != nil {
		return f
	}

	set := func(key, val string) {
		val = strings.TrimSpace(val)
		switch key {
		case keyMotionPhoto, keyMicroVideo:
			if val == "1" || strings.EqualFold(val, "true") {
				f.motionPhoto = true
			}
		case keyMotionPhotoOffset:
			if n, ok := parseOffset(val); ok {
				f.offset = n
			}
		case keyMicroVideoOffset:
			if n, ok := parseOffset(val); ok {
				f.legacyOffset = n
			}
		}
	}

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			if elementKeys[n.Data] {
				set(n.Data, s.Text())
			}
			for _, a := range n.Attr {
				set(a.Key, a.Val)
			}
		}

		mime, ok := s.Attr(keyItemMime)
		if !ok || !strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "video/") {
			return
		}
		if v, ok := s.Attr(keyItemLength); ok {
			if n, ok := parseOffset(v); ok {
				f.itemLength = n
			}
		}
	})
	return f
}

func parseOffset(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ftypBrand 在视频开头找 ISO-BMFF 的 ftyp box（size(4) + "ftyp" + brand(4)）。
func ftypBrand(video []byte) string {
	if len(video) < 12 || string(video[4:8]) != "ftyp" {
		return ""
	}
	return strings.TrimRight(string(video[8:12]), " \x00")
}
