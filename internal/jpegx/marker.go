package jpegx

import "fmt"

// MarkerPrefix 是每个 marker 的首字节。
const MarkerPrefix = 0xFF

const (
	SOF0  Marker = 0xC0 // SOFn = SOF0+n，n 不含 4/8/12
	DHT   Marker = 0xC4
	DAC   Marker = 0xCC
	RST0  Marker = 0xD0 // RSTn = RST0+n，n = 0-7
	SOI   Marker = 0xD8
	EOI   Marker = 0xD9
	SOS   Marker = 0xDA
	DQT   Marker = 0xDB
	DRI   Marker = 0xDD
	APP0  Marker = 0xE0 // APPn = APP0+n，n = 0-15
	APP1  Marker = 0xE1
	APP2  Marker = 0xE2
	APP15 Marker = 0xEF
	COM   Marker = 0xFE
)

// Marker 是 2 字节 marker 的第二个字节（第一个字节固定为 0xFF）。
type Marker byte

var markerNames [256]string

func init() {
	markerNames[DHT] = "DHT"
	markerNames[DAC] = "DAC"
	markerNames[SOI] = "SOI"
	markerNames[EOI] = "EOI"
	markerNames[SOS] = "SOS"
	markerNames[DQT] = "DQT"
	markerNames[DRI] = "DRI"
	markerNames[COM] = "COM"
	for m := SOF0; m <= SOF0+0xF; m++ {
		if m == SOF0+4 || m == SOF0+8 || m == SOF0+12 {
			continue
		}
		markerNames[m] = fmt.Sprintf("SOF%d", m-SOF0)
	}
	for m := RST0; m <= RST0+7; m++ {
		markerNames[m] = fmt.Sprintf("RST%d", m-RST0)
	}
	for m := APP0; m <= APP15; m++ {
		markerNames[m] = fmt.Sprintf("APP%d", m-APP0)
	}
}

// Name 返回 marker 的常用名；未知值返回 "0xNN"。
func (m Marker) Name() string {
	if n := markerNames[m]; n != "" {
		return n
	}
	return fmt.Sprintf("0x%02X", byte(m))
}

// IsApp 判断是否为 APP0..APP15（应用段：EXIF/XMP/ICC 等元数据都放在这里）。
func (m Marker) IsApp() bool {
	return m >= APP0 && m <= APP15
}

func (m Marker) String() string { return m.Name() }
