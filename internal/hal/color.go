package hal

// Color is a packed RGB565 pixel value.
type Color uint16

// Common colours.
const (
	Black Color = 0x0000
	White Color = 0xFFFF
	Red   Color = 0xF800
	Green Color = 0x07E0
	Blue  Color = 0x001F
	Cyan  Color = 0x07FF
)

// Color565 packs 8-bit channels into RGB565.
func Color565(r, g, b uint8) Color {
	return Color(uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b)>>3)
}
