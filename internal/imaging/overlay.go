package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/fitset/internal/annotation"
)

// Palette returns one colour per category, evenly spaced around the hue
// wheel in class-id order.
func Palette() map[annotation.Category]color.RGBA {
	cats := annotation.Categories()
	out := make(map[annotation.Category]color.RGBA, len(cats))
	for i, cat := range cats {
		c := colorful.Hsv(float64(i)*360/float64(len(cats)), 0.85, 0.95)
		r, g, b := c.RGB255()
		out[cat] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

// DrawAnnotations returns a copy of img with every annotation outlined in its
// category colour and tagged with its class id. Boxes are clipped to the
// image. A nil palette means Palette().
func DrawAnnotations(img image.Image, anns []annotation.Annotation, palette map[annotation.Category]color.RGBA, thickness int) *image.RGBA {
	if thickness < 1 {
		thickness = 1
	}

	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	if palette == nil {
		palette = Palette()
	}
	labelColor := color.RGBA{255, 255, 255, 255}

	for _, a := range anns {
		c, ok := palette[a.Category]
		if !ok {
			continue
		}
		rect := a.Box.Rect().Add(bounds.Min).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		drawRect(result, rect, thickness, c)
		drawLabel(result, rect.Min.X+thickness+1, rect.Min.Y+thickness+1, strconv.Itoa(a.Category.ClassID()), labelColor, c)
	}

	return result
}

// SavePreview writes img to path as PNG.
func SavePreview(img image.Image, path string) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return nil
}

func drawRect(img *image.RGBA, r image.Rectangle, thickness int, c color.RGBA) {
	for i := 0; i < thickness; i++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			setClipped(img, x, r.Min.Y+i, c)
			setClipped(img, x, r.Max.Y-1-i, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			setClipped(img, r.Min.X+i, y, c)
			setClipped(img, r.Max.X-1-i, y, c)
		}
	}
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// ParsePaletteOverride replaces palette entries with hex colours keyed by
// category label. Unknown labels and bad colours are errors.
func ParsePaletteOverride(palette map[annotation.Category]color.RGBA, overrides map[string]string) error {
	for label, hex := range overrides {
		cat, ok := annotation.ParseCategory(label)
		if !ok {
			return fmt.Errorf("unknown category %q", label)
		}
		c, err := parseHexColor(hex)
		if err != nil {
			return fmt.Errorf("colour for %q: %w", label, err)
		}
		palette[cat] = c
	}
	return nil
}

// drawLabel draws text with a 3x5 pixel font on a filled background.
// Only digits and commas have glyphs; other runes leave a gap.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		',': {"000", "000", "000", "010", "010"},
	}

	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			setClipped(img, x+dx, y+dy, bg)
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					setClipped(img, cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}
