package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/park285/cheese-wargame/internal/domain"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	defaultCellSize = 64
	boardMargin     = 24
)

var (
	lightCell           = color.RGBA{233, 207, 163, 255}
	darkCell            = color.RGBA{187, 136, 96, 255}
	backgroundColor     = color.RGBA{28, 31, 46, 255}
	highlightFromFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	highlightToFill     = color.NRGBA{R: 148, G: 207, B: 255, A: 150}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// faction → disc fill, stroke, label colour
var factionPalette = map[string][3]string{
	"white": {"#f4f1ea", "#3b3b3b", "#1c1f2e"},
	"black": {"#2b2b2b", "#e0e0e0", "#f4f1ea"},
	"red":   {"#c0392b", "#5a1a14", "#ffffff"},
	"blue":  {"#2e6dbf", "#13325a", "#ffffff"},
}

var fallbackPalette = [3]string{"#8a8f99", "#3b3b3b", "#ffffff"}

// PNGRenderer draws a domain.Board as a PNG. Unit discs are rasterised from a generated
// SVG and cached per faction and size.
type PNGRenderer struct {
	cellSize int

	mu    sync.RWMutex
	discs map[discKey]image.Image
}

type discKey struct {
	faction string
	size    int
}

func NewPNGRenderer(cellSize int) *PNGRenderer {
	if cellSize <= 0 {
		cellSize = defaultCellSize
	}
	return &PNGRenderer{cellSize: cellSize, discs: map[discKey]image.Image{}}
}

func (r *PNGRenderer) RenderPNG(ctx context.Context, b domain.Board) ([]byte, error) {
	if b.Rows <= 0 || b.Cols <= 0 {
		return nil, fmt.Errorf("board has no cells")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	size := r.cellSize
	origin := image.Point{X: boardMargin, Y: boardMargin}
	img := image.NewRGBA(image.Rect(0, 0, b.Cols*size+boardMargin*2, b.Rows*size+boardMargin*2))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	for row := 0; row < b.Rows; row++ {
		for col := 0; col < b.Cols; col++ {
			clr := lightCell
			if (row+col)%2 == 1 {
				clr = darkCell
			}
			imagedraw.Draw(img, cellRect(row, col, size, origin), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
	if h := b.Highlight; h != nil {
		imagedraw.Draw(img, cellRect(h.From.Row, h.From.Col, size, origin), image.NewUniform(highlightFromFill), image.Point{}, imagedraw.Over)
		if h.To != h.From {
			imagedraw.Draw(img, cellRect(h.To.Row, h.To.Col, size, origin), image.NewUniform(highlightToFill), image.Point{}, imagedraw.Over)
		}
	}

	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Face: face}
	for row := 0; row < b.Rows; row++ {
		for col := 0; col < b.Cols; col++ {
			cell := b.At(row, col)
			if cell.Label == "" && cell.Faction == "" {
				continue
			}
			disc, err := r.disc(cell.Faction)
			if err != nil {
				return nil, err
			}
			rect := cellRect(row, col, size, origin)
			imagedraw.Draw(img, rect, disc, image.Point{}, imagedraw.Over)
			if cell.Label != "" {
				drawer.Src = image.NewUniform(labelColor(cell.Faction))
				drawCentered(drawer, rect, cell.Label)
			}
		}
	}

	drawer.Src = image.NewUniform(coordinateTextColor)
	ascent := face.Metrics().Ascent.Ceil()
	for row := 0; row < b.Rows; row++ {
		y := origin.Y + row*size + size/2 + ascent/2
		drawTextAt(drawer, strconv.Itoa(row), boardMargin/2, y)
	}
	for col := 0; col < b.Cols; col++ {
		x := origin.X + col*size + size/2
		drawTextAt(drawer, strconv.Itoa(col), x, origin.Y+b.Rows*size+ascent+4)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *PNGRenderer) disc(faction string) (image.Image, error) {
	key := discKey{faction: strings.ToLower(faction), size: r.cellSize}

	r.mu.RLock()
	if img, ok := r.discs[key]; ok {
		r.mu.RUnlock()
		return img, nil
	}
	r.mu.RUnlock()

	icon, err := oksvg.ReadIconStream(strings.NewReader(discSVG(key.faction)))
	if err != nil {
		return nil, fmt.Errorf("parse disc svg: %w", err)
	}
	size := r.cellSize
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	r.mu.Lock()
	r.discs[key] = img
	r.mu.Unlock()
	return img, nil
}

func discSVG(faction string) string {
	p, ok := factionPalette[faction]
	if !ok {
		p = fallbackPalette
	}
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100" width="100" height="100">`+
		`<circle cx="50" cy="50" r="38" fill="%s" stroke="%s" stroke-width="6"/></svg>`, p[0], p[1])
}

func labelColor(faction string) color.Color {
	p, ok := factionPalette[strings.ToLower(faction)]
	if !ok {
		p = fallbackPalette
	}
	return parseHex(p[2])
}

func parseHex(s string) color.RGBA {
	s = strings.TrimPrefix(s, "#")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || len(s) != 6 {
		return color.RGBA{255, 255, 255, 255}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

func cellRect(row, col, size int, origin image.Point) image.Rectangle {
	x := origin.X + col*size
	y := origin.Y + row*size
	return image.Rect(x, y, x+size, y+size)
}

func drawCentered(drawer *font.Drawer, rect image.Rectangle, text string) {
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawTextAt(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}
