package render

import (
	"bytes"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	fontOnce   sync.Once
	fontSource *text.GoTextFaceSource
	fontErr    error
)

// FontSource returns the shared Go Regular face source.
func FontSource() (*text.GoTextFaceSource, error) {
	fontOnce.Do(func() {
		fontSource, fontErr = text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	})
	return fontSource, fontErr
}

// EbitenSurface draws onto an ebiten image, normally the screen passed to Draw.
type EbitenSurface struct {
	img    *ebiten.Image
	source *text.GoTextFaceSource
	faces  map[float64]*text.GoTextFace
}

func NewEbitenSurface(img *ebiten.Image) *EbitenSurface {
	src, _ := FontSource()
	return &EbitenSurface{img: img, source: src, faces: make(map[float64]*text.GoTextFace)}
}

// Reset points the surface at a new target image, keeping the face cache.
func (s *EbitenSurface) Reset(img *ebiten.Image) {
	s.img = img
}

func (s *EbitenSurface) face(size float64) *text.GoTextFace {
	if f, ok := s.faces[size]; ok {
		return f
	}
	f := &text.GoTextFace{Source: s.source, Size: size}
	s.faces[size] = f
	return f
}

func (s *EbitenSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *EbitenSurface) Clear(c color.Color) {
	s.img.Fill(c)
}

func (s *EbitenSurface) StrokeLine(x0, y0, x1, y1, width float64, c color.Color) {
	vector.StrokeLine(s.img, float32(x0), float32(y0), float32(x1), float32(y1), float32(width), c, true)
}

func (s *EbitenSurface) FillCircle(cx, cy, r float64, c color.Color) {
	vector.DrawFilledCircle(s.img, float32(cx), float32(cy), float32(r), c, true)
}

func (s *EbitenSurface) FillRect(x, y, w, h float64, c color.Color) {
	vector.DrawFilledRect(s.img, float32(x), float32(y), float32(w), float32(h), c, false)
}

func (s *EbitenSurface) Text(str string, x, y, size float64, c color.Color) {
	if s.source == nil || size <= 0 {
		return
	}
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(c)
	text.Draw(s.img, str, s.face(size), op)
}

func (s *EbitenSurface) MeasureText(str string, size float64) (float64, float64) {
	if s.source == nil || size <= 0 {
		return 0, 0
	}
	return text.Measure(str, s.face(size), 0)
}
