package render

import "math"

const (
	MinScale = 0.5
	MaxScale = 5
)

// ViewTransform maps world coordinates to screen: screen = world*Scale + Translate.
type ViewTransform struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
}

func Identity() ViewTransform {
	return ViewTransform{Scale: 1}
}

// Normalize clamps Scale to [MinScale, MaxScale] and replaces unusable values,
// so Invert never divides by zero.
func (vt ViewTransform) Normalize() ViewTransform {
	if vt.Scale == 0 || math.IsNaN(vt.Scale) || math.IsInf(vt.Scale, 0) {
		vt.Scale = 1
	}
	vt.Scale = math.Max(MinScale, math.Min(MaxScale, vt.Scale))
	if math.IsNaN(vt.TranslateX) || math.IsInf(vt.TranslateX, 0) {
		vt.TranslateX = 0
	}
	if math.IsNaN(vt.TranslateY) || math.IsInf(vt.TranslateY, 0) {
		vt.TranslateY = 0
	}
	return vt
}

func (vt ViewTransform) Apply(x, y float64) (float64, float64) {
	vt = vt.Normalize()
	return x*vt.Scale + vt.TranslateX, y*vt.Scale + vt.TranslateY
}

// Invert maps a screen position back into world coordinates.
func (vt ViewTransform) Invert(sx, sy float64) (float64, float64) {
	vt = vt.Normalize()
	return (sx - vt.TranslateX) / vt.Scale, (sy - vt.TranslateY) / vt.Scale
}

// ZoomAt multiplies the scale by factor, keeping the world point under (sx, sy) fixed.
func (vt ViewTransform) ZoomAt(factor, sx, sy float64) ViewTransform {
	vt = vt.Normalize()
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return vt
	}
	wx, wy := vt.Invert(sx, sy)
	next := vt
	next.Scale = vt.Scale * factor
	next = next.Normalize()
	next.TranslateX = sx - wx*next.Scale
	next.TranslateY = sy - wy*next.Scale
	return next
}

// Wheel zooms out by 10% for a positive delta (scrolling down) and in by 10% otherwise.
func (vt ViewTransform) Wheel(deltaY, sx, sy float64) ViewTransform {
	if deltaY == 0 {
		return vt.Normalize()
	}
	factor := 1.1
	if deltaY > 0 {
		factor = 0.9
	}
	return vt.ZoomAt(factor, sx, sy)
}

// Pan moves the view by a screen-space delta.
func (vt ViewTransform) Pan(dx, dy float64) ViewTransform {
	vt = vt.Normalize()
	vt.TranslateX += dx
	vt.TranslateY += dy
	return vt.Normalize()
}

// Fit returns a transform that shows the world rectangle centred in a w x h screen.
func Fit(minX, minY, maxX, maxY float64, w, h int) ViewTransform {
	bw, bh := maxX-minX, maxY-minY
	if bw <= 0 || bh <= 0 || w <= 0 || h <= 0 {
		return Identity()
	}
	vt := ViewTransform{Scale: math.Min(float64(w)/bw, float64(h)/bh) * 0.9}.Normalize()
	vt.TranslateX = float64(w)/2 - (minX+bw/2)*vt.Scale
	vt.TranslateY = float64(h)/2 - (minY+bh/2)*vt.Scale
	return vt
}
