package datumo

// ToYOLO converts absolute box corners to normalized center form for an
// image of width w and height h.
func ToYOLO(x0, y0, x1, y1, w, h float64) (cx, cy, nw, nh float64) {
	cx = (x0 + x1) / 2 / w
	cy = (y0 + y1) / 2 / h
	nw = (x1 - x0) / w
	nh = (y1 - y0) / h
	return cx, cy, nw, nh
}

// FromYOLO converts normalized center form back to absolute (x, y, w, h),
// clamping the corners into [0,w]x[0,h].
func FromYOLO(cx, cy, nw, nh, w, h float64) (x, y, bw, bh float64) {
	x0 := clamp((cx-nw/2)*w, 0, w)
	y0 := clamp((cy-nh/2)*h, 0, h)
	x1 := clamp((cx+nw/2)*w, 0, w)
	y1 := clamp((cy+nh/2)*h, 0, h)
	return x0, y0, x1 - x0, y1 - y0
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
