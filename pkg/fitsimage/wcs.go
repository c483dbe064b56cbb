package fitsimage

import (
	"fmt"
	"math"
	"strings"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
)

// WCS is a celestial world coordinate system of a zenithal projection.
//
// Supported projections are SIN, TAN, ARC and STG, with celestial axes as the 1st and 2nd axes.
// Pixel coordinates are FITS ones: 1-based, (1, 1) is the center of the first pixel.
type WCS struct {
	// Projection is the projection code. (example: "SIN")
	Projection string

	// Frame is the prefix of CTYPE1. (example: "RA", "GLON")
	Frame string

	// CRVAL is the celestial coordinate of the reference point, in degrees.
	CRVAL [2]float64

	// CRPIX is the pixel coordinate of the reference point.
	CRPIX [2]float64

	// LonPole is the native longitude of the celestial pole, in degrees.
	LonPole float64

	// m maps pixel offsets to intermediate world coordinates in degrees.
	m    [2][2]float64
	minv [2][2]float64
}

// ParseWCS reads the celestial WCS from the header.
//
// The linear transformation is taken from CD_i_j if present, or CDELTi with PCi_j otherwise.
func ParseWCS(h Header) (*WCS, error) {
	ctype1, ok1 := h.String("CTYPE1")
	ctype2, ok2 := h.String("CTYPE2")
	if !ok1 || !ok2 {
		return nil, gerrors.NewPreconditionError("header has no CTYPE1/CTYPE2")
	}
	frame1, proj1 := splitCtype(ctype1)
	frame2, proj2 := splitCtype(ctype2)
	if proj1 != proj2 {
		return nil, gerrors.NewPreconditionError("projections of axes differ: %s, %s", ctype1, ctype2)
	}
	if !celestialPair(frame1, frame2) {
		return nil, gerrors.NewPreconditionError("axes 1 and 2 are not celestial: %s, %s", ctype1, ctype2)
	}
	switch proj1 {
	case "SIN", "TAN", "ARC", "STG":
	default:
		return nil, gerrors.NewPreconditionError("unsupported projection: %s", proj1)
	}

	w := &WCS{Projection: proj1, Frame: frame1}
	for i, n := range []string{"1", "2"} {
		v, ok := h.Float("CRVAL" + n)
		if !ok {
			return nil, gerrors.NewPreconditionError("header has no CRVAL%s", n)
		}
		w.CRVAL[i] = v
		p, ok := h.Float("CRPIX" + n)
		if !ok {
			return nil, gerrors.NewPreconditionError("header has no CRPIX%s", n)
		}
		w.CRPIX[i] = p
	}

	if _, ok := h.Get("CD1_1"); ok {
		for i := range 2 {
			for j := range 2 {
				v, _ := h.Float(fmt.Sprintf("CD%d_%d", i+1, j+1))
				w.m[i][j] = v
			}
		}
	} else {
		cdelt := [2]float64{}
		for i, n := range []string{"1", "2"} {
			v, ok := h.Float("CDELT" + n)
			if !ok {
				return nil, gerrors.NewPreconditionError("header has no CDELT%s nor CD matrix", n)
			}
			cdelt[i] = v
		}
		for i := range 2 {
			for j := range 2 {
				pc := 0.0
				if i == j {
					pc = 1
				}
				if v, ok := h.Float(fmt.Sprintf("PC%d_%d", i+1, j+1)); ok {
					pc = v
				}
				w.m[i][j] = cdelt[i] * pc
			}
		}
	}

	det := w.m[0][0]*w.m[1][1] - w.m[0][1]*w.m[1][0]
	if det == 0 || math.IsNaN(det) {
		return nil, gerrors.NewPreconditionError("pixel scale matrix is singular")
	}
	w.minv = [2][2]float64{
		{w.m[1][1] / det, -w.m[0][1] / det},
		{-w.m[1][0] / det, w.m[0][0] / det},
	}

	w.LonPole = 180
	if w.CRVAL[1] >= 90 {
		w.LonPole = 0
	}
	if v, ok := h.Float("LONPOLE"); ok {
		w.LonPole = v
	}
	return w, nil
}

func splitCtype(ctype string) (frame string, projection string) {
	frame, projection, _ = strings.Cut(ctype, "-")
	projection = strings.TrimLeft(projection, "-")
	return frame, projection
}

func celestialPair(lng, lat string) bool {
	switch {
	case lng == "RA" && lat == "DEC":
		return true
	case len(lng) == 4 && len(lat) == 4 && strings.HasSuffix(lng, "LON") && strings.HasSuffix(lat, "LAT") && lng[0] == lat[0]:
		return true
	default:
		return false
	}
}

// SameFrame reports whether w and o share a celestial frame.
func (w *WCS) SameFrame(o *WCS) bool {
	return w.Frame == o.Frame
}

const r2d = 180 / math.Pi

func sind(d float64) float64 { return math.Sin(d / r2d) }
func cosd(d float64) float64 { return math.Cos(d / r2d) }

// PixelToWorld converts a pixel coordinate into celestial one, in degrees.
//
// ok is false when the pixel is outside of the projection.
func (w *WCS) PixelToWorld(px, py float64) (lng, lat float64, ok bool) {
	dx, dy := px-w.CRPIX[0], py-w.CRPIX[1]
	x := w.m[0][0]*dx + w.m[0][1]*dy
	y := w.m[1][0]*dx + w.m[1][1]*dy

	r := math.Hypot(x, y)
	phi := 0.0
	if r != 0 {
		phi = math.Atan2(x, -y) * r2d
	}

	var theta float64
	switch w.Projection {
	case "TAN":
		theta = math.Atan2(r2d, r) * r2d
	case "SIN":
		c := r / r2d
		if 1 < c {
			return 0, 0, false
		}
		theta = math.Acos(c) * r2d
	case "ARC":
		theta = 90 - r
		if theta < -90 {
			return 0, 0, false
		}
	case "STG":
		theta = 90 - 2*math.Atan(r/(2*r2d))*r2d
	}

	a0, d0 := w.CRVAL[0], w.CRVAL[1]
	dphi := phi - w.LonPole
	lng = a0 + math.Atan2(
		-cosd(theta)*sind(dphi),
		sind(theta)*cosd(d0)-cosd(theta)*sind(d0)*cosd(dphi),
	)*r2d
	lat = math.Asin(clamp(sind(theta)*sind(d0)+cosd(theta)*cosd(d0)*cosd(dphi), -1, 1)) * r2d

	return normalizeLng(lng), lat, true
}

// WorldToPixel converts a celestial coordinate in degrees into pixel one.
//
// ok is false when the point is not on the projection plane
// (for example, in the hemisphere on the far side for SIN and TAN).
func (w *WCS) WorldToPixel(lng, lat float64) (px, py float64, ok bool) {
	a0, d0 := w.CRVAL[0], w.CRVAL[1]
	da := lng - a0

	phi := w.LonPole + math.Atan2(
		-cosd(lat)*sind(da),
		sind(lat)*cosd(d0)-cosd(lat)*sind(d0)*cosd(da),
	)*r2d
	theta := math.Asin(clamp(sind(lat)*sind(d0)+cosd(lat)*cosd(d0)*cosd(da), -1, 1)) * r2d

	var r float64
	switch w.Projection {
	case "TAN":
		if theta <= 0 {
			return 0, 0, false
		}
		r = r2d * cosd(theta) / sind(theta)
	case "SIN":
		if theta < 0 {
			return 0, 0, false
		}
		r = r2d * cosd(theta)
	case "ARC":
		r = 90 - theta
	case "STG":
		if theta <= -90 {
			return 0, 0, false
		}
		r = r2d * 2 * cosd(theta) / (1 + sind(theta))
	}

	x := r * sind(phi)
	y := -r * cosd(phi)

	dx := w.minv[0][0]*x + w.minv[0][1]*y
	dy := w.minv[1][0]*x + w.minv[1][1]*y
	return w.CRPIX[0] + dx, w.CRPIX[1] + dy, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func normalizeLng(lng float64) float64 {
	lng = math.Mod(lng, 360)
	if lng < 0 {
		lng += 360
	}
	return lng
}
