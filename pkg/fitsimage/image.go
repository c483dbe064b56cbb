// Package fitsimage reads and writes 2-D FITS images and computes on their pixels.
//
// Radio images usually have degenerate frequency and Stokes axes (NAXIS3 = NAXIS4 = 1).
// They are squeezed on reading: an Image is always a plane.
package fitsimage

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
)

// Image is a plane of pixels with its header.
type Image struct {
	Header Header

	Width  int
	Height int

	// Data is pixel values, row by row: pixel (x, y) is Data[y*Width+x].
	//
	// (x, y) is 0-based, that is, FITS pixel (x+1, y+1).
	Data []float64

	// degenerate is the number of axes after the 2nd, kept on writing.
	degenerate int
}

// New returns an Image of zeros, having the header.
//
// Axes after the 2nd in the header are kept as degenerate axes.
func New(header Header, width, height int) *Image {
	degenerate := 0
	if n, ok := header.Int("NAXIS"); ok && 2 < n {
		degenerate = n - 2
	}
	return &Image{
		Header:     header,
		Width:      width,
		Height:     height,
		Data:       make([]float64, width*height),
		degenerate: degenerate,
	}
}

// At returns the value of pixel (x, y), 0-based.
func (img *Image) At(x, y int) float64 {
	return img.Data[y*img.Width+x]
}

func (img *Image) Set(x, y int, v float64) {
	img.Data[y*img.Width+x] = v
}

// IsFITS reports whether the path has an extension of FITS files.
func IsFITS(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		return true
	default:
		return false
	}
}

// Read reads the primary image of the FITS file.
//
// # Returns
//
// - *Image: the first plane of the primary image.
//
// - error: it wraps ErrPrecondition when path is not a FITS image.
func Read(path string) (*Image, error) {
	if !IsFITS(path) {
		return nil, gerrors.NewPreconditionError("%s may not be a FITS image", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// ReadHeader reads the header of the primary HDU.
func ReadHeader(path string) (Header, error) {
	if !IsFITS(path) {
		return Header{}, gerrors.NewPreconditionError("%s may not be a FITS image", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	ff, err := fitsio.Open(f)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	defer ff.Close()

	return headerOf(ff.HDU(0).Header()), nil
}

func Decode(r io.Reader) (*Image, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdu, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, gerrors.NewPreconditionError("primary HDU is not an image")
	}

	hdr := hdu.Header()
	axes := hdr.Axes()
	if len(axes) < 2 {
		return nil, gerrors.NewPreconditionError("image should have 2 or more axes, but %d", len(axes))
	}
	width, height := axes[0], axes[1]

	header := headerOf(hdr)
	scale, zero := 1.0, 0.0
	if v, ok := header.Float("BSCALE"); ok {
		scale = v
	}
	if v, ok := header.Float("BZERO"); ok {
		zero = v
	}

	var blank *int64
	if v, ok := header.Int("BLANK"); ok {
		b := int64(v)
		blank = &b
	}

	data, err := readPlane(hdu, hdr.Bitpix(), width*height, scale, zero, blank)
	if err != nil {
		return nil, err
	}

	return &Image{
		Header:     header,
		Width:      width,
		Height:     height,
		Data:       data,
		degenerate: len(axes) - 2,
	}, nil
}

// readPlane reads n pixels as physical values.
//
// For integer images, raw values equal to blank (if not nil) are NaN.
func readPlane(hdu fitsio.Image, bitpix int, n int, scale, zero float64, blank *int64) ([]float64, error) {
	total := 1
	for _, a := range hdu.Header().Axes() {
		total *= a
	}

	switch bitpix {
	case 8:
		return readScaled[uint8](hdu, total, n, scale, zero, blank)
	case 16:
		return readScaled[int16](hdu, total, n, scale, zero, blank)
	case 32:
		return readScaled[int32](hdu, total, n, scale, zero, blank)
	case 64:
		return readScaled[int64](hdu, total, n, scale, zero, blank)
	case -32:
		return readScaled[float32](hdu, total, n, 1, 0, nil)
	case -64:
		return readScaled[float64](hdu, total, n, 1, 0, nil)
	default:
		return nil, gerrors.NewPreconditionError("unsupported BITPIX: %d", bitpix)
	}
}

// readScaled reads all of total raw values, and scales the first n of them.
//
// fitsio sets the length of the destination, so it is allocated in advance.
func readScaled[T uint8 | int16 | int32 | int64 | float32 | float64](
	hdu fitsio.Image, total, n int, scale, zero float64, blank *int64,
) ([]float64, error) {
	raw := make([]T, total)
	if err := hdu.Read(&raw); err != nil {
		return nil, err
	}
	return scaled(raw, n, scale, zero, blank)
}

func scaled[T uint8 | int16 | int32 | int64 | float32 | float64](raw []T, n int, scale, zero float64, blank *int64) ([]float64, error) {
	if len(raw) < n {
		return nil, fmt.Errorf("image is truncated: %d pixels, want %d", len(raw), n)
	}
	out := make([]float64, n)
	for i := range out {
		if blank != nil && int64(raw[i]) == *blank {
			out[i] = math.NaN()
			continue
		}
		out[i] = float64(raw[i])*scale + zero
	}
	return out, nil
}

// Write writes img as a single-precision FITS file, overwriting existing one.
func Write(path string, img *Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func Encode(w io.Writer, img *Image) error {
	if len(img.Data) != img.Width*img.Height {
		return fmt.Errorf("image has %d pixels, but %dx%d", len(img.Data), img.Width, img.Height)
	}

	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer f.Close()

	axes := []int{img.Width, img.Height}
	for range img.degenerate {
		axes = append(axes, 1)
	}

	hdu := fitsio.NewImage(-32, axes)
	defer hdu.Close()

	if err := hdu.Header().Append(img.Header.userCards()...); err != nil {
		return err
	}

	data := make([]float32, len(img.Data))
	for i, v := range img.Data {
		data[i] = float32(v)
	}
	if err := hdu.Write(&data); err != nil {
		return err
	}
	return f.Write(hdu)
}
