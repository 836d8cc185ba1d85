// Package plot renders building centroids as a PNG scatter plot.
package plot

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/openbuildings-cli/internal/model"
)

// Options controls the rendered image.
type Options struct {
	// Size is the width and height of the square canvas in pixels.
	Size int
	// Margin is the blank border in pixels.
	Margin int
	// Alpha is the dot opacity in [0, 1].
	Alpha float64
	// DotRadius is the dot radius in pixels; 0 draws single pixels.
	DotRadius int
}

// DefaultOptions mirrors a 10x10 inch figure at 100 dpi with 0.25 alpha dots.
func DefaultOptions() Options {
	return Options{Size: 1000, Margin: 20, Alpha: 0.25, DotRadius: 1}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Size <= 0 {
		o.Size = d.Size
	}
	if o.Margin < 0 || o.Margin*2 >= o.Size {
		o.Margin = d.Margin
		if o.Margin*2 >= o.Size {
			o.Margin = 0
		}
	}
	if o.Alpha <= 0 || o.Alpha > 1 {
		o.Alpha = d.Alpha
	}
	if o.DotRadius < 0 {
		o.DotRadius = 0
	}
	return o
}

// Scatter draws each record's (longitude, latitude) as a black dot on a white
// canvas. Both axes share one scale so shapes are not distorted. Records with
// non-finite coordinates are ignored.
func Scatter(records []model.Building, opts Options) *image.RGBA {
	opts = opts.withDefaults()
	img := image.NewRGBA(image.Rect(0, 0, opts.Size, opts.Size))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	n := 0
	for _, b := range records {
		if !b.HasFiniteCoords() {
			continue
		}
		n++
		minX, maxX = math.Min(minX, b.Longitude), math.Max(maxX, b.Longitude)
		minY, maxY = math.Min(minY, b.Latitude), math.Max(maxY, b.Latitude)
	}
	if n == 0 {
		return img
	}

	span := math.Max(maxX-minX, maxY-minY)
	inner := float64(opts.Size - 2*opts.Margin - 1)
	scale := 0.0
	if span > 0 {
		scale = inner / span
	}
	// Center the data along the shorter axis.
	offX := float64(opts.Margin) + (inner-(maxX-minX)*scale)/2
	offY := float64(opts.Margin) + (inner-(maxY-minY)*scale)/2

	dot := image.NewUniform(color.NRGBA{A: uint8(math.Round(opts.Alpha * 255))})
	r := opts.DotRadius
	for _, b := range records {
		if !b.HasFiniteCoords() {
			continue
		}
		px := int(math.Round(offX + (b.Longitude-minX)*scale))
		// Image rows grow downward; latitude grows upward.
		py := opts.Size - 1 - int(math.Round(offY+(b.Latitude-minY)*scale))
		rect := image.Rect(px-r, py-r, px+r+1, py+r+1).Intersect(img.Bounds())
		draw.Draw(img, rect, dot, image.Point{}, draw.Over)
	}
	return img
}

// WritePNG renders records and writes the PNG to path, creating parent
// directories as needed.
func WritePNG(path string, records []model.Building, opts Options) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "plot: create output dir")
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "plot: create file")
	}
	if err := png.Encode(f, Scatter(records, opts)); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "plot: encode png")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "plot: close file")
	}
	return nil
}
