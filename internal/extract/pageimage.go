package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Geometry of the rendered page, matching the images the model was trained on.
const (
	thumbWidth  = 156
	canvasSize  = 224
	jpegQuality = 95
)

// PageImage is a 299x299x3 float32 pixel array in BGR channel order, row-major.
type PageImage struct {
	Pixels []float32
}

// At returns the value of channel c at (x, y).
func (p *PageImage) At(x, y, c int) float32 {
	return p.Pixels[(y*ImageSize+x)*ImageChannels+c]
}

// Nested reshapes the pixels into [row][col][channel] for JSON encoding.
func (p *PageImage) Nested() [][][]float32 {
	rows := make([][][]float32, ImageSize)
	for y := range rows {
		cols := make([][]float32, ImageSize)
		for x := range cols {
			off := (y*ImageSize + x) * ImageChannels
			cols[x] = p.Pixels[off : off+ImageChannels : off+ImageChannels]
		}
		rows[y] = cols
	}
	return rows
}

// PageImageFromJPEG decodes the rendered thumbnail and scales it to the model input.
func PageImageFromJPEG(jpg []byte) (*PageImage, error) {
	src, err := jpeg.Decode(bytes.NewReader(jpg))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, ImageSize, ImageSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	px := make([]float32, ImageSize*ImageSize*ImageChannels)
	for i, j := 0, 0; i < len(dst.Pix); i, j = i+4, j+3 {
		px[j] = float32(dst.Pix[i+2])
		px[j+1] = float32(dst.Pix[i+1])
		px[j+2] = float32(dst.Pix[i])
	}
	return &PageImage{Pixels: px}, nil
}

// renderThumbnail applies the page pipeline to a rendered page: flatten onto white,
// equalize, thumbnail to thumbWidth, north-gravity extent onto a white square canvas,
// JPEG encode.
func renderThumbnail(page image.Image) ([]byte, error) {
	flat := flattenOnWhite(page)
	equalize(flat)

	b := flat.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty page raster")
	}
	th := b.Dy() * thumbWidth / b.Dx()
	if th < 1 {
		th = 1
	}
	thumb := image.NewRGBA(image.Rect(0, 0, thumbWidth, th))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), flat, b, draw.Src, nil)

	canvas := image.NewRGBA(image.Rect(0, 0, canvasSize, canvasSize))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	off := image.Pt((canvasSize-thumbWidth)/2, 0)
	draw.Draw(canvas, thumb.Bounds().Add(off), thumb, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func flattenOnWhite(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// equalize spreads each colour channel's histogram over the full 0..255 range.
func equalize(img *image.RGBA) {
	n := len(img.Pix) / 4
	if n == 0 {
		return
	}
	for c := 0; c < 3; c++ {
		var hist [256]int
		for i := c; i < len(img.Pix); i += 4 {
			hist[img.Pix[i]]++
		}
		var lut [256]uint8
		cdf, cdfMin := 0, -1
		for v := 0; v < 256; v++ {
			cdf += hist[v]
			if cdfMin < 0 && cdf > 0 {
				cdfMin = cdf
			}
			if n == cdfMin {
				lut[v] = uint8(v)
				continue
			}
			lut[v] = uint8((cdf - cdfMin) * 255 / (n - cdfMin))
		}
		for i := c; i < len(img.Pix); i += 4 {
			img.Pix[i] = lut[img.Pix[i]]
		}
	}
}

// blank reports whether a rendered thumbnail is too small to carry content.
func (o Options) blank(jpg []byte) bool {
	limit := o.BlankImageMinBytes
	if limit <= 0 {
		limit = 3000
	}
	return len(jpg) <= limit
}
