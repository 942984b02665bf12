package scan

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrNoCode means an image was decoded but carried no readable QR code.
var ErrNoCode = errors.New("no QR code found")

// Decoder finds a QR payload in an image.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// QRDecoder decodes QR codes with gozxing.
type QRDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewQRDecoder returns a decoder that trades speed for accuracy.
func NewQRDecoder() *QRDecoder {
	return &QRDecoder{hints: map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}}
}

func (d *QRDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	if res.GetText() == "" {
		return "", ErrNoCode
	}
	return res.GetText(), nil
}

// Raster is an off-screen buffer frames are drawn into before decoding.
// Frames larger than the bound are scaled down, keeping their aspect ratio.
// The buffer is reused while the frame size stays the same.
type Raster struct {
	maxW, maxH int
	buf        *image.RGBA
}

// NewRaster returns a raster bounded to maxW x maxH.
func NewRaster(maxW, maxH int) *Raster {
	return &Raster{maxW: maxW, maxH: maxH}
}

// Draw copies src into the buffer and returns it.
func (r *Raster) Draw(src image.Image) image.Image {
	sb := src.Bounds()
	w, h := fit(sb.Dx(), sb.Dy(), r.maxW, r.maxH)
	if r.buf == nil || r.buf.Bounds().Dx() != w || r.buf.Bounds().Dy() != h {
		r.buf = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(r.buf, r.buf.Bounds(), src, sb.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(r.buf, r.buf.Bounds(), src, sb, draw.Src, nil)
	}
	return r.buf
}

func fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
