package embed

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
)

// Pixel embeds an image as the mean-centred colours of a tiny thumbnail.
// Images with a similar colour layout land close together.
type Pixel struct {
	Size int
}

func NewPixel() *Pixel { return &Pixel{Size: 8} }

func (p *Pixel) Embed(_ context.Context, img image.Image) ([]float32, error) {
	size := p.Size
	if size <= 0 {
		size = 8
	}
	thumb := imaging.Resize(img, size, size, imaging.Box)

	vec := make([]float32, 0, size*size*3)
	var sum float64
	for i := 0; i < len(thumb.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := float32(thumb.Pix[i+c]) / 255
			vec = append(vec, v)
			sum += float64(v)
		}
	}
	if len(vec) == 0 {
		return vec, nil
	}
	mean := float32(sum / float64(len(vec)))
	for i := range vec {
		vec[i] -= mean
	}
	return vec, nil
}
