// internal/img/quality.go
package img

import (
	"image"

	"github.com/disintegration/imaging"
)

// QualityFilter rejects images that are too small or too blurry to keep.
type QualityFilter struct {
	MinWidth      int
	MinHeight     int
	BlurThreshold float64
}

func DefaultQualityFilter() QualityFilter {
	return QualityFilter{MinWidth: 300, MinHeight: 300, BlurThreshold: 50}
}

// Accept reports whether src meets the size floor and its sharpness is at
// least BlurThreshold.
func (f QualityFilter) Accept(src image.Image) bool {
	if src == nil {
		return false
	}
	b := src.Bounds()
	if b.Dx() < f.MinWidth || b.Dy() < f.MinHeight {
		return false
	}
	return Sharpness(src) >= f.BlurThreshold
}

// AcceptBytes decodes b and applies Accept. Undecodable input is rejected.
func (f QualityFilter) AcceptBytes(b []byte) bool {
	src, err := DecodeBytes(b)
	if err != nil {
		return false
	}
	return f.Accept(src)
}

// Sharpness returns the population variance of the 4-neighbour Laplacian
// response over the 8-bit luma of src. Borders reflect without repeating the
// edge pixel.
func Sharpness(src image.Image) float64 {
	gray, w, h := luma(src)
	if w == 0 || h == 0 {
		return 0
	}

	n := float64(w * h)
	var sum, sumSq float64
	for y := 0; y < h; y++ {
		up := reflect101(y-1, h) * w
		row := y * w
		down := reflect101(y+1, h) * w
		for x := 0; x < w; x++ {
			left := reflect101(x-1, w)
			right := reflect101(x+1, w)
			v := float64(gray[up+x]) + float64(gray[down+x]) +
				float64(gray[row+left]) + float64(gray[row+right]) -
				4*float64(gray[row+x])
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		return 0
	}
	return variance
}

// luma converts src to 8-bit BT.601 luma using the fixed-point weights
// 4899/9617/1868 over 2^14.
func luma(src image.Image) ([]uint8, int, int) {
	nrgba := imaging.Clone(src)
	b := nrgba.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		i := y * nrgba.Stride
		for x := 0; x < w; x++ {
			r := uint32(nrgba.Pix[i])
			g := uint32(nrgba.Pix[i+1])
			bl := uint32(nrgba.Pix[i+2])
			out[y*w+x] = uint8((r*4899 + g*9617 + bl*1868 + 1<<13) >> 14)
			i += 4
		}
	}
	return out, w, h
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - i - 2
	}
	return i
}
