package img

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func TestAcceptRejectsSmallImages(t *testing.T) {
	f := DefaultQualityFilter()
	if f.Accept(checkerboard(200, 200)) {
		t.Fatal("200x200 image should be rejected")
	}
	if f.Accept(checkerboard(400, 299)) {
		t.Fatal("image below the height floor should be rejected")
	}
}

func TestAcceptRejectsFlatImage(t *testing.T) {
	f := DefaultQualityFilter()
	flat := solid(400, 400, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	if s := Sharpness(flat); s != 0 {
		t.Fatalf("flat image sharpness = %f, want 0", s)
	}
	if f.Accept(flat) {
		t.Fatal("uniform image should be rejected as blurry")
	}
}

func TestAcceptKeepsSharpImage(t *testing.T) {
	f := DefaultQualityFilter()
	if !f.Accept(checkerboard(400, 400)) {
		t.Fatal("high-contrast 400x400 image should be accepted")
	}
}

func TestAcceptNearDefaultThreshold(t *testing.T) {
	f := DefaultQualityFilter()

	// 9801 isolated bumps of height a give a variance of 9801*20*a*a/160000.
	soft := bumps(400, 400, 3)
	if s := Sharpness(soft); math.Abs(s-11.026) > 0.01 {
		t.Fatalf("soft sharpness = %f, want about 11", s)
	}
	if f.Accept(soft) {
		t.Fatal("400x400 image with variance about 10 should be rejected")
	}

	crisp := bumps(400, 400, 13)
	if s := Sharpness(crisp); math.Abs(s-207.05) > 0.01 {
		t.Fatalf("crisp sharpness = %f, want about 207", s)
	}
	if !f.Accept(crisp) {
		t.Fatal("400x400 image with variance about 200 should be accepted")
	}
}

func TestSharpnessSinglePeak(t *testing.T) {
	src := solid(3, 3, color.Black)
	src.Set(1, 1, color.White)

	got := Sharpness(src)
	want := 2080800.0/9 - math.Pow(1020.0/9, 2)
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("Sharpness = %f, want %f", got, want)
	}
}

func TestAcceptUsesInclusiveThreshold(t *testing.T) {
	src := checkerboard(300, 300)
	s := Sharpness(src)

	f := QualityFilter{MinWidth: 300, MinHeight: 300, BlurThreshold: s}
	if !f.Accept(src) {
		t.Fatal("image with sharpness equal to the threshold should pass")
	}
	f.BlurThreshold = s + 1
	if f.Accept(src) {
		t.Fatal("image below the threshold should be rejected")
	}
}

func TestAcceptBytes(t *testing.T) {
	f := DefaultQualityFilter()
	if f.AcceptBytes([]byte("definitely not an image")) {
		t.Fatal("undecodable bytes should be rejected")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, checkerboard(320, 320)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if !f.AcceptBytes(buf.Bytes()) {
		t.Fatal("encoded sharp image should be accepted")
	}
}

func checkerboard(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// bumps is a mid-grey image with a single raised pixel every 4 pixels,
// kept 2 pixels clear of the border.
func bumps(w, h int, amp uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 100
	}
	for y := 2; y < h-2; y += 4 {
		for x := 2; x < w-2; x += 4 {
			img.SetGray(x, y, color.Gray{Y: 100 + amp})
		}
	}
	return img
}
