package imaging

import (
	"image"
	"math"
	"math/rand"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/clone"
	"golang.org/x/image/draw"
)

// Interference is a sinusoidal fringe pattern added over the whole image.
type Interference struct {
	Enabled   bool
	Amplitude float64 // in [0,1] of full scale
	Period    float64 // pixels
	Angle     float64 // radians
}

// PostProcess describes the degradations applied after resizing. Passes run
// in a fixed order: contrast and brightness jitter, interference, pre-blur
// noise, Gaussian blur, post-blur noise.
type PostProcess struct {
	ContrastJitter   float64 // max |change| passed to adjust.Contrast
	BrightnessJitter float64 // max |change| passed to adjust.Brightness
	Interference     Interference
	PreBlurNoise     float64 // stddev in [0,1] of full scale
	BlurRadius       float64
	PostBlurNoise    float64
}

// Apply runs the passes on img and returns a new grayscale image. rng drives
// every random choice so a fixed seed reproduces the output.
func (p PostProcess) Apply(img image.Image, rng *rand.Rand) *image.Gray {
	rgba := clone.AsRGBA(img)

	if p.ContrastJitter > 0 {
		rgba = adjust.Contrast(rgba, jitter(rng, p.ContrastJitter))
	}
	if p.BrightnessJitter > 0 {
		rgba = adjust.Brightness(rgba, jitter(rng, p.BrightnessJitter))
	}
	if p.Interference.Enabled && p.Interference.Amplitude > 0 {
		applyInterference(rgba, p.Interference)
	}
	if p.PreBlurNoise > 0 {
		applyNoise(rgba, rng, p.PreBlurNoise)
	}
	if p.BlurRadius > 0 {
		rgba = blur.Gaussian(rgba, p.BlurRadius)
	}
	if p.PostBlurNoise > 0 {
		applyNoise(rgba, rng, p.PostBlurNoise)
	}

	out := image.NewGray(rgba.Bounds())
	draw.Draw(out, out.Bounds(), rgba, rgba.Bounds().Min, draw.Src)
	return out
}

func jitter(rng *rand.Rand, amount float64) float64 {
	return (rng.Float64()*2 - 1) * amount
}

func applyInterference(img *image.RGBA, in Interference) {
	period := in.Period
	if period <= 0 {
		period = 32
	}
	cos, sin := math.Cos(in.Angle), math.Sin(in.Angle)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			phase := 2 * math.Pi * (float64(x)*cos + float64(y)*sin) / period
			offsetPixel(img, x, y, in.Amplitude*255*math.Sin(phase))
		}
	}
}

func applyNoise(img *image.RGBA, rng *rand.Rand, stddev float64) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			offsetPixel(img, x, y, rng.NormFloat64()*stddev*255)
		}
	}
}

func offsetPixel(img *image.RGBA, x, y int, delta float64) {
	i := img.PixOffset(x, y)
	for c := 0; c < 3; c++ {
		img.Pix[i+c] = clampByte(float64(img.Pix[i+c]) + delta)
	}
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.Round(v))
}

// Resize scales src to w×h with bilinear filtering. Non-positive sizes keep
// the source size.
func Resize(src *image.Gray, w, h int) *image.Gray {
	b := src.Bounds()
	if w <= 0 || h <= 0 || (w == b.Dx() && h == b.Dy()) {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
