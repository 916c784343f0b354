// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package celebamask

import (
	"image"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// AugmentConfig describes the random augmentation applied to labeled training
// samples: a horizontal flip and a combined shift/scale/rotate warp, each
// drawn independently per sample. Image and mask always receive the exact
// same draw, so they stay spatially paired; the warp resamples the image
// bilinearly but the mask with nearest-neighbor, keeping class values exact.
// Areas exposed by the warp are filled with black (image) and class 0 (mask).
type AugmentConfig struct {
	// FlipProbability of mirroring the sample horizontally.
	FlipProbability float64

	// ShiftScaleRotateProbability of applying the combined warp.
	ShiftScaleRotateProbability float64

	// ShiftLimit is the maximum translation, as a fraction of the image
	// extent, drawn uniformly from [-ShiftLimit, ShiftLimit] per axis.
	ShiftLimit float64

	// ScaleLimit bounds the scaling factor, drawn uniformly from
	// [1-ScaleLimit, 1+ScaleLimit].
	ScaleLimit float64

	// RotateLimit is the maximum rotation in degrees, drawn uniformly from
	// [-RotateLimit, RotateLimit].
	RotateLimit float64

	// mu serializes draws from rng: Dataset.At may run concurrently.
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAugmentConfig returns an AugmentConfig with the usual training defaults:
// 50% flip, 50% warp with shifts up to 10% of the extent, scaling within
// ±20% and rotations up to 15°.
func NewAugmentConfig() *AugmentConfig {
	return &AugmentConfig{
		FlipProbability:             0.5,
		ShiftScaleRotateProbability: 0.5,
		ShiftLimit:                  0.1,
		ScaleLimit:                  0.2,
		RotateLimit:                 15,
		rng:                         rand.New(rand.NewSource(time.Now().UTC().UnixNano())),
	}
}

// WithSeed makes the random draws deterministic. Mostly for tests.
//
// It returns the AugmentConfig, so configuration calls can be cascaded.
func (c *AugmentConfig) WithSeed(seed int64) *AugmentConfig {
	c.rng = rand.New(rand.NewSource(seed))
	return c
}

// augmentDecision is one concrete draw of the augmentation parameters.
type augmentDecision struct {
	flip bool

	warp           bool
	shiftX, shiftY float64 // pixels
	scale          float64
	angle          float64 // degrees
}

func (c *AugmentConfig) draw(width, height int) (d augmentDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d.flip = c.rng.Float64() < c.FlipProbability
	if c.rng.Float64() < c.ShiftScaleRotateProbability {
		d.warp = true
		d.shiftX = (2*c.rng.Float64() - 1) * c.ShiftLimit * float64(width)
		d.shiftY = (2*c.rng.Float64() - 1) * c.ShiftLimit * float64(height)
		d.scale = 1 + (2*c.rng.Float64()-1)*c.ScaleLimit
		d.angle = (2*c.rng.Float64() - 1) * c.RotateLimit
	}
	return
}

// Apply augments img and mask with a fresh random draw, applied identically
// to both. The inputs are not modified.
func (c *AugmentConfig) Apply(img image.Image, mask *image.Gray) (image.Image, *image.Gray) {
	d := c.draw(img.Bounds().Dx(), img.Bounds().Dy())
	return applyDecision(img, mask, d)
}

func applyDecision(img image.Image, mask *image.Gray, d augmentDecision) (image.Image, *image.Gray) {
	if d.flip {
		img = imaging.FlipH(img)
		mask = flipHGray(mask)
	}
	if d.warp {
		m := affineAboutCenter(img.Bounds().Dx(), img.Bounds().Dy(), d)
		img = warpImage(img, m)
		mask = warpMask(mask, m)
	}
	return img, mask
}

// affineAboutCenter builds the source-to-destination matrix that scales and
// rotates about the image center and then translates by (shiftX, shiftY).
func affineAboutCenter(width, height int, d augmentDecision) f64.Aff3 {
	cx, cy := float64(width)/2, float64(height)/2
	sin, cos := math.Sincos(d.angle * math.Pi / 180)
	a, b := d.scale*cos, -d.scale*sin
	dd, e := d.scale*sin, d.scale*cos
	return f64.Aff3{
		a, b, cx + d.shiftX - a*cx - b*cy,
		dd, e, cy + d.shiftY - dd*cx - e*cy,
	}
}

func warpImage(img image.Image, m f64.Aff3) image.Image {
	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	// Constant black border: pixels not covered by the warped source keep
	// the zero (black) background.
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xFF
	}
	xdraw.BiLinear.Transform(dst, m, img, bounds, xdraw.Over, nil)
	return dst
}

func warpMask(mask *image.Gray, m f64.Aff3) *image.Gray {
	bounds := mask.Bounds()
	// Zero value is class 0, the constant border fill.
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.NearestNeighbor.Transform(dst, m, mask, bounds, xdraw.Src, nil)
	return dst
}

// flipHGray mirrors a label image horizontally with exact byte moves.
func flipHGray(mask *image.Gray) *image.Gray {
	bounds := mask.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dst.Pix[y*dst.Stride+x] = mask.GrayAt(bounds.Min.X+width-1-x, bounds.Min.Y+y).Y
		}
	}
	return dst
}
