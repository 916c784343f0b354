// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package celebamask

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// halvesSample builds a paired test pattern: image left half red and right
// half blue, mask left half class 1 and right half class 2.
func halvesSample(size int) (*image.NRGBA, *image.Gray) {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	mask := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x < size/2 {
				img.SetNRGBA(x, y, color.NRGBA{R: 0xFF, A: 0xFF})
				mask.Pix[y*mask.Stride+x] = 1
			} else {
				img.SetNRGBA(x, y, color.NRGBA{B: 0xFF, A: 0xFF})
				mask.Pix[y*mask.Stride+x] = 2
			}
		}
	}
	return img, mask
}

func TestFlipIsPaired(t *testing.T) {
	const size = 16
	img, mask := halvesSample(size)
	// FlipProbability=1 always flips; warp never applies.
	cfg := NewAugmentConfig().WithSeed(1)
	cfg.FlipProbability = 1
	cfg.ShiftScaleRotateProbability = 0

	gotImg, gotMask := cfg.Apply(img, mask)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			wantClass := uint8(2)
			var wantColor color.NRGBA
			if x < size/2 {
				// Mirrored: the right half (blue, class 2) comes first now.
				wantColor = color.NRGBA{B: 0xFF, A: 0xFF}
			} else {
				wantClass = 1
				wantColor = color.NRGBA{R: 0xFF, A: 0xFF}
			}
			require.Equal(t, wantClass, gotMask.GrayAt(x, y).Y, "mask at (%d, %d)", x, y)
			r, g, b, _ := gotImg.At(x, y).RGBA()
			require.Equal(t, wantColor, color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xFF},
				"image at (%d, %d)", x, y)
		}
	}

	// The original inputs are untouched.
	assert.Equal(t, uint8(1), mask.GrayAt(0, 0).Y)
}

func TestWarpIdentity(t *testing.T) {
	const size = 12
	_, mask := halvesSample(size)
	d := augmentDecision{warp: true, scale: 1}
	_, gotMask := applyDecision(testImage(0, size), mask, d)
	assert.Equal(t, mask.Pix, gotMask.Pix)
}

func TestWarpShiftIsExactOnMask(t *testing.T) {
	const size, shift = 16, 4
	_, mask := halvesSample(size)
	d := augmentDecision{warp: true, scale: 1, shiftX: shift}
	_, gotMask := applyDecision(testImage(0, size), mask, d)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			want := uint8(0) // border fill is class 0
			if x >= shift {
				want = mask.GrayAt(x-shift, y).Y
			}
			require.Equal(t, want, gotMask.GrayAt(x, y).Y, "mask at (%d, %d)", x, y)
		}
	}
}

func TestWarpNeverInventsClasses(t *testing.T) {
	const size = 24
	img := testImage(1, size)
	mask := testMask(size) // classes 0..NumClasses-1 as vertical bands
	cfg := NewAugmentConfig().WithSeed(7)

	for round := 0; round < 32; round++ {
		gotImg, gotMask := cfg.Apply(img, mask)
		require.Equal(t, image.Rect(0, 0, size, size), gotMask.Bounds())
		require.Equal(t, size, gotImg.Bounds().Dx())
		for _, class := range gotMask.Pix {
			// Nearest-neighbor resampling and class-0 border fill can only
			// produce classes already present (or 0).
			assert.Less(t, int(class), NumClasses)
		}
	}
}

func TestAugmentOnlyOnTrainingPhases(t *testing.T) {
	baseDir := makeTestTree(t, 5, 0, 8)
	cfg := NewAugmentConfig().WithSeed(3)

	for _, tc := range []struct {
		phase Phase
		want  bool
	}{
		{Train, true},
		{TrainValidation, true},
		{Validation, false},
	} {
		ds, err := NewDataset(baseDir, tc.phase)
		require.NoError(t, err)
		ds.WithResolution(8).WithAugmentation(cfg)
		assert.Equal(t, tc.want, ds.augmenting(), "phase %s", tc.phase)
	}

	// Never on the unlabeled tree, and never when not configured.
	unlabeledBase := makeTestTree(t, 0, 3, 8)
	uds, err := NewUnlabeledDataset(unlabeledBase)
	require.NoError(t, err)
	assert.False(t, uds.WithAugmentation(cfg).augmenting())
	lds, err := NewDataset(baseDir, Train)
	require.NoError(t, err)
	assert.False(t, lds.augmenting())
}
