// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package celebamask

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ImageFilter is a pixel-wise image transformation, composable with
// Dataset.TransformWith for the unlabeled tree.
type ImageFilter func(img image.Image) image.Image

// AdjustGamma returns an ImageFilter applying gamma correction. gamma < 1
// darkens the image, gamma > 1 brightens it.
func AdjustGamma(gamma float64) ImageFilter {
	return func(img image.Image) image.Image {
		return imaging.AdjustGamma(img, gamma)
	}
}

// HistogramEqualization equalizes the image histogram channel by channel,
// creating a uniform distribution of grayscale values in the output.
func HistogramEqualization(img image.Image) image.Image {
	nrgba := imaging.Clone(img)
	bounds := nrgba.Bounds()
	var hist [3][256]int
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			pos := y*nrgba.Stride + x*4
			for c := 0; c < 3; c++ {
				hist[c][nrgba.Pix[pos+c]]++
			}
		}
	}
	var luts [3][256]uint8
	for c := 0; c < 3; c++ {
		luts[c] = equalizeLUT(hist[c])
	}
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			pos := y*nrgba.Stride + x*4
			for c := 0; c < 3; c++ {
				nrgba.Pix[pos+c] = luts[c][nrgba.Pix[pos+c]]
			}
		}
	}
	return nrgba
}

// equalizeLUT builds the remapping table for one channel histogram.
func equalizeLUT(hist [256]int) (lut [256]uint8) {
	total, last := 0, 0
	for v, count := range hist {
		total += count
		if count > 0 {
			last = v
		}
	}
	step := (total - hist[last]) / 255
	if step == 0 {
		// Degenerate histogram, identity mapping.
		for v := range lut {
			lut[v] = uint8(v)
		}
		return
	}
	n := step / 2
	for v := range lut {
		lut[v] = uint8(min(n/step, 255))
		n += hist[v]
	}
	return
}

// TransformWith composes the given filters, applied in order, with the
// dataset's default normalization into an ImageTransform, suitable for
// WithImageTransform:
//
//	ds.WithImageTransform(ds.TransformWith(celebamask.HistogramEqualization))
func (ds *Dataset) TransformWith(filters ...ImageFilter) ImageTransform {
	return func(img image.Image) (*tensors.Tensor, error) {
		for _, filter := range filters {
			img = filter(img)
		}
		return imageToTensor(ds.dtype, img)
	}
}
