// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package celebamask

import (
	"image"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/compute/dtypes"
	"github.com/gomlx/compute/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/gomlx/compute/dtypes/float16"
)

// This file converts images and label masks to channels-first tensors scaled
// to [-1, 1]. It is the moral equivalent of timage.ToTensor from
// github.com/gomlx/gomlx/pkg/core/tensors/images, except that package
// produces channels-last tensors in [0, maxValue].

type tensorValue interface {
	float32 | float64 | float16.Float16 | bfloat16.BFloat16
}

// rescaleConverter returns a function mapping a channel value in [0, 1] to T,
// rescaled to [-1, 1] via (v-0.5)/0.5.
func rescaleConverter[T tensorValue]() func(v float32) T {
	switch dtypes.FromGenericsType[T]() {
	case dtypes.Float16:
		return func(v float32) T { return T(float16.FromFloat32(2*v - 1)) }
	case dtypes.BFloat16:
		return func(v float32) T { return T(bfloat16.FromFloat32(2*v - 1)) }
	default:
		return func(v float32) T { return T(2*v - 1) }
	}
}

// imageToTensor converts an RGB image to a `[3, height, width]` tensor of the
// given dtype: each 8-bit channel is first scaled to [0, 1] and then
// normalized per channel with mean=0.5, std=0.5, yielding [-1, 1].
func imageToTensor(dtype dtypes.DType, img image.Image) (*tensors.Tensor, error) {
	switch dtype {
	case dtypes.Float32:
		return imageTensorImpl[float32](img), nil
	case dtypes.Float64:
		return imageTensorImpl[float64](img), nil
	case dtypes.Float16:
		return imageTensorImpl[float16.Float16](img), nil
	case dtypes.BFloat16:
		return imageTensorImpl[bfloat16.BFloat16](img), nil
	}
	return nil, errors.Errorf("celebamask does not support dtype %s", dtype)
}

func imageTensorImpl[T tensorValue](img image.Image) *tensors.Tensor {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	t := tensors.FromShape(shapes.Make(dtypes.FromGenericsType[T](), 3, height, width))
	conv := rescaleConverter[T]()
	t.MustMutableFlatData(func(flatAny any) {
		flat := flatAny.([]T)
		plane := width * height
		pos := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				// color.RGBA() returns 16 bits values packaged in uint32.
				r, g, b, _ := img.At(x, y).RGBA()
				flat[pos] = conv(float32(r) / 0xFFFF)
				flat[plane+pos] = conv(float32(g) / 0xFFFF)
				flat[2*plane+pos] = conv(float32(b) / 0xFFFF)
				pos++
			}
		}
	})
	return t
}

// maskToTensor one-hot encodes a label image into a
// `[NumClasses, height, width]` tensor: channel i is 1.0 where the label
// equals i and 0.0 elsewhere, then the whole tensor is rescaled with
// (v-0.5)/0.5, so values end up in {-1, 1}.
//
// Label values outside [0, NumClasses) set no channel at all; they are passed
// through silently rather than rejected, since the dataset only defines
// NumClasses classes by construction.
func maskToTensor(dtype dtypes.DType, mask *image.Gray) (*tensors.Tensor, error) {
	switch dtype {
	case dtypes.Float32:
		return maskTensorImpl[float32](mask), nil
	case dtypes.Float64:
		return maskTensorImpl[float64](mask), nil
	case dtypes.Float16:
		return maskTensorImpl[float16.Float16](mask), nil
	case dtypes.BFloat16:
		return maskTensorImpl[bfloat16.BFloat16](mask), nil
	}
	return nil, errors.Errorf("celebamask does not support dtype %s", dtype)
}

func maskTensorImpl[T tensorValue](mask *image.Gray) *tensors.Tensor {
	bounds := mask.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	t := tensors.FromShape(shapes.Make(dtypes.FromGenericsType[T](), NumClasses, height, width))
	conv := rescaleConverter[T]()
	cold, hot := conv(0), conv(1)
	t.MustMutableFlatData(func(flatAny any) {
		flat := flatAny.([]T)
		for i := range flat {
			flat[i] = cold
		}
		plane := width * height
		pos := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				if class := mask.GrayAt(x, y).Y; int(class) < NumClasses {
					flat[int(class)*plane+pos] = hot
				}
				pos++
			}
		}
	})
	return t
}

// toGray converts an image holding class ids to *image.Gray. Grayscale
// sources pass through; for anything else the red channel is taken, which is
// exact for the gray-as-RGBA images produced by the imaging package.
func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				gray.Pix[y*gray.Stride+x] = nrgba.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y).R
			}
		}
		return gray
	}
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray.Pix[y*gray.Stride+x] = uint8(r >> 8)
		}
	}
	return gray
}

// RenderMask converts a label image to a colored image using ColorMap, for
// visualization. Out-of-range classes render as class 0.
func RenderMask(mask *image.Gray) *image.NRGBA {
	bounds := mask.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			class := mask.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y
			if int(class) >= NumClasses {
				class = 0
			}
			out.SetNRGBA(x, y, ColorMap[class])
		}
	}
	return out
}
