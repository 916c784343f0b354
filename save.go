// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package celebamask

import (
	"image"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/compute/dtypes"
	"github.com/gomlx/compute/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/gomlx/compute/dtypes/float16"
)

// Decoding and augmenting images on every epoch is expensive. Save
// pre-generates processed samples to a compact binary stream, and
// PreGeneratedDataset reads them back much faster. Each entry holds the
// resolution×resolution sample as raw bytes: 3 bytes (RGB) per image pixel,
// followed, for labeled datasets, by 1 class byte per mask pixel.

// Save generates numEpochs worth of the dataset -- with the configured
// resizing and augmentation, so each epoch differs when augmentation is on --
// and writes the entries to w. Entries are written in arbitrary order within
// an epoch, as samples are processed in parallel.
//
// If verbose, it displays a progress bar.
func (ds *Dataset) Save(numEpochs int, verbose bool, w io.Writer) error {
	numSamples := ds.Len()
	var pBar *progressbar.ProgressBar
	if verbose {
		pBar = progressbar.NewOptions(numEpochs*numSamples,
			progressbar.OptionSetDescription("Pre-generating"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("samples"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	parallelism := runtime.NumCPU()
	for epoch := 0; epoch < numEpochs; epoch++ {
		indices := make(chan int, parallelism)
		errChan := make(chan error, parallelism)
		var wg sync.WaitGroup
		var muWrite sync.Mutex
		for ii := 0; ii < parallelism; ii++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for idx := range indices {
					img, mask, err := ds.Sample(idx)
					if err != nil {
						errChan <- err
						return
					}
					entry := ds.entryBytes(img, mask)
					muWrite.Lock()
					_, err = w.Write(entry)
					if verbose {
						_ = pBar.Add(1)
					}
					muWrite.Unlock()
					if err != nil {
						errChan <- errors.Wrapf(err, "failed writing pre-generated sample #%d", idx)
						return
					}
				}
			}()
		}

		var err error
	feedLoop:
		for idx := 0; idx < numSamples; idx++ {
			select {
			case indices <- idx:
			case err = <-errChan:
				break feedLoop
			}
		}
		close(indices)
		wg.Wait()
		if err == nil {
			select {
			case err = <-errChan:
			default:
			}
		}
		if err != nil {
			return err
		}
	}
	if verbose {
		_ = pBar.Close()
	}
	return nil
}

// entryBytes serializes one sample: interleaved RGB bytes, then the mask
// class bytes if labeled.
func (ds *Dataset) entryBytes(img image.Image, mask *image.Gray) []byte {
	res := ds.resolution
	size := 3 * res * res
	if mask != nil {
		size += res * res
	}
	entry := make([]byte, 0, size)
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			entry = append(entry, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}
	if mask != nil {
		mBounds := mask.Bounds()
		for y := mBounds.Min.Y; y < mBounds.Max.Y; y++ {
			entry = append(entry, mask.Pix[(y-mask.Rect.Min.Y)*mask.Stride:][:mBounds.Dx()]...)
		}
	}
	return entry
}

// PreGeneratedDataset implements train.Dataset by reading samples back from a
// file written with Dataset.Save. It yields the same tensors the original
// Dataset would: `[3, res, res]` images in [-1, 1] and, if labeled,
// `[NumClasses, res, res]` one-hot masks in {-1, 1}.
type PreGeneratedDataset struct {
	name       string
	filePath   string
	resolution int
	labeled    bool
	infinite   bool
	dtype      dtypes.DType

	mu     sync.Mutex
	file   *os.File
	buffer []byte
	err    error
}

var _ train.Dataset = &PreGeneratedDataset{}

// NewPreGeneratedDataset opens filePath, written by Dataset.Save with the
// given resolution and labeled-ness. If infinite, it loops over the file
// indefinitely instead of returning io.EOF.
func NewPreGeneratedDataset(name, filePath string, resolution int, labeled, infinite bool, dtype dtypes.DType) *PreGeneratedDataset {
	pds := &PreGeneratedDataset{
		name:       name,
		filePath:   filePath,
		resolution: resolution,
		labeled:    labeled,
		infinite:   infinite,
		dtype:      dtype,
	}
	pds.buffer = make([]byte, pds.entrySize())
	pds.Reset()
	return pds
}

func (pds *PreGeneratedDataset) entrySize() int {
	size := 3 * pds.resolution * pds.resolution
	if pds.labeled {
		size += pds.resolution * pds.resolution
	}
	return size
}

// Name implements train.Dataset.
func (pds *PreGeneratedDataset) Name() string { return pds.name }

// Yield implements train.Dataset, returning one sample per call.
func (pds *PreGeneratedDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	spec = pds
	pds.mu.Lock()
	defer pds.mu.Unlock()
	for {
		if pds.err != nil {
			return nil, nil, nil, pds.err
		}
		_, err = io.ReadFull(pds.file, pds.buffer)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if !pds.infinite {
				return nil, nil, nil, io.EOF
			}
			pds.lockedReset()
			if pds.err == nil && pds.fileEmpty() {
				pds.err = errors.Errorf(
					"pre-generated file %q holds not even one %d-byte entry, maybe it failed during generation?",
					pds.filePath, pds.entrySize())
			}
			continue
		}
		if err != nil {
			pds.err = errors.Wrapf(err, "failed reading pre-generated dataset from %q", pds.filePath)
			return nil, nil, nil, pds.err
		}
		break
	}

	res := pds.resolution
	imageT, err := bytesToImageTensor(pds.dtype, pds.buffer[:3*res*res], res)
	if err != nil {
		return nil, nil, nil, err
	}
	inputs = []*tensors.Tensor{imageT}
	if pds.labeled {
		var maskT *tensors.Tensor
		maskT, err = bytesToMaskTensor(pds.dtype, pds.buffer[3*res*res:], res)
		if err != nil {
			return nil, nil, nil, err
		}
		labels = []*tensors.Tensor{maskT}
	}
	return
}

func (pds *PreGeneratedDataset) fileEmpty() bool {
	info, err := pds.file.Stat()
	return err == nil && info.Size() < int64(pds.entrySize())
}

// Reset implements train.Dataset: it restarts reading from the beginning.
func (pds *PreGeneratedDataset) Reset() {
	pds.mu.Lock()
	defer pds.mu.Unlock()
	pds.lockedReset()
}

func (pds *PreGeneratedDataset) lockedReset() {
	if pds.file != nil {
		_ = pds.file.Close()
	}
	pds.file, pds.err = os.Open(pds.filePath)
	if pds.err != nil {
		pds.err = errors.Wrapf(pds.err, "failed to open pre-generated dataset file %q", pds.filePath)
	}
}

// bytesToImageTensor converts interleaved RGB bytes to a `[3, res, res]`
// tensor rescaled to [-1, 1].
func bytesToImageTensor(dtype dtypes.DType, buffer []byte, res int) (*tensors.Tensor, error) {
	switch dtype {
	case dtypes.Float32:
		return bytesToImageTensorImpl[float32](buffer, res), nil
	case dtypes.Float64:
		return bytesToImageTensorImpl[float64](buffer, res), nil
	case dtypes.Float16:
		return bytesToImageTensorImpl[float16.Float16](buffer, res), nil
	case dtypes.BFloat16:
		return bytesToImageTensorImpl[bfloat16.BFloat16](buffer, res), nil
	}
	return nil, errors.Errorf("celebamask does not support dtype %s", dtype)
}

func bytesToImageTensorImpl[T tensorValue](buffer []byte, res int) *tensors.Tensor {
	t := tensors.FromShape(shapes.Make(dtypes.FromGenericsType[T](), 3, res, res))
	conv := rescaleConverter[T]()
	t.MustMutableFlatData(func(flatAny any) {
		flat := flatAny.([]T)
		plane := res * res
		for pos := 0; pos < plane; pos++ {
			flat[pos] = conv(float32(buffer[3*pos]) / 0xFF)
			flat[plane+pos] = conv(float32(buffer[3*pos+1]) / 0xFF)
			flat[2*plane+pos] = conv(float32(buffer[3*pos+2]) / 0xFF)
		}
	})
	return t
}

// bytesToMaskTensor one-hot encodes mask class bytes into a
// `[NumClasses, res, res]` tensor in {-1, 1}.
func bytesToMaskTensor(dtype dtypes.DType, buffer []byte, res int) (*tensors.Tensor, error) {
	mask := &image.Gray{Pix: buffer, Stride: res, Rect: image.Rect(0, 0, res, res)}
	return maskToTensor(dtype, mask)
}
