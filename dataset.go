// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package celebamask

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/compute/dtypes"
	"github.com/pkg/errors"
)

// ImageTransform converts a decoded (and already resized) image to a tensor.
// Used to override the default normalization for unlabeled samples, see
// Dataset.WithImageTransform.
type ImageTransform func(img image.Image) (*tensors.Tensor, error)

// Dataset yields CelebAMask samples one at a time, either through the
// index-based At or through the train.Dataset interface (Yield).
//
// All configuration is fixed after construction; At is reentrant and may be
// called concurrently, e.g. from `datasets.Parallel`. Yield keeps a cursor
// protected by a mutex.
type Dataset struct {
	name     string
	dataRoot string
	labeled  bool
	phase    Phase

	ids        []string
	resolution int
	dtype      dtypes.DType
	augment    *AugmentConfig
	transform  ImageTransform

	// minLen inflates the logical length (see WithReplication).
	minLen int

	mu   sync.Mutex
	next int
}

var _ train.Dataset = &Dataset{}

// NewDataset creates a Dataset over the labeled tree
// (`<baseDir>/label_data`), exposing the split selected by phase.
//
// The train/validation split is positional: the first 80% of the scanned
// identifiers (in lexical order) are the training split, the remainder the
// validation split.
func NewDataset(baseDir string, phase Phase) (*Dataset, error) {
	if phase != Train && phase != Validation && phase != TrainValidation {
		return nil, errors.Errorf("invalid phase %d given to NewDataset", phase)
	}
	dataRoot := filepath.Join(baseDir, LabelDataSubdir)
	all, err := scanIdentifiers(filepath.Join(dataRoot, ImageSubdir))
	if err != nil {
		return nil, err
	}
	ids, err := splitIdentifiers(all, phase)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{
		name:       "celebamask-" + phase.String(),
		dataRoot:   dataRoot,
		labeled:    true,
		phase:      phase,
		ids:        ids,
		resolution: DefaultResolution,
		dtype:      dtypes.Float32,
	}
	ds.transform = ds.defaultTransform
	return ds, nil
}

// NewUnlabeledDataset creates a Dataset over the unlabeled tree
// (`<baseDir>/unlabel_data`). It has no split: all images are exposed, and
// samples carry no mask.
func NewUnlabeledDataset(baseDir string) (*Dataset, error) {
	dataRoot := filepath.Join(baseDir, UnlabelDataSubdir)
	ids, err := scanIdentifiers(filepath.Join(dataRoot, ImageSubdir))
	if err != nil {
		return nil, err
	}
	ds := &Dataset{
		name:       "celebamask-unlabeled",
		dataRoot:   dataRoot,
		labeled:    false,
		phase:      TrainValidation,
		ids:        ids,
		resolution: DefaultResolution,
		dtype:      dtypes.Float32,
	}
	ds.transform = ds.defaultTransform
	return ds, nil
}

// WithResolution sets the target square size images and masks are resized to.
// It defaults to DefaultResolution.
//
// It returns the Dataset, so configuration calls can be cascaded.
func (ds *Dataset) WithResolution(resolution int) *Dataset {
	ds.resolution = resolution
	return ds
}

// WithDType sets the dtype of the yielded tensors. Float32 (the default),
// Float64, Float16 and BFloat16 are supported.
//
// It returns the Dataset, so configuration calls can be cascaded.
func (ds *Dataset) WithDType(dtype dtypes.DType) *Dataset {
	ds.dtype = dtype
	return ds
}

// WithAugmentation enables random augmentation of labeled training samples.
// See NewAugmentConfig. Augmentation only ever applies to the labeled tree
// with phase Train or TrainValidation; elsewhere it is ignored.
//
// It returns the Dataset, so configuration calls can be cascaded.
func (ds *Dataset) WithAugmentation(config *AugmentConfig) *Dataset {
	ds.augment = config
	return ds
}

// WithReplication inflates the logical length (Len) to at least
// batchSize*numDevices, so a fixed-size batch sampling scheme never runs out
// of indices; indexes past the real sample count wrap around (modulo).
//
// It returns the Dataset, so configuration calls can be cascaded.
func (ds *Dataset) WithReplication(batchSize, numDevices int) *Dataset {
	ds.minLen = batchSize * numDevices
	return ds
}

// WithImageTransform overrides the default image normalization for unlabeled
// samples. The transform receives the already resized image. Passing nil
// restores the default. See TransformWith to compose filters with the default
// normalization.
//
// It returns the Dataset, so configuration calls can be cascaded.
func (ds *Dataset) WithImageTransform(transform ImageTransform) *Dataset {
	if transform == nil {
		transform = ds.defaultTransform
	}
	ds.transform = transform
	return ds
}

func (ds *Dataset) defaultTransform(img image.Image) (*tensors.Tensor, error) {
	return imageToTensor(ds.dtype, img)
}

// Labeled reports whether the dataset carries masks.
func (ds *Dataset) Labeled() bool { return ds.labeled }

// Resolution returns the configured target square size.
func (ds *Dataset) Resolution() int { return ds.resolution }

// NumSamples returns the real number of samples of the selected split.
func (ds *Dataset) NumSamples() int { return len(ds.ids) }

// Len returns the logical length: the real sample count, unless
// WithReplication configured a larger minimum.
func (ds *Dataset) Len() int {
	return max(ds.minLen, len(ds.ids))
}

// Identifier returns the identifier of sample idx (modulo the real count).
func (ds *Dataset) Identifier(idx int) string {
	return ds.ids[idx%len(ds.ids)]
}

// openImage decodes an arbitrary image file.
func openImage(filePath string) (image.Image, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %q", filePath)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %q", filePath)
	}
	return img, nil
}

// loadImage reads the RGB image of an identifier, resized (bilinear) to
// resolution×resolution.
func (ds *Dataset) loadImage(id string) (image.Image, error) {
	img, err := openImage(imagePath(ds.dataRoot, id))
	if err != nil {
		return nil, err
	}
	return imaging.Resize(img, ds.resolution, ds.resolution, imaging.Linear), nil
}

// loadMask reads the label image of an identifier, resized with
// nearest-neighbor so that the integer class values are preserved exactly.
func (ds *Dataset) loadMask(id string) (*image.Gray, error) {
	img, err := openImage(labelPath(ds.dataRoot, id))
	if err != nil {
		return nil, err
	}
	mask := toGray(img)
	if mask.Bounds().Dx() != ds.resolution || mask.Bounds().Dy() != ds.resolution {
		mask = toGray(imaging.Resize(mask, ds.resolution, ds.resolution, imaging.NearestNeighbor))
	}
	return mask, nil
}

// augmenting reports whether the augmentation conditions of this dataset are
// met: labeled, training phase, and augmentation configured.
func (ds *Dataset) augmenting() bool {
	return ds.labeled && ds.augment != nil &&
		(ds.phase == Train || ds.phase == TrainValidation)
}

// Sample returns the raw (decoded, resized and, if applicable, augmented)
// image and mask of sample idx, before tensor conversion. The mask is nil for
// the unlabeled tree. Useful for inspection and rendering, see RenderMask.
func (ds *Dataset) Sample(idx int) (img image.Image, mask *image.Gray, err error) {
	if len(ds.ids) == 0 {
		err = errors.Errorf("dataset %q has no samples", ds.name)
		return
	}
	if idx < 0 {
		err = errors.Errorf("negative sample index %d", idx)
		return
	}
	id := ds.ids[idx%len(ds.ids)]
	img, err = ds.loadImage(id)
	if err != nil {
		return
	}
	if !ds.labeled {
		return
	}
	mask, err = ds.loadMask(id)
	if err != nil {
		return
	}
	if ds.augmenting() {
		img, mask = ds.augment.Apply(img, mask)
	}
	return
}

// At returns the tensors of sample idx: the image shaped
// `[3, resolution, resolution]` with values in [-1, 1] and, for the labeled
// tree, the one-hot mask shaped `[NumClasses, resolution, resolution]` with
// values in {-1, 1} (nil otherwise).
//
// Indices at or beyond NumSamples wrap around (modulo), supporting the
// inflated logical length of WithReplication.
func (ds *Dataset) At(idx int) (imageT, maskT *tensors.Tensor, err error) {
	img, mask, err := ds.Sample(idx)
	if err != nil {
		return nil, nil, err
	}
	if ds.labeled {
		imageT, err = imageToTensor(ds.dtype, img)
		if err != nil {
			return nil, nil, err
		}
		maskT, err = maskToTensor(ds.dtype, mask)
		if err != nil {
			imageT.MustFinalizeAll()
			return nil, nil, err
		}
		return
	}
	imageT, err = ds.transform(img)
	return
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// Yield implements train.Dataset. It yields one sample per call, in order,
// and returns io.EOF once the logical length (Len) is exhausted.
//
// It returns `inputs = [image]` and, for the labeled tree,
// `labels = [mask]`. The spec returned is the Dataset itself.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	spec = ds
	ds.mu.Lock()
	idx := ds.next
	if idx < 0 || idx >= ds.Len() {
		ds.next = -1
		ds.mu.Unlock()
		err = io.EOF
		return
	}
	ds.next++
	ds.mu.Unlock()

	imageT, maskT, err := ds.At(idx)
	if err != nil {
		err = errors.WithMessagef(err, "failed to read sample #%d of dataset %q", idx, ds.name)
		return
	}
	inputs = []*tensors.Tensor{imageT}
	if maskT != nil {
		labels = []*tensors.Tensor{maskT}
	}
	return
}

// Reset implements train.Dataset: it restarts Yield from the beginning.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	ds.next = 0
	ds.mu.Unlock()
}
