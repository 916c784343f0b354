// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package celebamask provides a `train.Dataset` implementation for the
// CelebAMask face-segmentation dataset, to train models using
// GoMLX (http://github.com/gomlx/gomlx/).
//
// The dataset pairs aligned face photos with per-pixel semantic masks over
// NumClasses classes (background, skin, eyes, ...). It is expected to be laid
// out on disk as:
//
//	<base>/label_data/image/**/*.jpg
//	<base>/label_data/label/**/*.png   (grayscale, pixel value = class id)
//	<base>/unlabel_data/image/**/*.jpg
//
// Use NewDataset for the labeled tree (with a train/validation split) or
// NewUnlabeledDataset for the unlabeled tree. Each sample yields the image as
// a `[3, resolution, resolution]` tensor scaled to [-1, 1] and, when labeled,
// the mask one-hot encoded as `[NumClasses, resolution, resolution]` with
// values in {-1, 1}.
//
// The package does no batching, prefetching or caching of its own: wrap the
// dataset with `datasets.Parallel` and `datasets.Batch` from
// github.com/gomlx/gomlx/pkg/ml/datasets for that.
package celebamask

import (
	"image/color"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// NumClasses is the number of segmentation classes, including the
	// background (class 0).
	NumClasses = 8

	// DefaultResolution used when Dataset.WithResolution is not called.
	DefaultResolution = 256

	// TrainFraction of the labeled identifiers assigned to the training
	// split. The remainder is the validation split.
	TrainFraction = 0.8

	// Sub-directory names of the on-disk layout.
	LabelDataSubdir   = "label_data"
	UnlabelDataSubdir = "unlabel_data"
	ImageSubdir       = "image"
	LabelSubdir       = "label"

	imageExt = ".jpg"
	labelExt = ".png"
)

// ColorMap assigns each class id a color, for rendering masks. The loading
// logic itself only relies on its cardinality (NumClasses).
var ColorMap = [NumClasses]color.NRGBA{
	{0, 0, 0, 255},
	{0, 0, 205, 255},
	{132, 112, 255, 255},
	{25, 25, 112, 255},
	{187, 255, 255, 255},
	{102, 205, 170, 255},
	{227, 207, 87, 255},
	{142, 142, 56, 255},
}

// Phase selects which split of the labeled dataset a Dataset exposes.
type Phase int

const (
	// Train exposes the first TrainFraction of the identifiers.
	Train Phase = iota

	// Validation exposes the remaining identifiers.
	Validation

	// TrainValidation exposes all identifiers.
	TrainValidation
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case Train:
		return "train"
	case Validation:
		return "val"
	case TrainValidation:
		return "train-val"
	}
	return "invalid"
}

// ParsePhase converts a phase name ("train", "val" or "train-val") to a
// Phase. It returns an error for anything else.
func ParsePhase(name string) (Phase, error) {
	for _, p := range []Phase{Train, Validation, TrainValidation} {
		if name == p.String() {
			return p, nil
		}
	}
	return 0, errors.Errorf("unknown phase %q: valid values are \"train\", \"val\" and \"train-val\"", name)
}

// scanIdentifiers walks imgDir recursively and returns the identifiers of all
// images found: their path relative to imgDir, minus the ".jpg" extension,
// always slash-separated.
//
// filepath.WalkDir visits entries in lexical order, so the returned list (and
// hence the train/validation split derived from it) is reproducible across
// platforms.
func scanIdentifiers(imgDir string) ([]string, error) {
	var ids []string
	err := filepath.WalkDir(imgDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), imageExt) {
			return nil
		}
		rel, err := filepath.Rel(imgDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ids = append(ids, strings.TrimSuffix(rel, imageExt))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan images under %q", imgDir)
	}
	klog.V(1).Infof("celebamask: found %d images under %q", len(ids), imgDir)
	return ids, nil
}

// splitIdentifiers partitions ids for the given phase: the first
// floor(TrainFraction*N) identifiers are the training split, the remainder the
// validation split, in list order.
func splitIdentifiers(ids []string, phase Phase) ([]string, error) {
	border := int(float64(len(ids)) * TrainFraction)
	switch phase {
	case Train:
		return ids[:border], nil
	case Validation:
		return ids[border:], nil
	case TrainValidation:
		return ids, nil
	}
	return nil, errors.Errorf("invalid phase %d", phase)
}

// imagePath resolves an identifier to the image file under dataRoot.
func imagePath(dataRoot, id string) string {
	return filepath.Join(dataRoot, ImageSubdir, filepath.FromSlash(id)+imageExt)
}

// labelPath resolves an identifier to the mask file under dataRoot.
func labelPath(dataRoot, id string) string {
	return filepath.Join(dataRoot, LabelSubdir, filepath.FromSlash(id)+labelExt)
}
