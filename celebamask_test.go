// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package celebamask

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage builds a deterministic RGB test image for sample idx.
func testImage(idx, size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(idx * 20),
				G: uint8(x * 255 / size),
				B: uint8(y * 255 / size),
				A: 0xFF,
			})
		}
	}
	return img
}

// testMask builds a mask of vertical class bands, cycling through all classes.
func testMask(size int) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			mask.Pix[y*mask.Stride+x] = uint8(x * NumClasses / size)
		}
	}
	return mask
}

func writeJPEG(tb testing.TB, filePath string, img image.Image) {
	tb.Helper()
	must.M(os.MkdirAll(filepath.Dir(filePath), 0700))
	f := must.M1(os.Create(filePath))
	must.M(jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
	must.M(f.Close())
}

func writePNG(tb testing.TB, filePath string, img image.Image) {
	tb.Helper()
	must.M(os.MkdirAll(filepath.Dir(filePath), 0700))
	f := must.M1(os.Create(filePath))
	must.M(png.Encode(f, img))
	must.M(f.Close())
}

// makeTestTree builds a small CelebAMask layout with numLabeled labeled and
// numUnlabeled unlabeled samples of size×size pixels, and returns its base
// directory.
func makeTestTree(tb testing.TB, numLabeled, numUnlabeled, size int) string {
	baseDir := tb.TempDir()
	for i := 0; i < numLabeled; i++ {
		name := fmt.Sprintf("%05d", i)
		writeJPEG(tb, filepath.Join(baseDir, LabelDataSubdir, ImageSubdir, name+".jpg"), testImage(i, size))
		writePNG(tb, filepath.Join(baseDir, LabelDataSubdir, LabelSubdir, name+".png"), testMask(size))
	}
	for i := 0; i < numUnlabeled; i++ {
		name := fmt.Sprintf("%05d", i)
		writeJPEG(tb, filepath.Join(baseDir, UnlabelDataSubdir, ImageSubdir, name+".jpg"), testImage(i, size))
	}
	return baseDir
}

func TestSplit(t *testing.T) {
	baseDir := makeTestTree(t, 10, 0, 16)

	trainDS := must.M1(NewDataset(baseDir, Train))
	valDS := must.M1(NewDataset(baseDir, Validation))
	allDS := must.M1(NewDataset(baseDir, TrainValidation))

	require.Equal(t, 8, trainDS.NumSamples())
	require.Equal(t, 2, valDS.NumSamples())
	require.Equal(t, 10, allDS.NumSamples())

	// Split is positional: train is the first 80%, validation the rest, in
	// scan (lexical) order.
	for i := 0; i < trainDS.NumSamples(); i++ {
		assert.Equal(t, allDS.Identifier(i), trainDS.Identifier(i))
	}
	for i := 0; i < valDS.NumSamples(); i++ {
		assert.Equal(t, allDS.Identifier(8+i), valDS.Identifier(i))
	}
	assert.Equal(t, "00000", allDS.Identifier(0))
	assert.Equal(t, "00009", allDS.Identifier(9))
}

func TestScanRecursesSubdirectories(t *testing.T) {
	baseDir := t.TempDir()
	size := 8
	writeJPEG(t, filepath.Join(baseDir, LabelDataSubdir, ImageSubdir, "b", "2.jpg"), testImage(0, size))
	writeJPEG(t, filepath.Join(baseDir, LabelDataSubdir, ImageSubdir, "a", "1.jpg"), testImage(1, size))
	writePNG(t, filepath.Join(baseDir, LabelDataSubdir, LabelSubdir, "b", "2.png"), testMask(size))
	writePNG(t, filepath.Join(baseDir, LabelDataSubdir, LabelSubdir, "a", "1.png"), testMask(size))

	ds := must.M1(NewDataset(baseDir, TrainValidation)).WithResolution(size)
	require.Equal(t, 2, ds.NumSamples())

	// Identifiers are slash-separated relative paths, in lexical order.
	assert.Equal(t, "a/1", ds.Identifier(0))
	assert.Equal(t, "b/2", ds.Identifier(1))

	_, maskT, err := ds.At(1)
	require.NoError(t, err)
	require.NotNil(t, maskT)
}

func TestParsePhase(t *testing.T) {
	for _, want := range []Phase{Train, Validation, TrainValidation} {
		got, err := ParsePhase(want.String())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePhase("test")
	require.Error(t, err)
}

func TestMissingFiles(t *testing.T) {
	baseDir := makeTestTree(t, 2, 0, 8)
	// Remove one mask: the identifier still resolves, but access fails.
	must.M(os.Remove(filepath.Join(baseDir, LabelDataSubdir, LabelSubdir, "00001.png")))

	ds := must.M1(NewDataset(baseDir, TrainValidation)).WithResolution(8)
	_, _, err := ds.At(0)
	require.NoError(t, err)
	_, _, err = ds.At(1)
	require.Error(t, err)
}
