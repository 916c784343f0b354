// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package celebamask

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/compute/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndPreGenerated(t *testing.T) {
	const size = 8
	baseDir := makeTestTree(t, 4, 0, size)
	ds := must.M1(NewDataset(baseDir, TrainValidation)).WithResolution(size)

	var buf bytes.Buffer
	require.NoError(t, ds.Save(1, false, &buf))
	entrySize := size*size*3 + size*size
	require.Equal(t, ds.Len()*entrySize, buf.Len())

	filePath := filepath.Join(t.TempDir(), "pregen.bin")
	require.NoError(t, os.WriteFile(filePath, buf.Bytes(), 0600))

	// Without augmentation the entries must match the live dataset, though
	// Save writes them in arbitrary order.
	var wantImages, wantMasks []*tensors.Tensor
	for idx := 0; idx < ds.Len(); idx++ {
		imageT, maskT, err := ds.At(idx)
		require.NoError(t, err)
		wantImages = append(wantImages, imageT)
		wantMasks = append(wantMasks, maskT)
	}

	pds := NewPreGeneratedDataset("pregen", filePath, size, true, false, dtypes.Float32)
	matched := 0
	for {
		_, inputs, labels, err := pds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Len(t, inputs, 1)
		require.Len(t, labels, 1)
		for i := range wantImages {
			if wantImages[i].Equal(inputs[0]) {
				assert.True(t, wantMasks[i].Equal(labels[0]), "mask does not match its image")
				matched++
				break
			}
		}
	}
	assert.Equal(t, ds.Len(), matched)
}

func TestPreGeneratedInfinite(t *testing.T) {
	const size = 4
	baseDir := makeTestTree(t, 2, 0, size)
	ds := must.M1(NewDataset(baseDir, TrainValidation)).WithResolution(size)

	var buf bytes.Buffer
	require.NoError(t, ds.Save(1, false, &buf))
	filePath := filepath.Join(t.TempDir(), "pregen.bin")
	require.NoError(t, os.WriteFile(filePath, buf.Bytes(), 0600))

	pds := NewPreGeneratedDataset("pregen-infinite", filePath, size, true, true, dtypes.Float32)
	for i := 0; i < 3*ds.Len(); i++ {
		_, inputs, _, err := pds.Yield()
		require.NoError(t, err)
		require.Len(t, inputs, 1)
	}
}

func TestPreGeneratedUnlabeled(t *testing.T) {
	const size = 4
	baseDir := makeTestTree(t, 0, 3, size)
	ds := must.M1(NewUnlabeledDataset(baseDir)).WithResolution(size)

	var buf bytes.Buffer
	require.NoError(t, ds.Save(1, false, &buf))
	require.Equal(t, ds.Len()*size*size*3, buf.Len())

	filePath := filepath.Join(t.TempDir(), "pregen.bin")
	require.NoError(t, os.WriteFile(filePath, buf.Bytes(), 0600))

	pds := NewPreGeneratedDataset("pregen-unlabeled", filePath, size, false, false, dtypes.Float32)
	count := 0
	for {
		_, inputs, labels, err := pds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NoError(t, inputs[0].Shape().Check(dtypes.Float32, 3, size, size))
		assert.Empty(t, labels)
		count++
	}
	assert.Equal(t, ds.Len(), count)
}
