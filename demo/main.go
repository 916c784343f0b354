// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// demo for the celebamask library: scans a CelebAMask tree, reports the
// dataset splits, and renders a contact sheet with the first samples next to
// their color-coded masks.
//
// Example:
//
//	demo --data=~/tmp/celebamask --phase=train --augment --samples=8 --out=sheet.png
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/celebamask"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagDataDir    = flag.String("data", "~/tmp/celebamask", "Directory with the label_data/unlabel_data trees.")
	flagURL        = flag.String("url", "", "If set, download the prepared dataset archive from this URL first.")
	flagPhase      = flag.String("phase", "train", "Split to use: \"train\", \"val\" or \"train-val\".")
	flagUnlabeled  = flag.Bool("unlabeled", false, "Use the unlabeled tree instead of the labeled one.")
	flagResolution = flag.Int("resolution", celebamask.DefaultResolution, "Target square size of samples.")
	flagAugment    = flag.Bool("augment", false, "Apply random training augmentation to the rendered samples.")
	flagSamples    = flag.Int("samples", 4, "Number of samples to render on the contact sheet.")
	flagOut        = flag.String("out", "celebamask_sheet.png", "File to write the contact sheet to.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	dataDir := fsutil.MustReplaceTildeInDir(*flagDataDir)
	if *flagURL != "" {
		must.M(celebamask.Download(dataDir, *flagURL, ""))
		klog.Infof("Data downloaded in %s", dataDir)
	}

	var ds *celebamask.Dataset
	if *flagUnlabeled {
		ds = must.M1(celebamask.NewUnlabeledDataset(dataDir))
	} else {
		phase := must.M1(celebamask.ParsePhase(*flagPhase))
		ds = must.M1(celebamask.NewDataset(dataDir, phase))
	}
	ds = ds.WithResolution(*flagResolution)
	if *flagAugment {
		ds = ds.WithAugmentation(celebamask.NewAugmentConfig())
	}

	imageT, maskT, err := ds.At(0)
	must.M(err)
	sampleBytes := uint64(imageT.Shape().Memory())
	if maskT != nil {
		sampleBytes += uint64(maskT.Shape().Memory())
	}
	fmt.Printf("Dataset %q: %d samples (logical length %d)\n", ds.Name(), ds.NumSamples(), ds.Len())
	fmt.Printf("\tper sample: %s as tensors (%s for one epoch)\n",
		humanize.IBytes(sampleBytes), humanize.IBytes(sampleBytes*uint64(ds.NumSamples())))

	must.M(renderSheet(ds, min(*flagSamples, ds.NumSamples()), *flagOut))
	fmt.Printf("Contact sheet written to %s\n", *flagOut)
}

// renderSheet writes numSamples rows, each with the image and, if labeled,
// the color-coded mask beside it.
func renderSheet(ds *celebamask.Dataset, numSamples int, outPath string) error {
	res := ds.Resolution()
	columns := 1
	if ds.Labeled() {
		columns = 2
	}
	sheet := imaging.New(columns*res, numSamples*res, color.NRGBA{A: 0xFF})
	for row := 0; row < numSamples; row++ {
		img, mask, err := ds.Sample(row)
		if err != nil {
			return err
		}
		sheet = imaging.Paste(sheet, img, image.Pt(0, row*res))
		if mask != nil {
			sheet = imaging.Paste(sheet, celebamask.RenderMask(mask), image.Pt(res, row*res))
		}
	}
	return imaging.Save(sheet, outPath)
}
