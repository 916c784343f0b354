// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package celebamask

import (
	"path"

	"github.com/gomlx/celebamask/downloader"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// LocalZipFile is the name given to the downloaded archive under baseDir.
const LocalZipFile = "celebamask.zip"

// Download fetches a prepared CelebAMask archive from url into baseDir and
// unzips it there, expecting it to produce the `label_data` (and optionally
// `unlabel_data`) layout this package consumes. If the archive or the layout
// is already present, the previous copy is used.
//
// The upstream CelebAMask-HQ distribution is gated behind a manual download
// form, so there is no default URL: pass the location of your own mirror of
// the prepared archive. checkHash, if not empty, is the expected sha256 of
// the archive.
func Download(baseDir, url, checkHash string) error {
	baseDir = fsutil.MustReplaceTildeInDir(baseDir)
	zipFilePath := path.Join(baseDir, LocalZipFile)
	targetDir := path.Join(baseDir, LabelDataSubdir)
	if err := downloader.DownloadAndUnzipIfMissing(url, zipFilePath, baseDir, targetDir, checkHash); err != nil {
		return errors.WithMessagef(err, "failed to download CelebAMask data to %q", baseDir)
	}
	return nil
}
