// Package components implements the five pipeline stages. Each stage reads its
// inputs from and writes its outputs to the artifacts filesystem; no state is
// handed between stages in memory.
package components

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"

	"github.com/YuminosukeSato/mlproject/configuration"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
)

// sniffLen is how many leading bytes mimetype inspects.
const sniffLen = 3072

// DataIngestion downloads the dataset archive and unpacks it.
type DataIngestion struct {
	fs       billy.Filesystem
	settings configuration.IngestionSettings
	fetcher  Fetcher
	logger   log.Logger
}

// NewDataIngestion creates the ingestion stage. A nil fetcher selects DefaultFetcher.
func NewDataIngestion(fs billy.Filesystem, settings configuration.IngestionSettings, fetcher Fetcher, logger log.Logger) *DataIngestion {
	if fetcher == nil {
		fetcher = DefaultFetcher()
	}
	return &DataIngestion{
		fs:       fs,
		settings: settings,
		fetcher:  fetcher,
		logger:   logger.With(log.StageKey, "data_ingestion"),
	}
}

// Download fetches SourceURL into LocalDataFile unless that file already exists.
// An existing file is never fetched again.
func (d *DataIngestion) Download(ctx context.Context) error {
	dst := d.settings.LocalDataFile
	logger := d.logger.With(log.OperationKey, log.OperationDownload, log.ArtifactPathKey, dst)

	if fi, err := d.fs.Stat(dst); err == nil {
		logger.Info("File already exists of size: "+FormatSize(fi.Size()), log.ArtifactSizeKey, FormatSize(fi.Size()))
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to stat %s", dst)
	}

	body, info, err := d.fetcher.Fetch(ctx, d.settings.SourceURL)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := d.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", dst)
	}
	f, err := d.fs.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}

	head := &prefixBuffer{limit: sniffLen}
	n, err := io.Copy(f, io.TeeReader(body, head))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = d.fs.Remove(dst)
		return errors.Wrapf(err, "failed to write %s", dst)
	}

	detected := mimetype.Detect(head.Bytes())
	logger.Info(dst+" downloaded!",
		log.SourceURLKey, d.settings.SourceURL,
		"http.status", info.Status,
		"http.headers", info.Headers,
		log.ContentTypeKey, detected.String(),
		log.ArtifactSizeKey, FormatSize(n),
	)
	return nil
}

// Extract unpacks every entry of LocalDataFile into UnzipDir. Entries whose
// path would land outside UnzipDir are rejected.
func (d *DataIngestion) Extract() error {
	src := d.settings.LocalDataFile
	unzipDir := d.settings.UnzipDir
	logger := d.logger.With(log.OperationKey, log.OperationExtract, log.ArtifactPathKey, unzipDir)

	if err := d.fs.MkdirAll(unzipDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", unzipDir)
	}

	f, err := d.fs.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open archive %s", src)
	}
	defer f.Close()

	fi, err := d.fs.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "failed to stat archive %s", src)
	}

	head := make([]byte, sniffLen)
	hn, _ := f.ReadAt(head, 0)
	if mt := mimetype.Detect(head[:hn]); !isZip(mt) {
		return errors.Newf("%s is not a zip archive (detected %s)", src, mt.String())
	}

	zr, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return errors.Wrapf(err, "failed to read archive %s", src)
	}

	files := 0
	for _, entry := range zr.File {
		target, err := safeJoin(unzipDir, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := d.fs.MkdirAll(target, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %s", target)
			}
			continue
		}
		if err := d.extractFile(entry, target); err != nil {
			return err
		}
		files++
	}

	logger.Info("Extracted archive", "archive.files", files)
	return nil
}

func (d *DataIngestion) extractFile(entry *zip.File, target string) error {
	if err := d.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", target)
	}
	rc, err := entry.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open archive entry %s", entry.Name)
	}
	defer rc.Close()

	out, err := d.fs.Create(target)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", target)
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return errors.Wrapf(err, "failed to extract %s", entry.Name)
}

// isZip accepts application/zip and formats built on it.
func isZip(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}

// safeJoin joins name under dir and fails if the result escapes dir.
func safeJoin(dir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", errors.Newf("illegal absolute path in archive: %s", name)
	}
	target := filepath.Join(dir, name)
	rel, err := filepath.Rel(filepath.Clean(dir), target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Newf("illegal file path in archive: %s", name)
	}
	return target, nil
}

// FormatSize renders a byte count the way the run log reports artifact sizes.
func FormatSize(n int64) string {
	return fmt.Sprintf("~ %d KB", int64(math.RoundToEven(float64(n)/1024)))
}

// prefixBuffer keeps the first limit bytes written to it.
type prefixBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (p *prefixBuffer) Write(b []byte) (int, error) {
	if room := p.limit - p.buf.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		p.buf.Write(b[:room])
	}
	return len(b), nil
}

func (p *prefixBuffer) Bytes() []byte {
	return p.buf.Bytes()
}
