// Package source retrieves manifest files by logical name.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/BadgerOps/pimsync/internal/config"
	"github.com/BadgerOps/pimsync/internal/safety"
)

// maxArchiveSize bounds how much of a zip archive is buffered (512MB).
const maxArchiveSize = 512 * 1024 * 1024

// Source opens a file by the name it has in storage.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// New builds the Source selected by cfg.
func New(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (Source, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "dir":
		return NewDirSource(cfg.Dir), nil
	case "s3":
		return NewS3Source(ctx, cfg.S3, logger)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}

// DirSource reads files from a local directory, typically a mounted share.
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir}
}

// Open opens name under the root directory.
func (d *DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	path, err := safety.SafeJoinUnder(d.root, name)
	if err != nil {
		return nil, fmt.Errorf("invalid file name %q: %w", name, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return f, nil
}

// OpenManifest opens name from src and unwraps it according to its
// extension: the first .xml member of a .zip, or the decompressed stream of a
// .zst or .xz file. Any other name is returned as-is.
func OpenManifest(ctx context.Context, src Source, name string) (io.ReadCloser, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		defer rc.Close()
		return openZipManifest(rc, name)
	case ".zst":
		dec, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("creating zstd reader for %s: %w", name, err)
		}
		return &stackedCloser{Reader: dec, closers: []func() error{
			func() error { dec.Close(); return nil },
			rc.Close,
		}}, nil
	case ".xz":
		xr, err := xz.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("creating xz reader for %s: %w", name, err)
		}
		return &stackedCloser{Reader: xr, closers: []func() error{rc.Close}}, nil
	default:
		return rc, nil
	}
}

func openZipManifest(r io.Reader, name string) (io.ReadCloser, error) {
	data, err := safety.ReadAllWithLimit(r, maxArchiveSize)
	if err != nil {
		return nil, fmt.Errorf("reading archive %s: %w", name, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", name, err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), ".xml") {
			continue
		}
		member, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s in %s: %w", f.Name, name, err)
		}
		return member, nil
	}
	return nil, fmt.Errorf("archive %s contains no xml manifest", name)
}

// stackedCloser closes a decoder and then the stream underneath it.
type stackedCloser struct {
	io.Reader
	closers []func() error
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
