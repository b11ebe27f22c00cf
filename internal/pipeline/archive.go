package pipeline

import (
	"archive/zip"
	"fmt"
	"io"
	"time"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/klauspost/compress/flate"
)

// ArchiveWriter writes render results as zip entries at best compression.
type ArchiveWriter struct {
	zw  *zip.Writer
	now func() time.Time
}

func NewArchiveWriter(w io.Writer) *ArchiveWriter {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return &ArchiveWriter{zw: zw, now: time.Now}
}

func (a *ArchiveWriter) Append(name string, data []byte) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: a.now().UTC(),
	}
	entry, err := a.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("%w: create entry %s: %w", domain.ErrArchiveFailure, name, err)
	}
	if _, err := entry.Write(data); err != nil {
		return fmt.Errorf("%w: write entry %s: %w", domain.ErrArchiveFailure, name, err)
	}
	return nil
}

// Finalize writes the central directory. The archive is invalid until then.
func (a *ArchiveWriter) Finalize() error {
	if err := a.zw.Close(); err != nil {
		return fmt.Errorf("%w: finalize: %w", domain.ErrArchiveFailure, err)
	}
	return nil
}

// WriteArchive writes all results in order and finalizes the archive.
func WriteArchive(w io.Writer, results []Result) error {
	archive := NewArchiveWriter(w)
	for _, result := range results {
		if err := archive.Append(result.Filename, result.Data); err != nil {
			return err
		}
	}
	return archive.Finalize()
}
