package pipeline

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteArchive_EntriesInOrder(t *testing.T) {
	results := []Result{
		{Filename: "logo_16x16.png", Data: bytes.Repeat([]byte("a"), 512)},
		{Filename: "logo_32x32.jpeg", Data: []byte("jpeg bytes")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, results))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	for i, f := range zr.File {
		assert.Equal(t, results[i].Filename, f.Name)
		assert.Equal(t, zip.Deflate, f.Method)

		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		assert.Equal(t, results[i].Data, data)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestWriteArchive_WriterFailure(t *testing.T) {
	err := WriteArchive(failingWriter{}, []Result{{Filename: "a.png", Data: bytes.Repeat([]byte("x"), 1<<16)}})
	require.ErrorIs(t, err, domain.ErrArchiveFailure)
}
