package pipeline

import (
	"image/color"
	"testing"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMediaType(t *testing.T) {
	pngBytes := buildTestPNG(t, 2, 2, color.NRGBA{A: 255})

	tests := []struct {
		name     string
		declared string
		data     []byte
		want     string
		wantErr  bool
	}{
		{name: "declared png", declared: "image/png", data: pngBytes, want: "image/png"},
		{name: "declared with params", declared: "image/JPEG; charset=binary", data: pngBytes, want: "image/jpeg"},
		{name: "jpg alias", declared: "image/jpg", data: pngBytes, want: "image/jpg"},
		{name: "sniffed when blank", declared: "", data: pngBytes, want: "image/png"},
		{name: "sniffed when octet-stream", declared: "application/octet-stream", data: pngBytes, want: "image/png"},
		{name: "heic rejected", declared: "image/heic", data: pngBytes, wantErr: true},
		{name: "heif rejected", declared: "image/heif", data: pngBytes, wantErr: true},
		{name: "svg rejected", declared: "image/svg+xml", data: pngBytes, wantErr: true},
		{name: "text sniffed and rejected", declared: "", data: []byte("hello world"), wantErr: true},
		{name: "malformed declared", declared: "image/", data: pngBytes, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMediaType(tt.declared, tt.data)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrUnsupportedMedia)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProbe(t *testing.T) {
	info, err := Probe(buildTestPNG(t, 100, 40, color.NRGBA{A: 255}))
	require.NoError(t, err)
	assert.Equal(t, ImageInfo{Width: 100, Height: 40, Format: "png"}, info)

	_, err = Probe([]byte("garbage"))
	require.ErrorIs(t, err, domain.ErrSourceUnreadable)
}
