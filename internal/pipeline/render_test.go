package pipeline

import (
	"testing"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestBaseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "logo.png", want: "logo"},
		{in: "brand.final.jpeg", want: "brand_final"},
		{in: "C:\\Users\\me\\icon.webp", want: "icon"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: "my logo (1).png", want: "my_logo__1_"},
		{in: "", want: "logo"},
		{in: ".png", want: "logo"},
		{in: "noext", want: "noext"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseName(tt.in))
		})
	}
}

func TestOutputFilename(t *testing.T) {
	spec := domain.OutputSpec{Width: 180, Height: 180, Format: domain.FormatWebP}
	assert.Equal(t, "apple_180x180.webp", OutputFilename("apple", spec))
	assert.Equal(t, "apple_resized.zip", ArchiveFilename("apple"))
}
