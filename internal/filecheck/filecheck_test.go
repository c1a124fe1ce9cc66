package filecheck

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	opts := Options{AcceptedTypes: []string{TypePNG, TypeJPEG}, MaxSizeMB: 50}

	tests := []struct {
		name      string
		file      FileInfo
		wantValid bool
		contains  string
	}{
		{name: "valid png", file: FileInfo{Name: "test.png", Size: 4, Type: TypePNG}, wantValid: true},
		{name: "type inferred from name", file: FileInfo{Name: "photo.JPG", Size: 4}, wantValid: true},
		{name: "rejected gif", file: FileInfo{Name: "test.gif", Size: 4, Type: "image/gif"}, contains: "not accepted"},
		{name: "too large", file: FileInfo{Name: "test.png", Size: 60 * 1024 * 1024, Type: TypePNG}, contains: "exceeds"},
		{name: "exactly at limit", file: FileInfo{Name: "test.png", Size: 50 * 1024 * 1024, Type: TypePNG}, wantValid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.file, opts)
			assert.Equal(t, tt.wantValid, got.Valid)
			if tt.wantValid {
				assert.Empty(t, got.Error)
				return
			}
			assert.Contains(t, got.Error, tt.contains)
		})
	}
}

func TestValidate_Messages(t *testing.T) {
	got := Validate(FileInfo{Name: "a.gif", Type: "image/gif"}, Options{AcceptedTypes: []string{TypePNG, TypeJPEG}, MaxSizeMB: 50})
	assert.Equal(t, `File type "image/gif" is not accepted. Accepted types: image/png, image/jpeg`, got.Error)

	got = Validate(FileInfo{Name: "a.png", Size: 60 * 1024 * 1024}, Options{AcceptedTypes: []string{TypePNG}, MaxSizeMB: 50})
	assert.Equal(t, "File size (60 MB) exceeds maximum allowed size of 50MB", got.Error)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 Bytes", FormatSize(0))
	assert.Equal(t, "500 Bytes", FormatSize(500))
	assert.Equal(t, "1 KB", FormatSize(1024))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "1 MB", FormatSize(1048576))
	assert.Equal(t, "1.23 GB", FormatSize(1320702444))
}

func TestTypeFromName(t *testing.T) {
	assert.Equal(t, TypePNG, TypeFromName("test.png"))
	assert.Equal(t, TypeJPEG, TypeFromName("test.jpg"))
	assert.Equal(t, TypeJPEG, TypeFromName("TEST.JPEG"))
	assert.Equal(t, TypeDDS, TypeFromName("texture.dds"))
	assert.Equal(t, TypeWebP, TypeFromName("a.b.webp"))
	assert.Equal(t, TypeUnknown, TypeFromName("README"))
}

func TestIsImageAndDDS(t *testing.T) {
	assert.True(t, IsImage(FileInfo{Name: "test.png", Type: TypePNG}))
	assert.True(t, IsImage(FileInfo{Name: "texture.dds"}))
	assert.False(t, IsImage(FileInfo{Name: "notes.txt", Type: "text/plain"}))

	assert.True(t, IsDDS(FileInfo{Name: "texture.DDS", Type: TypeUnknown}))
	assert.True(t, IsDDS(FileInfo{Name: "blob", Type: TypeDDS}))
	assert.False(t, IsDDS(FileInfo{Name: "test.png"}))
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestValidateDimensions(t *testing.T) {
	img := encodePNG(t, 64, 32)

	assert.True(t, ValidateDimensions(bytes.NewReader(img), DimensionLimits{}).Valid)
	assert.True(t, ValidateDimensions(bytes.NewReader(img), DimensionLimits{MinWidth: 64, MaxHeight: 32}).Valid)

	got := ValidateDimensions(bytes.NewReader(img), DimensionLimits{MinWidth: 128})
	assert.False(t, got.Valid)
	assert.Equal(t, "Image width (64px) must be at least 128px", got.Error)

	got = ValidateDimensions(bytes.NewReader(img), DimensionLimits{MinHeight: 33})
	assert.Equal(t, "Image height (32px) must be at least 33px", got.Error)

	got = ValidateDimensions(bytes.NewReader(img), DimensionLimits{MaxWidth: 10})
	assert.Equal(t, "Image width (64px) must not exceed 10px", got.Error)

	got = ValidateDimensions(bytes.NewReader(img), DimensionLimits{MaxHeight: 10})
	assert.Equal(t, "Image height (32px) must not exceed 10px", got.Error)

	got = ValidateDimensions(strings.NewReader("not an image"), DimensionLimits{})
	assert.False(t, got.Valid)
	assert.Equal(t, "Failed to load image", got.Error)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()

	pngPath := filepath.Join(dir, "shot.png")
	require.NoError(t, os.WriteFile(pngPath, encodePNG(t, 2, 2), 0o644))
	info, err := Inspect(pngPath)
	require.NoError(t, err)
	assert.Equal(t, "shot.png", info.Name)
	assert.Equal(t, TypePNG, info.Type)
	assert.Positive(t, info.Size)

	sniffPath := filepath.Join(dir, "noext")
	require.NoError(t, os.WriteFile(sniffPath, encodePNG(t, 2, 2), 0o644))
	info, err = Inspect(sniffPath)
	require.NoError(t, err)
	assert.Equal(t, TypePNG, info.Type)

	_, err = Inspect(dir)
	require.Error(t, err)
}
