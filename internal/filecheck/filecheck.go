package filecheck

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	_ "golang.org/x/image/webp"
)

const (
	TypePNG     = "image/png"
	TypeJPEG    = "image/jpeg"
	TypeWebP    = "image/webp"
	TypeDDS     = "image/x-dds"
	TypeUnknown = "application/octet-stream"

	DefaultMaxSizeMB = 50
)

var DefaultAcceptedTypes = []string{TypePNG, TypeJPEG, TypeWebP, TypeDDS}

var typesByExt = map[string]string{
	"png":  TypePNG,
	"jpg":  TypeJPEG,
	"jpeg": TypeJPEG,
	"webp": TypeWebP,
	"dds":  TypeDDS,
}

// FileInfo is what the validator knows about a candidate upload.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	// Type is the declared MIME type; empty means infer from Name.
	Type string `json:"type,omitempty"`
}

func (f FileInfo) effectiveType() string {
	if f.Type != "" {
		return f.Type
	}
	return TypeFromName(f.Name)
}

type Options struct {
	AcceptedTypes []string
	MaxSizeMB     float64
}

func DefaultOptions() Options {
	return Options{
		AcceptedTypes: slices.Clone(DefaultAcceptedTypes),
		MaxSizeMB:     DefaultMaxSizeMB,
	}
}

type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func invalid(format string, args ...any) Result {
	return Result{Valid: false, Error: fmt.Sprintf(format, args...)}
}

// Validate checks the file type first, then the size.
func Validate(file FileInfo, opts Options) Result {
	fileType := file.effectiveType()
	if !slices.Contains(opts.AcceptedTypes, fileType) {
		return invalid("File type %q is not accepted. Accepted types: %s", fileType, strings.Join(opts.AcceptedTypes, ", "))
	}

	maxBytes := opts.MaxSizeMB * 1024 * 1024
	if float64(file.Size) > maxBytes {
		return invalid("File size (%s) exceeds maximum allowed size of %sMB", FormatSize(file.Size), formatNumber(opts.MaxSizeMB))
	}
	return Result{Valid: true}
}

// TypeFromName infers a MIME type from the file extension.
func TypeFromName(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if t, ok := typesByExt[ext]; ok {
		return t
	}
	return TypeUnknown
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatSize renders bytes in base-1024 units with at most two decimals,
// e.g. "0 Bytes", "1 KB", "1.5 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := math.Round(float64(bytes)/math.Pow(1024, float64(i))*100) / 100
	return formatNumber(v) + " " + sizeUnits[i]
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func IsImage(file FileInfo) bool {
	return strings.HasPrefix(file.effectiveType(), "image/")
}

func IsDDS(file FileInfo) bool {
	return file.effectiveType() == TypeDDS || strings.HasSuffix(strings.ToLower(file.Name), ".dds")
}

// Inspect builds a FileInfo for a local path. Unknown extensions fall back
// to content sniffing.
func Inspect(path string) (FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	if st.IsDir() {
		return FileInfo{}, fmt.Errorf("%s is a directory", path)
	}

	info := FileInfo{
		Name: filepath.Base(path),
		Size: st.Size(),
		Type: TypeFromName(path),
	}
	if info.Type != TypeUnknown {
		return info, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return FileInfo{}, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileInfo{}, err
	}
	if sniffed := http.DetectContentType(head[:n]); sniffed != "" {
		info.Type = strings.TrimSpace(strings.Split(sniffed, ";")[0])
	}
	return info, nil
}

// DimensionLimits bounds image size in pixels; zero disables a bound.
type DimensionLimits struct {
	MinWidth  int
	MinHeight int
	MaxWidth  int
	MaxHeight int
}

// ValidateDimensions decodes only the image header from r.
func ValidateDimensions(r io.Reader, limits DimensionLimits) Result {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return invalid("Failed to load image")
	}

	switch {
	case limits.MinWidth > 0 && cfg.Width < limits.MinWidth:
		return invalid("Image width (%dpx) must be at least %dpx", cfg.Width, limits.MinWidth)
	case limits.MinHeight > 0 && cfg.Height < limits.MinHeight:
		return invalid("Image height (%dpx) must be at least %dpx", cfg.Height, limits.MinHeight)
	case limits.MaxWidth > 0 && cfg.Width > limits.MaxWidth:
		return invalid("Image width (%dpx) must not exceed %dpx", cfg.Width, limits.MaxWidth)
	case limits.MaxHeight > 0 && cfg.Height > limits.MaxHeight:
		return invalid("Image height (%dpx) must not exceed %dpx", cfg.Height, limits.MaxHeight)
	}
	return Result{Valid: true}
}
