package inscription

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrUnsupportedType is returned for files that are not accepted images.
var ErrUnsupportedType = errors.New("only image files (jpg, png, gif, webp) are accepted")

// AcceptedTypes lists the MIME types that may be inscribed.
var AcceptedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var extTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// File is an in-memory image candidate for inscription.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// NewFile builds a File, resolving its MIME type from the extension and
// falling back to content sniffing. Non-image types are rejected.
func NewFile(name string, data []byte) (*File, error) {
	mimeType := extTypes[strings.ToLower(filepath.Ext(name))]
	if mimeType == "" {
		mimeType = strings.SplitN(http.DetectContentType(data), ";", 2)[0]
	}
	if !IsAcceptedType(mimeType) {
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedType)
	}
	return &File{Name: filepath.Base(name), MimeType: mimeType, Data: data}, nil
}

// IsAcceptedType reports whether mimeType is an accepted image type.
func IsAcceptedType(mimeType string) bool {
	for _, t := range AcceptedTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// Size returns the file length in bytes.
func (f *File) Size() int64 {
	if f == nil {
		return 0
	}
	return int64(len(f.Data))
}

// Identity returns a stable content identifier: blake3 over the name and bytes.
// Two files with the same name and content share an identity.
func (f *File) Identity() string {
	if f == nil {
		return ""
	}
	h := blake3.New()
	h.Write([]byte(f.Name))
	h.Write([]byte{0})
	h.Write(f.Data)
	return hex.EncodeToString(h.Sum(nil))
}
