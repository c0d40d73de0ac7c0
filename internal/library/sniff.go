package library

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/starford/folio/internal/apperr"
)

// UploadExtensions lists the file types accepted for upload.
var UploadExtensions = []string{".pdf", ".epub", ".mobi"}

// sniffLen is how many leading bytes are inspected.
const sniffLen = 512

var (
	zipMagic  = []byte("PK\x03\x04")
	epubMime  = []byte("application/epub+zip")
	mobiMagic = []byte("BOOKMOBI")
)

// UploadAllowed reports whether filename has an uploadable extension.
func UploadAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range UploadExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Sniff verifies that head, the leading bytes of a file, matches the format
// implied by the extension of filename.
func Sniff(filename string, head []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		if detected := http.DetectContentType(head); detected != "application/pdf" {
			return fmt.Errorf("%w: content does not match extension %s (detected: %s)", apperr.ErrInvalidInput, ext, detected)
		}
	case ".epub":
		// An EPUB is a zip whose first entry is the stored "mimetype" file.
		if !bytes.HasPrefix(head, zipMagic) {
			return fmt.Errorf("%w: content is not an EPUB container", apperr.ErrInvalidInput)
		}
		if len(head) >= 30+8+len(epubMime) && !bytes.Contains(head[:min(len(head), 128)], epubMime) {
			return fmt.Errorf("%w: zip archive is not an EPUB", apperr.ErrInvalidInput)
		}
	case ".mobi":
		if len(head) < 68 || !bytes.Equal(head[60:68], mobiMagic) {
			return fmt.Errorf("%w: content is not a MOBI book", apperr.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unsupported file extension %q (allowed: pdf, epub, mobi)", apperr.ErrInvalidInput, ext)
	}
	return nil
}
