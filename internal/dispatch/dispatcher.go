// Package dispatch implements the format dispatcher (spec.md §4.2): a pure
// function mapping a declared filename and MIME type to a FileType variant.
package dispatch

import (
	"path/filepath"
	"strings"
)

// FileType is the dispatcher's output variant.
type FileType struct {
	Kind Kind
	// Ext holds the lowercased extension when Kind is Unknown.
	Ext string
}

type Kind string

const (
	Pdf     Kind = "pdf"
	Image   Kind = "image"
	Excel   Kind = "excel"
	Word    Kind = "word"
	Unknown Kind = "unknown"
)

var extByKind = map[string]Kind{
	"pdf":  Pdf,
	"png":  Image,
	"jpg":  Image,
	"jpeg": Image,
	"tiff": Image,
	"tif":  Image,
	"bmp":  Image,
	"webp": Image,
	"gif":  Image,
	"xlsx": Excel,
	"xls":  Excel,
	"csv":  Excel,
	"ods":  Excel,
	"docx": Word,
	"doc":  Word,
}

// Dispatch resolves a FileType for a (filename, contentType) pair. The
// content-type decision dominates the extension, except a generic
// application/octet-stream falls through to extension matching, per
// spec.md §4.2.
func Dispatch(filename, contentType string) FileType {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct != "" && ct != "application/octet-stream" {
		if kind, ok := kindFromMime(ct); ok {
			return FileType{Kind: kind}
		}
	}
	return fromExtension(filename)
}

func kindFromMime(ct string) (Kind, bool) {
	// strip any parameters, e.g. "text/csv; charset=utf-8"
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	switch {
	case ct == "application/pdf":
		return Pdf, true
	case ct == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		ct == "application/vnd.ms-excel",
		ct == "text/csv":
		return Excel, true
	case ct == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		ct == "application/msword":
		return Word, true
	case strings.HasPrefix(ct, "image/"):
		return Image, true
	default:
		return "", false
	}
}

func fromExtension(filename string) FileType {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if kind, ok := extByKind[ext]; ok {
		return FileType{Kind: kind}
	}
	return FileType{Kind: Unknown, Ext: ext}
}
