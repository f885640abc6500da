package filetype

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Category groups MIME types the conversion tools accept.
type Category string

const (
	CategoryPDF         Category = "pdf"
	CategoryOffice      Category = "office"
	CategoryImage       Category = "image"
	CategoryText        Category = "text"
	CategoryUnsupported Category = "unsupported"
)

var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrTooLarge    = errors.New("file too large")
	ErrEmpty       = errors.New("file is empty")
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Category    Category
	Description string
}

// ValidationError is returned when an upload is rejected before submission.
type ValidationError struct {
	Name   string
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Name, e.Reason, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// zipOffice and oleOffice resolve container formats by extension, since the
// magic bytes alone only say "zip" or "ole storage".
var zipOffice = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odp":  "application/vnd.oasis.opendocument.presentation",
}

var oleOffice = map[string]string{
	".doc": "application/msword",
	".xls": "application/vnd.ms-excel",
	".ppt": "application/vnd.ms-powerpoint",
}

// Detect detects the actual file type using magic bytes, not filename.
func Detect(data []byte, name string) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	mimeType := mtype.String()
	extension := mtype.Extension()
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case mtype.Is("application/zip"):
		if m, ok := zipOffice[ext]; ok {
			log.Debug().Str("original", mimeType).Str("override", m).Msg("overriding ZIP detection based on extension")
			mimeType, extension = m, ext
		}
	case mtype.Is("application/x-ole-storage"):
		if m, ok := oleOffice[ext]; ok {
			log.Debug().Str("original", mimeType).Str("override", m).Msg("overriding OLE detection based on extension")
			mimeType, extension = m, ext
		}
	}

	info := &FileTypeInfo{MIMEType: mimeType, Extension: extension}
	classify(info, mtype)
	return info
}

func classify(info *FileTypeInfo, mtype *mimetype.MIME) {
	m := info.MIMEType
	switch {
	case m == "application/pdf" || mtype.Is("application/pdf"):
		info.Category = CategoryPDF
		info.Description = "PDF document"
	case strings.HasPrefix(m, "application/vnd.openxmlformats-officedocument."),
		strings.HasPrefix(m, "application/vnd.oasis.opendocument."),
		m == "application/msword", m == "application/vnd.ms-excel", m == "application/vnd.ms-powerpoint",
		m == "application/rtf", m == "text/rtf":
		info.Category = CategoryOffice
		info.Description = "Office document"
	case strings.HasPrefix(m, "image/"):
		info.Category = CategoryImage
		info.Description = "Image file"
	case strings.HasPrefix(m, "text/"):
		info.Category = CategoryText
		info.Description = "Text file"
	default:
		info.Category = CategoryUnsupported
		info.Description = fmt.Sprintf("Unsupported file type: %s", m)
	}
}

// Rules bound what a tool accepts.
type Rules struct {
	Accept   []Category
	MaxBytes int64
}

// Validate checks size and detected type against rules. Failures are
// *ValidationError and the submission must not be attempted.
func Validate(data []byte, name string, rules Rules) (*FileTypeInfo, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Name: name, Reason: ErrEmpty}
	}
	if rules.MaxBytes > 0 && int64(len(data)) > rules.MaxBytes {
		return nil, &ValidationError{Name: name, Reason: ErrTooLarge,
			Detail: fmt.Sprintf("%d bytes exceeds limit of %d", len(data), rules.MaxBytes)}
	}
	info := Detect(data, name)
	if info.Category == CategoryUnsupported {
		return info, &ValidationError{Name: name, Reason: ErrUnsupported, Detail: info.MIMEType}
	}
	if len(rules.Accept) == 0 {
		return info, nil
	}
	for _, c := range rules.Accept {
		if c == info.Category {
			return info, nil
		}
	}
	return info, &ValidationError{Name: name, Reason: ErrUnsupported, Detail: info.Description}
}
