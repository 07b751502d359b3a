package filetype

import (
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const pdfMIME = "application/pdf"

// ErrNotPDF is returned for content whose magic bytes are not a PDF.
var ErrNotPDF = errors.New("content is not a PDF")

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// DetectBytes detects the type of an in-memory upload. The name is only logged,
// detection never trusts it.
func (d *Detector) DetectBytes(data []byte, name string) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("name", name).Bool("supported", info.Supported).Msg("detected file type")
	return info
}

// RequirePDF returns ErrNotPDF unless data looks like a PDF.
func (d *Detector) RequirePDF(data []byte, name string) error {
	info := d.DetectBytes(data, name)
	if !info.Supported {
		return fmt.Errorf("%w: detected %s", ErrNotPDF, info.MIMEType)
	}
	return nil
}

// classify determines file characteristics
func (d *Detector) classify(info *FileTypeInfo) {
	switch {
	case mimetype.EqualsAny(info.MIMEType, pdfMIME):
		info.Supported = true
		info.Description = "PDF document"
	default:
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
