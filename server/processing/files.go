package processing

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// NoFilesMessage stands in for the file block when nothing was uploaded.
const NoFilesMessage = "No policy documents uploaded."

// UploadedFile describes one uploaded file part. The content itself is
// never kept.
type UploadedFile struct {
	Filename    string
	Size        int64
	ContentType string
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (f UploadedFile) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("filename", f.Filename)
	enc.AddInt64("size", f.Size)
	enc.AddString("content_type", f.ContentType)
	return nil
}

// FileManifest lists the uploaded files in upload order.
type FileManifest []UploadedFile

// MarshalLogArray implements zapcore.ArrayMarshaler.
func (m FileManifest) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, f := range m {
		if err := enc.AppendObject(f); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the filenames in order.
func (m FileManifest) Names() []string {
	names := make([]string, len(m))
	for i, f := range m {
		names[i] = f.Filename
	}
	return names
}

// Summary renders the file block of the prompt.
func (m FileManifest) Summary() string {
	if len(m) == 0 {
		return NoFilesMessage
	}
	return "Uploaded policy documents: " + strings.Join(m.Names(), ", ")
}
