package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFileManifestSummary(t *testing.T) {
	assert.Equal(t, NoFilesMessage, FileManifest(nil).Summary())
	assert.Equal(t, "No policy documents uploaded.", FileManifest{}.Summary())

	m := FileManifest{
		{Filename: "a.pdf", Size: 10, ContentType: "application/pdf"},
		{Filename: "b.pdf", Size: 20},
		{Filename: "c.png", Size: 30, ContentType: "image/png"},
	}
	assert.Equal(t, "Uploaded policy documents: a.pdf, b.pdf, c.png", m.Summary())
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.png"}, m.Names())
}

func TestFileManifestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	logger.Info("files", zap.Array("files", FileManifest{
		{Filename: "policy.pdf", Size: 1024, ContentType: "application/pdf"},
	}))

	require.Equal(t, 1, logs.Len())
	files := logs.All()[0].ContextMap()["files"].([]interface{})
	require.Len(t, files, 1)
	assert.Equal(t, map[string]interface{}{
		"filename":     "policy.pdf",
		"size":         int64(1024),
		"content_type": "application/pdf",
	}, files[0])
}
