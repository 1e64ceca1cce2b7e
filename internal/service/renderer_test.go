package service

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNGRendererUploadsCertificate(t *testing.T) {
	mem := NewMemoryStorageProvider()
	renderer, err := NewPNGRenderer(&StorageService{Provider: mem}, "SkillPath")
	require.NoError(t, err)

	hash := "ab12"
	url, err := renderer.Render(context.Background(), CertificateDocument{
		RecipientName:    "Ada Lovelace",
		TrackTitle:       "Concurrency in Go",
		VerificationHash: hash,
		CompletionDate:   "2026-10-19",
	})
	require.NoError(t, err)
	assert.Equal(t, "memory://credentials/ab12.png", url)

	raw, ok := mem.Get("credentials/ab12.png")
	require.True(t, ok)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, certWidth, img.Bounds().Dx())
	assert.Equal(t, certHeight, img.Bounds().Dy())
}
