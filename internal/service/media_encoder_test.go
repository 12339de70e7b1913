package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func pngPage(tag byte) []byte {
	return append(append([]byte{}, pngSignature...), tag)
}

func makeFileHeaders(t *testing.T, pages ...[]byte) []*multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i, page := range pages {
		part, err := writer.CreateFormFile("pages", fmt.Sprintf("page-%d.png", i+1))
		require.NoError(t, err)
		_, err = part.Write(page)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form.File["pages"]
}

func TestEncodeAllPreservesPageOrder(t *testing.T) {
	encoder := NewMediaEncoder(10, testLogger())
	pages := [][]byte{pngPage(1), pngPage(2), pngPage(3)}

	encoded, err := encoder.EncodeAll(makeFileHeaders(t, pages...))
	require.NoError(t, err)
	require.Len(t, encoded, 3)

	for i, page := range pages {
		decoded, err := base64.StdEncoding.DecodeString(encoded[i].Data)
		require.NoError(t, err)
		require.Equal(t, page, decoded, "page %d", i+1)
		require.Equal(t, "image/png", encoded[i].MimeType)
		require.Equal(t, int64(len(page)), encoded[i].SizeBytes)

		checksum := sha256.Sum256(page)
		require.Equal(t, hex.EncodeToString(checksum[:]), encoded[i].Checksum)
	}
}

func TestEncodeAllRejectsNonImage(t *testing.T) {
	encoder := NewMediaEncoder(10, testLogger())

	_, err := encoder.EncodeAll(makeFileHeaders(t, pngPage(1), []byte("just some plain text")))
	require.ErrorIs(t, err, ErrUnsupportedImageType)
	require.Contains(t, err.Error(), "page 2")
}

func TestEncodeAllRejectsOversizedPage(t *testing.T) {
	encoder := NewMediaEncoder(1, testLogger())

	oversized := append(append([]byte{}, pngSignature...), make([]byte, 1<<20)...)
	_, err := encoder.EncodeAll(makeFileHeaders(t, oversized))
	require.ErrorIs(t, err, ErrImageTooLarge)
}
