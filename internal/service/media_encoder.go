package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/jerllllllllyn/smart-grade/internal/models"
	"github.com/jerllllllllyn/smart-grade/internal/observability"
)

var (
	// ErrImageTooLarge indicates an uploaded page exceeded the configured limit.
	ErrImageTooLarge = errors.New("image exceeds maximum allowed size")
	// ErrUnsupportedImageType indicates the upload is not an image.
	ErrUnsupportedImageType = errors.New("file is not a supported image type")
)

// MediaEncoder turns uploaded scan pages into inline base64 payloads with a
// sniffed MIME type. Files encode concurrently; result order always matches
// input order because page sequence is significant downstream.
type MediaEncoder struct {
	maxSize int64
	logger  zerolog.Logger
}

// NewMediaEncoder constructs a media encoder with the given size cap in MB.
func NewMediaEncoder(maxSizeMB int, logger zerolog.Logger) *MediaEncoder {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &MediaEncoder{
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		logger:  logger.With().Str("component", "media_encoder").Logger(),
	}
}

// EncodeAll encodes every uploaded file, preserving input order. The first
// failure aborts the whole batch.
func (e *MediaEncoder) EncodeAll(files []*multipart.FileHeader) ([]models.EncodedImage, error) {
	results := make([]models.EncodedImage, len(files))
	errs := make([]error, len(files))

	var wg sync.WaitGroup
	for i, file := range files {
		wg.Add(1)
		go func(i int, file *multipart.FileHeader) {
			defer wg.Done()
			results[i], errs[i] = e.encode(file)
		}(i, file)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("page %d (%s): %w", i+1, files[i].Filename, err)
		}
	}

	return results, nil
}

func (e *MediaEncoder) encode(file *multipart.FileHeader) (models.EncodedImage, error) {
	if file.Size > e.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		return models.EncodedImage{}, ErrImageTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return models.EncodedImage{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, e.maxSize+1)); err != nil {
		return models.EncodedImage{}, err
	}
	if int64(buf.Len()) > e.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		return models.EncodedImage{}, ErrImageTooLarge
	}

	mime := mimetype.Detect(buf.Bytes())
	if !strings.HasPrefix(mime.String(), "image/") {
		observability.UploadRejected().WithLabelValues("type").Inc()
		return models.EncodedImage{}, fmt.Errorf("detected %s: %w", mime.String(), ErrUnsupportedImageType)
	}

	checksum := sha256.Sum256(buf.Bytes())
	encoded := models.EncodedImage{
		Data:      base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:  mime.String(),
		Checksum:  hex.EncodeToString(checksum[:]),
		SizeBytes: int64(buf.Len()),
	}

	e.logger.Debug().
		Str("mime_type", encoded.MimeType).
		Int64("size_bytes", encoded.SizeBytes).
		Str("checksum", encoded.Checksum).
		Msg("page encoded")

	return encoded, nil
}
