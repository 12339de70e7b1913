package ai

import (
	"context"
	"encoding/json"
)

// Segment is one element of the ordered content sequence sent to the model.
// Exactly one of Text or Image is set.
type Segment struct {
	Text  string
	Image *ImagePayload
}

// ImagePayload is an inline base64 image with its detected MIME type.
type ImagePayload struct {
	Data     string
	MimeType string
}

// TextSegment builds a text segment.
func TextSegment(text string) Segment {
	return Segment{Text: text}
}

// ImageSegment builds an inline image segment.
func ImageSegment(data, mimeType string) Segment {
	return Segment{Image: &ImagePayload{Data: data, MimeType: mimeType}}
}

// InvokeRequest describes a single model call. When ResponseSchema is nil the
// call is plain free-text; otherwise the provider must constrain the output
// to a JSON document satisfying the schema.
type InvokeRequest struct {
	Segments       []Segment
	ResponseSchema json.RawMessage
	SchemaName     string
	Temperature    *float32
}

// InvokeResult carries the raw text of the model's reply.
type InvokeResult struct {
	Text string
}

// Invoker describes a multimodal model capable of schema-constrained JSON
// calls and free-text calls.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)
	Name() string
}

// ProviderError wraps transport, auth, or quota failures from a provider.
// The underlying message is surfaced verbatim for diagnostic value.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err as a provider failure.
func NewProviderError(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}
