package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
)

// Content types understood by Body.Decode.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Body errors.
var (
	// ErrEmptyBody is returned when decoding a frame without a body.
	ErrEmptyBody = errors.New("body is empty")

	// ErrUndecodableBody is returned when a body cannot be decoded with its
	// declared content type.
	ErrUndecodableBody = errors.New("body is not decodable")
)

// Body is an opaque payload plus the content type it was sent with.
// The bytes are never interpreted until Decode is called.
type Body struct {
	ContentType string
	Data        []byte
}

// RawBody wraps already-encoded bytes.
func RawBody(contentType string, data []byte) Body {
	return Body{ContentType: contentType, Data: data}
}

// JSONBody encodes v as a JSON body. A nil v yields the empty body.
func JSONBody(v any) (Body, error) {
	if v == nil {
		return Body{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Body{}, fmt.Errorf("failed to encode json body: %w", err)
	}
	return Body{ContentType: ContentTypeJSON, Data: data}, nil
}

// CBORBody encodes v as a CBOR body. A nil v yields the empty body.
func CBORBody(v any) (Body, error) {
	if v == nil {
		return Body{}, nil
	}
	data, err := Marshal(v)
	if err != nil {
		return Body{}, fmt.Errorf("failed to encode cbor body: %w", err)
	}
	return Body{ContentType: ContentTypeCBOR, Data: data}, nil
}

// MustJSONBody is JSONBody for static payloads that cannot fail to encode.
func MustJSONBody(v any) Body {
	b, err := JSONBody(v)
	if err != nil {
		panic(err)
	}
	return b
}

// IsEmpty reports whether the body carries no bytes.
func (b Body) IsEmpty() bool {
	return len(b.Data) == 0
}

// Len returns the body size in bytes.
func (b Body) Len() int {
	return len(b.Data)
}

// mediaType returns the content type without parameters.
func (b Body) mediaType() string {
	if b.ContentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(b.ContentType)
	if err != nil {
		return b.ContentType
	}
	return mt
}

// Decode unmarshals the body into v according to its content type.
// Bodies without a content type are tried as JSON.
func (b Body) Decode(v any) error {
	if b.IsEmpty() {
		return ErrEmptyBody
	}

	var err error
	switch b.mediaType() {
	case ContentTypeCBOR:
		err = Unmarshal(b.Data, v)
	case ContentTypeJSON, "":
		err = json.Unmarshal(b.Data, v)
	default:
		return fmt.Errorf("%w: unsupported content type %q", ErrUndecodableBody, b.ContentType)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodableBody, err)
	}
	return nil
}

// Map decodes the body into a generic document. Empty or malformed bodies
// yield nil, which callers treat as "no body".
func (b Body) Map() map[string]any {
	var m map[string]any
	if err := b.Decode(&m); err != nil {
		return nil
	}
	return m
}

// Clone returns a body with its own copy of the bytes.
func (b Body) Clone() Body {
	if b.Data == nil {
		return Body{ContentType: b.ContentType}
	}
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return Body{ContentType: b.ContentType, Data: data}
}
