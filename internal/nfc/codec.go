// Package nfc implements the prescription tag format and the tag session protocol.
package nfc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/vcscsvcscs/rxtag/pkg/model"
)

var (
	// ErrMalformedPayload is returned when tag bytes hold no valid prescription document.
	ErrMalformedPayload = errors.New("nfc: malformed prescription payload")
	// ErrInsufficientCapacity is returned when an encoded record does not fit the tag.
	ErrInsufficientCapacity = errors.New("nfc: insufficient tag capacity")
	// ErrUnsupportedTag is returned when the tag does not speak NDEF.
	ErrUnsupportedTag = errors.New("nfc: unsupported tag")
	// ErrReadOnlyTag is returned when the tag refuses writes.
	ErrReadOnlyTag = errors.New("nfc: read-only tag")
)

const payloadSchemaURL = "rxtag://schemas/prescription-payload.json"

var payloadSchema = jsonschema.MustCompileString(payloadSchemaURL, `{
	"type": "object",
	"required": ["rxId", "patient"],
	"properties": {
		"rxId": {"type": "string"},
		"patient": {"type": "string"},
		"issuedAt": {"type": "string"},
		"signed": {"type": "boolean"},
		"meds": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"properties": {
					"drug": {"type": "string"},
					"dose": {"type": "string"},
					"freq": {"type": "string"},
					"days": {"type": "integer", "minimum": 0}
				}
			}
		}
	}
}`)

// MimeType returns the MIME type of prescription records for an application id
func MimeType(appID string) string {
	return "application/" + appID + ".prescription"
}

// Encode wraps a JSON document as a single MIME-typed NDEF record.
// The caller is responsible for passing valid JSON.
func Encode(payloadJSON, mimeType string) []byte {
	return record{
		tnf:     tnfMedia,
		typ:     mimeType,
		payload: []byte(payloadJSON),
	}.marshal()
}

// EncodePayload marshals a payload and wraps it as a record
func EncodePayload(p model.PrescriptionPayload, mimeType string) ([]byte, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prescription payload: %w", err)
	}
	return Encode(string(doc), mimeType), nil
}

// Decode extracts a prescription from raw tag bytes.
//
// Everything from the first '{' onward is treated as the JSON document, so record
// headers and language prefixes in front of it are skipped. When raw is exactly one
// media record its payload is tried first.
func Decode(raw []byte) (model.PrescriptionPayload, error) {
	if rec, n, err := unmarshalRecord(raw); err == nil && n == len(raw) && rec.tnf == tnfMedia {
		if p, err := decodeDocument(rec.payload); err == nil {
			return p, nil
		}
	}
	return decodeDocument(raw)
}

func decodeDocument(data []byte) (model.PrescriptionPayload, error) {
	var p model.PrescriptionPayload

	start := bytes.IndexByte(data, '{')
	if start < 0 {
		return p, fmt.Errorf("%w: no JSON object found", ErrMalformedPayload)
	}
	doc := data[start:]

	v, err := unmarshalDocument(doc)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := payloadSchema.Validate(v); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := json.Unmarshal(doc, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return p, nil
}

// unmarshalDocument decodes exactly one JSON value into the generic form the
// schema validator expects. Anything but whitespace after it is an error.
func unmarshalDocument(doc []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON document")
	}
	return v, nil
}
