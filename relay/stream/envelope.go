package stream

import (
	"encoding/json"
	"strings"

	"github.com/Laisky/errors/v2"

	relaymodel "github.com/neatchat/neatchat/relay/model"
)

// Wire protocol, backend to client: a newline-delimited text/plain body.
// Lines with no marker prefix are raw visible-text bytes (the legacy plain
// streaming path). Side channels travel as one line each: a marker token
// followed immediately by a compact JSON object. The encoder frames every
// marker line with a leading and trailing newline; the decoder drops those
// framing newlines so the content accumulator stays byte-exact.
const (
	ReasoningMarker   = "[REASONING]"
	AnnotationsMarker = "[ANNOTATIONS]"
	MetadataMarker    = "[METADATA]"
	ErrorMarker       = "[ERROR]"
)

// Markers lists every marker token, used for prefix holdback on the consumer
// side.
var Markers = []string{ReasoningMarker, AnnotationsMarker, MetadataMarker, ErrorMarker}

// Metadata is the terminal summary of a completed stream.
type Metadata struct {
	Usage        relaymodel.Usage `json:"usage"`
	ElapsedMs    int64            `json:"elapsed_ms"`
	GenerationId string           `json:"generation_id,omitempty"`
	Model        string           `json:"model,omitempty"`
}

// ErrorData is the terminal payload of a failed stream. Code is one of the
// stable pipeline error codes, never a provider-internal value.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stable terminal error codes surfaced to clients.
const (
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
	ErrCodeUpstreamInterrupted = "upstream_interrupted"
	ErrCodeInternal            = "internal_error"
)

type reasoningPayload struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type annotationsPayload struct {
	Type string                  `json:"type"`
	Data []relaymodel.Annotation `json:"data"`
}

type metadataPayload struct {
	Type string   `json:"type"`
	Data Metadata `json:"data"`
}

type errorPayload struct {
	Type string    `json:"type"`
	Data ErrorData `json:"data"`
}

func encodeMarkerLine(marker string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", marker)
	}
	buf := make([]byte, 0, len(marker)+len(body)+2)
	buf = append(buf, '\n')
	buf = append(buf, marker...)
	buf = append(buf, body...)
	buf = append(buf, '\n')
	return buf, nil
}

// EncodeReasoning frames one reasoning fragment.
func EncodeReasoning(fragment string) ([]byte, error) {
	return encodeMarkerLine(ReasoningMarker, reasoningPayload{Type: "reasoning", Data: fragment})
}

// EncodeAnnotations frames the full accumulated citation list. The payload
// replaces, not extends, whatever the client holds.
func EncodeAnnotations(annotations []relaymodel.Annotation) ([]byte, error) {
	return encodeMarkerLine(AnnotationsMarker, annotationsPayload{Type: "annotations", Data: annotations})
}

// EncodeMetadata frames the terminal summary.
func EncodeMetadata(md Metadata) ([]byte, error) {
	return encodeMarkerLine(MetadataMarker, metadataPayload{Type: "metadata", Data: md})
}

// EncodeError frames the terminal error signal.
func EncodeError(code, message string) ([]byte, error) {
	return encodeMarkerLine(ErrorMarker, errorPayload{Type: "error", Data: ErrorData{Code: code, Message: message}})
}

// MatchMarker reports which marker token the line starts with, if any, and
// the JSON remainder after it.
func MatchMarker(line string) (marker string, rest string, ok bool) {
	for _, m := range Markers {
		if strings.HasPrefix(line, m) {
			return m, line[len(m):], true
		}
	}
	return "", "", false
}

// DecodeReasoning parses the JSON remainder of a reasoning line.
func DecodeReasoning(rest string) (string, error) {
	var p reasoningPayload
	if err := json.Unmarshal([]byte(rest), &p); err != nil {
		return "", errors.Wrap(err, "decode reasoning payload")
	}
	return p.Data, nil
}

// DecodeAnnotations parses the JSON remainder of an annotations line.
func DecodeAnnotations(rest string) ([]relaymodel.Annotation, error) {
	var p annotationsPayload
	if err := json.Unmarshal([]byte(rest), &p); err != nil {
		return nil, errors.Wrap(err, "decode annotations payload")
	}
	return p.Data, nil
}

// DecodeMetadata parses the JSON remainder of a metadata line.
func DecodeMetadata(rest string) (Metadata, error) {
	var p metadataPayload
	if err := json.Unmarshal([]byte(rest), &p); err != nil {
		return Metadata{}, errors.Wrap(err, "decode metadata payload")
	}
	return p.Data, nil
}

// DecodeError parses the JSON remainder of an error line.
func DecodeError(rest string) (ErrorData, error) {
	var p errorPayload
	if err := json.Unmarshal([]byte(rest), &p); err != nil {
		return ErrorData{}, errors.Wrap(err, "decode error payload")
	}
	return p.Data, nil
}
