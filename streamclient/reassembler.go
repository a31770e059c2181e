// Package streamclient consumes the backend's newline-delimited envelope
// stream and reassembles it into one structured message. It is the Go
// counterpart of the browser consumer: three independently growing buffers
// (content, reasoning, annotations) plus a terminal metadata or error result,
// updated incrementally as bytes arrive.
package streamclient

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	relaymodel "github.com/neatchat/neatchat/relay/model"
	"github.com/neatchat/neatchat/relay/stream"
)

// FinalMessage is the immutable record produced once the stream terminates.
// Incomplete marks streams that ended without a FinalMetadata envelope; their
// partial content is preserved, never discarded.
type FinalMessage struct {
	Content     string                  `json:"content"`
	Reasoning   string                  `json:"reasoning,omitempty"`
	Annotations []relaymodel.Annotation `json:"annotations,omitempty"`
	Metadata    *stream.Metadata        `json:"metadata,omitempty"`
	Error       *stream.ErrorData       `json:"error,omitempty"`
	Incomplete  bool                    `json:"incomplete,omitempty"`
}

// Persister is the message-persistence collaborator the final record is
// handed to. The pipeline itself persists nothing.
type Persister interface {
	SaveFinalMessage(ctx context.Context, sessionId string, userId int, msg *FinalMessage) error
}

// Reassembler incrementally demultiplexes the wire stream. Feed it bytes via
// Write (any fragmentation is fine; lines split across read boundaries are
// buffered until the terminator arrives), then Close at end of stream and
// collect the record with Final.
//
// Not safe for concurrent use; one instance per active message.
type Reassembler struct {
	logger glog.Logger

	buf []byte
	// pendingSep records a newline after a content line whose meaning is not
	// yet known: it is a real content newline only if the next line is also
	// content; before a marker line it is envelope framing and is dropped.
	pendingSep bool
	// midLine is set when the open line has already been classified as
	// content and partially emitted; bytes up to the next terminator belong
	// to it, and no marker can start inside it.
	midLine bool

	content     strings.Builder
	reasoning   strings.Builder
	annotations []relaymodel.Annotation
	metadata    *stream.Metadata
	errData     *stream.ErrorData

	terminal   bool
	closed     bool
	violations int

	final *FinalMessage
}

func New(logger glog.Logger) *Reassembler {
	return &Reassembler{logger: logger}
}

// Consume drains reader into the reassembler until EOF or ctx cancellation,
// then closes it. The underlying network error, if any, is returned after the
// partial output has been secured.
func (r *Reassembler) Consume(ctx context.Context, reader io.Reader) error {
	chunk := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			r.Close()
			return errors.Wrap(err, "consume stream")
		}
		n, err := reader.Read(chunk)
		if n > 0 {
			if _, werr := r.Write(chunk[:n]); werr != nil {
				r.Close()
				return werr
			}
		}
		if err == io.EOF {
			r.Close()
			return nil
		}
		if err != nil {
			r.Close()
			return errors.Wrap(err, "read stream")
		}
	}
}

// Write implements io.Writer. It never fails; malformed envelopes are logged
// and skipped so the rest of the stream stays salvageable.
func (r *Reassembler) Write(p []byte) (int, error) {
	r.buf = append(r.buf, p...)
	r.process()
	return len(p), nil
}

func (r *Reassembler) process() {
	for {
		if r.midLine {
			idx := bytes.IndexByte(r.buf, '\n')
			if idx < 0 {
				r.content.Write(r.buf)
				r.buf = r.buf[:0]
				return
			}
			r.content.Write(r.buf[:idx])
			r.buf = r.buf[idx+1:]
			r.midLine = false
			r.pendingSep = true
			continue
		}

		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			// open line with no terminator yet: hold it back if it still
			// might become a marker line, otherwise it is content we can
			// surface immediately. After the terminal envelope nothing is
			// surfaced early; the completed line is flagged in handleLine.
			if len(r.buf) == 0 || r.terminal || couldBeMarkerLine(r.buf) {
				return
			}
			r.beginContent()
			r.content.Write(r.buf)
			r.buf = r.buf[:0]
			r.midLine = true
			return
		}

		line := string(r.buf[:idx])
		r.buf = r.buf[idx+1:]
		r.handleLine(line)
	}
}

func (r *Reassembler) handleLine(line string) {
	if marker, rest, ok := stream.MatchMarker(line); ok {
		// the newline that framed this envelope was a delimiter, not content
		r.pendingSep = false
		if r.terminal {
			// protocol violation: envelopes after the terminal one
			r.violations++
			r.logger.Warn("envelope after terminal, ignoring", zap.String("marker", marker))
			return
		}
		r.handleMarker(marker, rest)
		return
	}

	if r.terminal {
		if line != "" {
			r.violations++
			r.logger.Warn("content after terminal envelope, ignoring")
		}
		return
	}
	r.beginContent()
	r.content.WriteString(line)
	r.pendingSep = true
}

// beginContent resolves a deferred separator: the previous content line's
// newline is real because this line is content too.
func (r *Reassembler) beginContent() {
	if r.pendingSep {
		r.content.WriteByte('\n')
		r.pendingSep = false
	}
}

func (r *Reassembler) handleMarker(marker, rest string) {
	switch marker {
	case stream.ReasoningMarker:
		data, err := stream.DecodeReasoning(rest)
		if err != nil {
			r.skipMalformed(marker, err)
			return
		}
		r.reasoning.WriteString(data)
	case stream.AnnotationsMarker:
		data, err := stream.DecodeAnnotations(rest)
		if err != nil {
			r.skipMalformed(marker, err)
			return
		}
		// snapshot semantics: replace, never merge
		r.annotations = data
	case stream.MetadataMarker:
		data, err := stream.DecodeMetadata(rest)
		if err != nil {
			r.skipMalformed(marker, err)
			return
		}
		r.metadata = &data
		r.terminal = true
	case stream.ErrorMarker:
		data, err := stream.DecodeError(rest)
		if err != nil {
			r.skipMalformed(marker, err)
			return
		}
		r.errData = &data
		r.terminal = true
	}
}

func (r *Reassembler) skipMalformed(marker string, err error) {
	r.violations++
	r.logger.Warn("malformed envelope, skipping",
		zap.String("marker", marker),
		zap.Error(err))
}

// Close flushes the unterminated tail, if any. A complete marker line missing
// only its trailing newline is still honored; anything else is content.
func (r *Reassembler) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if len(r.buf) > 0 {
		r.handleLine(string(r.buf))
		r.buf = nil
	}
}

// Violations reports how many malformed or out-of-order envelopes were
// skipped.
func (r *Reassembler) Violations() int {
	return r.violations
}

// Terminal reports whether a FinalMetadata or ErrorSignal envelope arrived.
func (r *Reassembler) Terminal() bool {
	return r.terminal
}

// Snapshot views for incremental UI rendering. Each channel grows
// independently; no cross-channel ordering is implied.
func (r *Reassembler) Content() string                      { return r.content.String() }
func (r *Reassembler) Reasoning() string                    { return r.reasoning.String() }
func (r *Reassembler) Annotations() []relaymodel.Annotation { return r.annotations }

// Final assembles the immutable message record. The first call freezes it;
// every later call returns the same record.
func (r *Reassembler) Final() *FinalMessage {
	if r.final != nil {
		return r.final
	}
	r.Close()
	r.final = &FinalMessage{
		Content:     r.content.String(),
		Reasoning:   r.reasoning.String(),
		Annotations: r.annotations,
		Metadata:    r.metadata,
		Error:       r.errData,
		Incomplete:  r.metadata == nil,
	}
	return r.final
}

// couldBeMarkerLine reports whether buf, sitting at a line start without a
// terminator yet, is a prefix of a marker token or already begins with one.
// Either way the line cannot be classified until it completes.
func couldBeMarkerLine(buf []byte) bool {
	for _, m := range stream.Markers {
		if len(buf) < len(m) {
			if strings.HasPrefix(m, string(buf)) {
				return true
			}
			continue
		}
		if strings.HasPrefix(string(buf), m) {
			return true
		}
	}
	return false
}
