package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/neatchat/neatchat/common/helper"
	relaymodel "github.com/neatchat/neatchat/relay/model"
)

const (
	dataPrefix = "data: "
	doneToken  = "[DONE]"
)

// scanBufferSize bounds a single upstream SSE line. Providers pack whole
// annotation lists into one event, so the default 64KB is not enough.
const scanBufferSize = 1024 * 1024

// Emitter writes one already-framed chunk to the outbound response and
// flushes it, so envelopes reach the client as early as the upstream produced
// them. It returns an error once the client is gone.
type Emitter func(data []byte) error

// Result summarizes a finished classification pass.
type Result struct {
	// Outcome is one of completed, interrupted, cancelled.
	Outcome string
	Usage   relaymodel.Usage
	// Events is the number of upstream events processed.
	Events int
}

// Classifier demultiplexes the provider's single byte stream into the wire
// envelope channels. All marker detection and content-purity stripping lives
// here; nothing downstream ever needs to clean visible text.
//
// Not safe for concurrent use; create one per request.
type Classifier struct {
	logger glog.Logger
	emit   Emitter

	requestModel string
	promptTokens int

	contentB    strings.Builder
	reasoningB  strings.Builder
	annotations []relaymodel.Annotation
	usage       *relaymodel.Usage

	generationId  string
	resolvedModel string

	splitter     thinkSplitter
	events       int
	terminalSent bool
	start        time.Time
}

// NewClassifier builds a classifier for one session. promptTokens feeds the
// usage fallback when the upstream trailing summary omits token counts.
func NewClassifier(logger glog.Logger, requestModel string, promptTokens int, emit Emitter) *Classifier {
	c := &Classifier{
		logger:       logger,
		emit:         emit,
		requestModel: requestModel,
		promptTokens: promptTokens,
		start:        time.Now(),
	}
	c.contentB.Grow(4096)
	c.reasoningB.Grow(4096)
	return c
}

// Run consumes the upstream body incrementally until it ends, emitting
// envelopes as it goes, and terminates the stream with exactly one
// FinalMetadata or ErrorSignal envelope. The returned error is for logging;
// by the time Run returns, the client has already received its terminal
// signal.
func (cl *Classifier) Run(ctx context.Context, body io.Reader) (Result, error) {
	scanner := bufio.NewScanner(body)
	buffer := make([]byte, scanBufferSize)
	scanner.Buffer(buffer, len(buffer))
	scanner.Split(bufio.ScanLines)

	for scanner.Scan() {
		data := normalizeDataLine(scanner.Text())
		if !strings.HasPrefix(data, dataPrefix) {
			continue
		}
		payload := data[len(dataPrefix):]
		if strings.HasPrefix(payload, doneToken) {
			// the trailing usage event may have arrived already; keep scanning
			// in case a late summary follows a nonconforming provider's DONE
			continue
		}

		var ev relaymodel.StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			cl.logger.Warn("failed to parse upstream event, skipping",
				zap.String("payload", payload),
				zap.Error(err))
			continue
		}
		if ev.Error != nil {
			return cl.fail(ErrCodeUpstreamInterrupted, ev.Error.Message)
		}
		if err := cl.handleEvent(&ev); err != nil {
			return Result{Outcome: "cancelled", Events: cl.events}, errors.Wrap(err, "write envelope")
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			// client walked away; nothing to signal, nobody is listening
			return Result{Outcome: "cancelled", Events: cl.events}, errors.Wrap(ctx.Err(), "client disconnected")
		}
		res, _ := cl.fail(ErrCodeUpstreamInterrupted, "upstream connection dropped")
		return res, errors.Wrap(err, "read upstream stream")
	}

	if err := cl.flushSplitter(); err != nil {
		return Result{Outcome: "cancelled", Events: cl.events}, errors.Wrap(err, "write envelope")
	}
	return cl.finalize()
}

// handleEvent demuxes one upstream event. Reasoning and annotation deltas are
// inspected before the remainder is treated as visible text: a single event
// commonly carries both.
func (cl *Classifier) handleEvent(ev *relaymodel.StreamEvent) error {
	cl.events++
	if ev.Id != "" {
		cl.generationId = ev.Id
	}
	if ev.Model != "" {
		cl.resolvedModel = ev.Model
	}
	if ev.Usage != nil {
		cl.usage = ev.Usage
	}

	for i := range ev.Choices {
		delta := &ev.Choices[i].Delta

		if r := delta.ReasoningDelta(); r != "" {
			if err := cl.emitReasoning(r); err != nil {
				return err
			}
		}

		if len(delta.Annotations) > 0 {
			// the provider resends the complete, growing list every time;
			// replace wholesale, never append
			cl.annotations = relaymodel.FlattenAnnotations(delta.Annotations)
			line, err := EncodeAnnotations(cl.annotations)
			if err != nil {
				return err
			}
			if err := cl.emit(line); err != nil {
				return err
			}
		}

		if delta.Content != "" {
			visible, thought := cl.splitter.Feed(delta.Content)
			if thought != "" {
				if err := cl.emitReasoning(thought); err != nil {
					return err
				}
			}
			if visible != "" {
				if err := cl.emitContent(visible); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (cl *Classifier) emitContent(visible string) error {
	cl.contentB.WriteString(visible)
	return cl.emit([]byte(visible))
}

func (cl *Classifier) emitReasoning(fragment string) error {
	cl.reasoningB.WriteString(fragment)
	line, err := EncodeReasoning(fragment)
	if err != nil {
		return err
	}
	return cl.emit(line)
}

// flushSplitter releases a held-back partial tag at end of stream.
func (cl *Classifier) flushSplitter() error {
	visible, thought := cl.splitter.Flush()
	if thought != "" {
		if err := cl.emitReasoning(thought); err != nil {
			return err
		}
	}
	if visible != "" {
		if err := cl.emitContent(visible); err != nil {
			return err
		}
	}
	return nil
}

// finalize emits the single FinalMetadata envelope. The upstream trailing
// summary is authoritative; the locally accumulated buffers only fill the
// holes some providers leave.
func (cl *Classifier) finalize() (Result, error) {
	usage := cl.usage
	if usage == nil {
		cl.logger.Warn("upstream omitted usage, computing from accumulated buffers",
			zap.String("model", cl.modelName()),
			zap.Int("content_len", cl.contentB.Len()),
			zap.Int("reasoning_len", cl.reasoningB.Len()))
		completion := CountTokenText(cl.contentB.String(), cl.modelName()) +
			CountTokenText(cl.reasoningB.String(), cl.modelName())
		usage = &relaymodel.Usage{
			PromptTokens:     cl.promptTokens,
			CompletionTokens: completion,
			TotalTokens:      cl.promptTokens + completion,
		}
	} else {
		if usage.PromptTokens == 0 {
			usage.PromptTokens = cl.promptTokens
		}
		if usage.CompletionTokens == 0 {
			usage.CompletionTokens = CountTokenText(cl.contentB.String(), cl.modelName()) +
				CountTokenText(cl.reasoningB.String(), cl.modelName())
		}
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
	}

	md := Metadata{
		Usage:        *usage,
		ElapsedMs:    helper.CalcElapsedTime(cl.start),
		GenerationId: cl.generationId,
		Model:        cl.modelName(),
	}
	line, err := EncodeMetadata(md)
	if err != nil {
		return Result{Outcome: "interrupted", Events: cl.events}, err
	}
	if err := cl.emit(line); err != nil {
		return Result{Outcome: "cancelled", Events: cl.events}, errors.Wrap(err, "write terminal metadata")
	}
	cl.terminalSent = true
	return Result{Outcome: "completed", Usage: *usage, Events: cl.events}, nil
}

// fail emits the terminal ErrorSignal. No further envelopes follow.
func (cl *Classifier) fail(code, message string) (Result, error) {
	if !cl.terminalSent {
		if line, err := EncodeError(code, message); err == nil {
			if err := cl.emit(line); err != nil {
				cl.logger.Debug("client gone before error signal", zap.Error(err))
			}
		}
		cl.terminalSent = true
	}
	return Result{Outcome: "interrupted", Events: cl.events}, errors.Errorf("upstream stream failed: %s", message)
}

func (cl *Classifier) modelName() string {
	if cl.resolvedModel != "" {
		return cl.resolvedModel
	}
	return cl.requestModel
}

// normalizeDataLine canonicalizes SSE data lines so both "data:" and
// "data: " prefixes parse identically.
func normalizeDataLine(line string) string {
	if strings.HasPrefix(line, "data:") {
		content := strings.TrimLeft(line[len("data:"):], " ")
		return dataPrefix + content
	}
	return strings.TrimSpace(line)
}
