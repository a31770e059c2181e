package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neatchat/neatchat/common/logger"
	relaymodel "github.com/neatchat/neatchat/relay/model"
	"github.com/neatchat/neatchat/relay/stream"
)

func encReasoning(t *testing.T, fragment string) []byte {
	t.Helper()
	line, err := stream.EncodeReasoning(fragment)
	require.NoError(t, err)
	return line
}

func encAnnotations(t *testing.T, anns []relaymodel.Annotation) []byte {
	t.Helper()
	line, err := stream.EncodeAnnotations(anns)
	require.NoError(t, err)
	return line
}

func encMetadata(t *testing.T, md stream.Metadata) []byte {
	t.Helper()
	line, err := stream.EncodeMetadata(md)
	require.NoError(t, err)
	return line
}

func encError(t *testing.T, code, message string) []byte {
	t.Helper()
	line, err := stream.EncodeError(code, message)
	require.NoError(t, err)
	return line
}

// buildWire assembles a backend stream: raw content bytes interleaved with
// envelope lines, exactly as the classifier emits them.
func buildWire(t *testing.T, parts ...interface{}) []byte {
	t.Helper()
	var w bytes.Buffer
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			w.WriteString(v)
		case []byte:
			w.Write(v)
		default:
			t.Fatalf("unsupported wire part %T", p)
		}
	}
	return w.Bytes()
}

func testMetadata() stream.Metadata {
	return stream.Metadata{
		Usage:        relaymodel.Usage{PromptTokens: 3, CompletionTokens: 7, TotalTokens: 10},
		ElapsedMs:    42,
		GenerationId: "gen-abc",
		Model:        "openai/gpt-4o-mini",
	}
}

func TestReassemblerBasicStream(t *testing.T) {
	md := testMetadata()
	wire := buildWire(t,
		encReasoning(t, "let me think"),
		"Hello",
		" world",
		encMetadata(t, md),
	)

	r := New(logger.Logger)
	require.NoError(t, r.Consume(context.Background(), bytes.NewReader(wire)))

	final := r.Final()
	assert.Equal(t, "Hello world", final.Content)
	assert.Equal(t, "let me think", final.Reasoning)
	assert.False(t, final.Incomplete)
	require.NotNil(t, final.Metadata)
	assert.Equal(t, md, *final.Metadata)
	assert.Zero(t, r.Violations())
}

func TestReassemblerPreservesContentNewlines(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"interior newline", "line one\nline two"},
		{"trailing newline", "ends with break\n"},
		{"double newline", "para one\n\npara two"},
		{"only newlines", "\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := buildWire(t,
				tt.content,
				encMetadata(t, testMetadata()),
			)
			r := New(logger.Logger)
			require.NoError(t, r.Consume(context.Background(), bytes.NewReader(wire)))
			assert.Equal(t, tt.content, r.Final().Content)
		})
	}
}

func TestReassemblerArbitraryFragmentation(t *testing.T) {
	md := testMetadata()
	wire := buildWire(t,
		"The answer\nhas two lines",
		encReasoning(t, "checking sources"),
		" and a tail",
		encMetadata(t, md),
	)

	// every two-way split must reassemble to the identical record,
	// including splits in the middle of a marker token
	reference := consumeWhole(t, wire)
	for cut := 0; cut <= len(wire); cut++ {
		r := New(logger.Logger)
		_, err := r.Write(wire[:cut])
		require.NoError(t, err)
		_, err = r.Write(wire[cut:])
		require.NoError(t, err)
		r.Close()
		assert.Equal(t, reference, r.Final(), "split at byte %d", cut)
	}
}

func TestReassemblerPartialFailure(t *testing.T) {
	// three content fragments, then the connection drops: no terminal
	// envelope ever arrives
	wire := buildWire(t, "first ", "second ", "third")

	r := New(logger.Logger)
	require.NoError(t, r.Consume(context.Background(), bytes.NewReader(wire)))

	final := r.Final()
	assert.Equal(t, "first second third", final.Content)
	assert.True(t, final.Incomplete)
	assert.Nil(t, final.Metadata)
	assert.Nil(t, final.Error)
}

func TestReassemblerErrorSignal(t *testing.T) {
	wire := buildWire(t,
		"partial output",
		encError(t, stream.ErrCodeUpstreamInterrupted, "provider dropped"),
	)

	r := New(logger.Logger)
	require.NoError(t, r.Consume(context.Background(), bytes.NewReader(wire)))

	final := r.Final()
	assert.Equal(t, "partial output", final.Content)
	require.NotNil(t, final.Error)
	assert.Equal(t, stream.ErrCodeUpstreamInterrupted, final.Error.Code)
	assert.True(t, final.Incomplete, "an error terminal still leaves the message incomplete")
	assert.True(t, r.Terminal())
}

func TestReassemblerFinalIsIdempotent(t *testing.T) {
	wire := buildWire(t,
		"stable",
		encMetadata(t, testMetadata()),
	)

	r := New(logger.Logger)
	require.NoError(t, r.Consume(context.Background(), bytes.NewReader(wire)))

	first := r.Final()
	second := r.Final()
	assert.Same(t, first, second)

	// a fresh pass over the same bytes yields an identical record
	again := New(logger.Logger)
	require.NoError(t, again.Consume(context.Background(), bytes.NewReader(wire)))
	assert.Equal(t, first, again.Final())
}

func TestReassemblerIgnoresEnvelopesAfterTerminal(t *testing.T) {
	wire := buildWire(t,
		"done",
		encMetadata(t, testMetadata()),
		encReasoning(t, "too late"),
		"stray content",
	)

	r := New(logger.Logger)
	require.NoError(t, r.Consume(context.Background(), bytes.NewReader(wire)))

	final := r.Final()
	assert.Equal(t, "done", final.Content)
	assert.Empty(t, final.Reasoning)
	assert.Equal(t, 2, r.Violations())
}

func TestReassemblerSkipsMalformedEnvelope(t *testing.T) {
	wire := buildWire(t,
		"\n"+stream.ReasoningMarker+"{not json}\n",
		"still here",
		encMetadata(t, testMetadata()),
	)

	r := New(logger.Logger)
	require.NoError(t, r.Consume(context.Background(), bytes.NewReader(wire)))

	final := r.Final()
	assert.Equal(t, "still here", final.Content)
	assert.Empty(t, final.Reasoning)
	assert.Equal(t, 1, r.Violations())
	assert.False(t, final.Incomplete)
}

func TestReassemblerAnnotationsReplaceWholesale(t *testing.T) {
	first := []relaymodel.Annotation{{URL: "https://a.example", Title: "A"}}
	grown := []relaymodel.Annotation{
		{URL: "https://a.example", Title: "A"},
		{URL: "https://b.example", Title: "B"},
	}
	wire := buildWire(t,
		encAnnotations(t, first),
		"cited text",
		encAnnotations(t, grown),
		encMetadata(t, testMetadata()),
	)

	r := New(logger.Logger)
	require.NoError(t, r.Consume(context.Background(), bytes.NewReader(wire)))
	assert.Equal(t, grown, r.Final().Annotations)
}

// TestClassifierRoundTrip feeds an upstream SSE body through the classifier
// and the resulting wire through the reassembler, asserting the client sees
// exactly the text the provider sent, with reasoning rerouted.
func TestClassifierRoundTrip(t *testing.T) {
	deltas := []string{
		"First paragraph.\n",
		"\nSecond with <think>hidden chain",
		" of thought</think> visible tail",
		"\nthird line",
	}
	var body strings.Builder
	for _, d := range deltas {
		ev := relaymodel.StreamEvent{
			Id:      "gen-rt",
			Choices: []relaymodel.StreamChoice{{Delta: relaymodel.Delta{Content: d}}},
		}
		raw, err := json.Marshal(ev)
		require.NoError(t, err)
		body.WriteString("data: ")
		body.Write(raw)
		body.WriteString("\n\n")
	}
	body.WriteString("data: [DONE]\n\n")

	var wire bytes.Buffer
	cl := stream.NewClassifier(logger.Logger, "openai/gpt-4o", 4, func(p []byte) error {
		_, err := wire.Write(p)
		return err
	})
	_, err := cl.Run(context.Background(), strings.NewReader(body.String()))
	require.NoError(t, err)

	r := New(logger.Logger)
	require.NoError(t, r.Consume(context.Background(), bytes.NewReader(wire.Bytes())))

	final := r.Final()
	assert.Equal(t, "First paragraph.\n\nSecond with  visible tail\nthird line", final.Content)
	assert.Equal(t, "hidden chain of thought", final.Reasoning)
	assert.False(t, final.Incomplete)
	require.NotNil(t, final.Metadata)
	assert.Equal(t, "gen-rt", final.Metadata.GenerationId)
}

func consumeWhole(t *testing.T, wire []byte) *FinalMessage {
	t.Helper()
	r := New(logger.Logger)
	require.NoError(t, r.Consume(context.Background(), bytes.NewReader(wire)))
	return r.Final()
}
