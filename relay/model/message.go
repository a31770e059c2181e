package model

// Message is one chat turn sent to the upstream provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Plugin activates a provider-side augmentation, e.g. {"id":"web"} for
// search-grounded completions.
type Plugin struct {
	Id string `json:"id"`
}

// ReasoningOptions asks the provider to stream its thinking alongside the
// visible answer.
type ReasoningOptions struct {
	Effort  string `json:"effort,omitempty"`
	Enabled bool   `json:"enabled"`
}

// ChatRequest is the completion request body sent upstream. Stream is always
// true on the relay path.
type ChatRequest struct {
	Model     string            `json:"model"`
	Messages  []Message         `json:"messages"`
	Stream    bool              `json:"stream"`
	Usage     *UsageRequest     `json:"usage,omitempty"`
	Plugins   []Plugin          `json:"plugins,omitempty"`
	Reasoning *ReasoningOptions `json:"reasoning,omitempty"`
}

// UsageRequest opts in to the trailing usage summary on streamed responses.
type UsageRequest struct {
	Include bool `json:"include"`
}

// Annotation is one citation attached to assistant output. Start/end offsets
// index into the final assembled content string, not any single fragment.
type Annotation struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Content    string `json:"content,omitempty"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// UpstreamAnnotation is the provider's citation shape; only url_citation
// entries are understood.
type UpstreamAnnotation struct {
	Type        string       `json:"type"`
	URLCitation *URLCitation `json:"url_citation,omitempty"`
}

type URLCitation struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Content    string `json:"content,omitempty"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// FlattenAnnotations converts the provider citation list into wire annotations, dropping
// entries of unknown type.
func FlattenAnnotations(ups []UpstreamAnnotation) []Annotation {
	out := make([]Annotation, 0, len(ups))
	for _, ua := range ups {
		if ua.Type != "url_citation" || ua.URLCitation == nil {
			continue
		}
		out = append(out, Annotation{
			URL:        ua.URLCitation.URL,
			Title:      ua.URLCitation.Title,
			Content:    ua.URLCitation.Content,
			StartIndex: ua.URLCitation.StartIndex,
			EndIndex:   ua.URLCitation.EndIndex,
		})
	}
	return out
}

// Delta is the incremental payload inside one upstream event. A single event
// commonly carries a visible-text fragment and a reasoning fragment at once,
// so every field must be inspected before the rest is treated as content.
type Delta struct {
	Content          string               `json:"content,omitempty"`
	Reasoning        *string              `json:"reasoning,omitempty"`
	ReasoningContent *string              `json:"reasoning_content,omitempty"`
	Annotations      []UpstreamAnnotation `json:"annotations,omitempty"`
}

// ReasoningDelta returns the reasoning fragment regardless of which field the
// provider used for it.
func (d *Delta) ReasoningDelta() string {
	if d.Reasoning != nil && *d.Reasoning != "" {
		return *d.Reasoning
	}
	if d.ReasoningContent != nil {
		return *d.ReasoningContent
	}
	return ""
}

type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// StreamEvent is one decoded SSE data payload from the provider.
type StreamEvent struct {
	Id      string         `json:"id"`
	Model   string         `json:"model,omitempty"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

// Usage is the token usage block echoed by the provider, usually only on the
// trailing summary event.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type Error struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
	// RawError preserves the original upstream or internal error for diagnostics.
	// Omitted from JSON to avoid leaking provider internals.
	RawError error `json:"-"`
}

type ErrorWithStatusCode struct {
	Error
	StatusCode int `json:"status_code"`
}
