package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"

	"github.com/neatchat/neatchat/common/config"
	relaymodel "github.com/neatchat/neatchat/relay/model"
)

// Client opens streaming completion requests against the OpenAI-compatible
// provider endpoint. It holds no per-request state and is safe for concurrent
// use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: config.RelayTimeout(),
		},
	}
}

// NewDefaultClient builds a client from the process configuration.
func NewDefaultClient() *Client {
	return NewClient(config.UpstreamBaseURL, config.UpstreamAPIKey)
}

// StreamCompletion sends the chat request with stream forced on and returns
// the provider's response with its body still open. The caller owns the body
// and must close it; ctx cancellation (e.g. browser disconnect) aborts the
// request mid-stream.
func (cl *Client) StreamCompletion(ctx context.Context, req *relaymodel.ChatRequest) (*http.Response, *relaymodel.ErrorWithStatusCode) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, wrapError(err, "marshal_request_failed", http.StatusInternalServerError)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cl.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, wrapError(err, "create_request_failed", http.StatusInternalServerError)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if cl.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cl.apiKey)
	}

	resp, err := cl.http.Do(httpReq)
	if err != nil {
		// connection failed before any bytes arrived
		return nil, wrapError(errors.Wrap(err, "open upstream stream"), "upstream_unavailable", http.StatusBadGateway)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, decodeErrorResponse(resp)
	}
	return resp, nil
}

func wrapError(err error, code string, status int) *relaymodel.ErrorWithStatusCode {
	return &relaymodel.ErrorWithStatusCode{
		Error: relaymodel.Error{
			Message:  err.Error(),
			Type:     "neatchat_error",
			Code:     code,
			RawError: err,
		},
		StatusCode: status,
	}
}

// decodeErrorResponse maps a non-200 upstream reply to a stable error shape
// without leaking provider internals beyond the message text.
func decodeErrorResponse(resp *http.Response) *relaymodel.ErrorWithStatusCode {
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return wrapError(errors.Wrap(err, "read upstream error body"), "upstream_unavailable", resp.StatusCode)
	}
	var parsed struct {
		Error *relaymodel.Error `json:"error"`
	}
	if err := json.Unmarshal(payload, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return &relaymodel.ErrorWithStatusCode{Error: *parsed.Error, StatusCode: resp.StatusCode}
	}
	return wrapError(errors.Errorf("upstream returned status %d", resp.StatusCode), "upstream_unavailable", resp.StatusCode)
}
