package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relaymodel "github.com/neatchat/neatchat/relay/model"
	"github.com/neatchat/neatchat/relay/stream"
	"github.com/neatchat/neatchat/relay/upstream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeProvider serves a canned SSE completion stream.
func fakeProvider(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req relaymodel.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, req.Stream, "relay always streams")

		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func providerContentEvent(text string) string {
	ev := relaymodel.StreamEvent{
		Id: "gen-test",
		Choices: []relaymodel.StreamChoice{
			{Delta: relaymodel.Delta{Content: text}},
		},
	}
	raw, _ := json.Marshal(ev)
	return string(raw)
}

func chatRouter() *gin.Engine {
	router := gin.New()
	router.POST("/v1/chat/stream", ChatStream)
	return router
}

func postChat(t *testing.T, router *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChatStreamRelaysContent(t *testing.T) {
	ts := fakeProvider(t,
		providerContentEvent("Hello "),
		providerContentEvent("world"),
	)
	defer ts.Close()
	SetUpstreamClient(upstream.NewClient(ts.URL, "test-key"))

	w := postChat(t, chatRouter(), ChatStreamRequest{
		Model:    "openai/gpt-4o-mini",
		Messages: []relaymodel.Message{{Role: "user", Content: "hi"}},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.NotEmpty(t, w.Header().Get("X-Session-Id"))

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "Hello world"))
	assert.Contains(t, body, "\n"+stream.MetadataMarker)
}

func TestChatStreamSessionIdPreserved(t *testing.T) {
	ts := fakeProvider(t, providerContentEvent("ok"))
	defer ts.Close()
	SetUpstreamClient(upstream.NewClient(ts.URL, "test-key"))

	w := postChat(t, chatRouter(), ChatStreamRequest{
		SessionId: "sess-keep",
		Messages:  []relaymodel.Message{{Role: "user", Content: "hi"}},
	})

	assert.Equal(t, "sess-keep", w.Header().Get("X-Session-Id"))
}

func TestChatStreamRejectsEmptyMessages(t *testing.T) {
	w := postChat(t, chatRouter(), ChatStreamRequest{Model: "openai/gpt-4o-mini"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamUpstreamFailurePassedThrough(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"provider down","type":"server_error"}}`)
	}))
	defer ts.Close()
	SetUpstreamClient(upstream.NewClient(ts.URL, "test-key"))

	w := postChat(t, chatRouter(), ChatStreamRequest{
		Messages: []relaymodel.Message{{Role: "user", Content: "hi"}},
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "provider down")
}

func TestChatStreamWebSearchEnablesPlugin(t *testing.T) {
	var sawPlugins []relaymodel.Plugin
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req relaymodel.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sawPlugins = req.Plugins
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", providerContentEvent("ok"))
	}))
	defer ts.Close()
	SetUpstreamClient(upstream.NewClient(ts.URL, "test-key"))

	w := postChat(t, chatRouter(), ChatStreamRequest{
		Messages:  []relaymodel.Message{{Role: "user", Content: "hi"}},
		WebSearch: true,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, sawPlugins, 1)
	assert.Equal(t, "web", sawPlugins[0].Id)
}
