package controller

import (
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/neatchat/neatchat/common/config"
	"github.com/neatchat/neatchat/common/ctxkey"
	"github.com/neatchat/neatchat/common/helper"
	"github.com/neatchat/neatchat/common/random"
	"github.com/neatchat/neatchat/common/render"
	"github.com/neatchat/neatchat/middleware"
	dbmodel "github.com/neatchat/neatchat/model"
	"github.com/neatchat/neatchat/monitor"
	relaymodel "github.com/neatchat/neatchat/relay/model"
	"github.com/neatchat/neatchat/relay/stream"
	"github.com/neatchat/neatchat/relay/upstream"
)

// ChatStreamRequest is what the browser sends to start a completion. The
// session id groups turns; a missing one starts a new session.
type ChatStreamRequest struct {
	SessionId string               `json:"session_id"`
	Model     string               `json:"model"`
	Messages  []relaymodel.Message `json:"messages"`
	WebSearch bool                 `json:"web_search"`
	Reasoning bool                 `json:"reasoning"`
}

var upstreamClient = upstream.NewDefaultClient()

// SetUpstreamClient swaps the provider client, for tests.
func SetUpstreamClient(cl *upstream.Client) { upstreamClient = cl }

// ChatStream handles POST /v1/chat/stream: it opens the provider stream,
// demultiplexes it into the wire protocol, and relays the bytes to the
// browser as they arrive. The response is text/plain; side channels travel
// as marker-framed envelope lines.
func ChatStream(c *gin.Context) {
	lg := gmw.GetLogger(c)

	var req ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.Wrap(err, "parse request"))
		return
	}
	if len(req.Messages) == 0 {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("messages must not be empty"))
		return
	}
	if req.Model == "" {
		req.Model = config.DefaultModel
	}
	if req.SessionId == "" {
		req.SessionId = random.GetUUID()
	}
	c.Set(ctxkey.RequestModel, req.Model)
	c.Set(ctxkey.SessionId, req.SessionId)

	userId := c.GetInt(ctxkey.UserId)
	ctx := c.Request.Context()

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += stream.CountTokenText(m.Content, req.Model)
	}

	upstreamReq := &relaymodel.ChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
		Usage:    &relaymodel.UsageRequest{Include: true},
	}
	if req.WebSearch {
		upstreamReq.Plugins = []relaymodel.Plugin{{Id: "web"}}
	}
	if req.Reasoning {
		upstreamReq.Reasoning = &relaymodel.ReasoningOptions{Enabled: true}
	}

	if userId > 0 {
		prompt := req.Messages[len(req.Messages)-1]
		if err := dbmodel.SaveUserMessage(ctx, req.SessionId, userId, prompt.Content, req.Model); err != nil {
			// losing the prompt record must not block the completion
			lg.Error("failed to persist user message", zap.Error(err))
		}
	}

	resp, errResp := upstreamClient.StreamCompletion(ctx, upstreamReq)
	if errResp != nil {
		lg.Error("upstream request failed",
			zap.Int("status", errResp.StatusCode),
			zap.String("model", req.Model),
			zap.Error(errResp.RawError))
		c.JSON(errResp.StatusCode, gin.H{"error": errResp.Error})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	monitor.RecordStreamStarted()
	start := time.Now()
	render.SetStreamHeaders(c)
	c.Header("X-Session-Id", req.SessionId)

	classifier := stream.NewClassifier(lg, req.Model, promptTokens, func(data []byte) error {
		_, err := render.RawData(c, data)
		return err
	})
	result, err := classifier.Run(ctx, resp.Body)
	if err != nil {
		lg.Warn("stream ended abnormally",
			zap.String("outcome", result.Outcome),
			zap.String("session_id", req.SessionId),
			zap.Error(err))
	}
	monitor.RecordStreamFinished(result.Outcome, time.Since(start).Seconds())

	lg.Info("stream finished",
		zap.String("outcome", result.Outcome),
		zap.String("session_id", req.SessionId),
		zap.Int("events", result.Events),
		zap.Int("completion_tokens", result.Usage.CompletionTokens),
		zap.Int64("elapsed_ms", helper.CalcElapsedTime(start)))
}
