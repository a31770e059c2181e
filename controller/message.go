package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/neatchat/neatchat/common/ctxkey"
	"github.com/neatchat/neatchat/middleware"
	dbmodel "github.com/neatchat/neatchat/model"
	"github.com/neatchat/neatchat/streamclient"
)

var messageStore streamclient.Persister = dbmodel.MessageStore{}

// SetMessageStore swaps the persistence collaborator, for tests.
func SetMessageStore(p streamclient.Persister) { messageStore = p }

// GetMessages handles GET /api/messages?session_id=...: the caller's own
// turns in that session, oldest first.
func GetMessages(c *gin.Context) {
	userId := c.GetInt(ctxkey.UserId)
	if userId <= 0 {
		middleware.AbortWithError(c, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	sessionId := c.Query("session_id")
	if sessionId == "" {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("missing required query parameter: session_id"))
		return
	}

	messages, err := dbmodel.GetMessagesBySession(c.Request.Context(), sessionId, userId)
	if err != nil {
		gmw.GetLogger(c).Error("failed to load messages",
			zap.String("session_id", sessionId),
			zap.Error(err))
		middleware.AbortWithError(c, http.StatusInternalServerError, errors.New("failed to load messages"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

// SaveMessageRequest is the reassembled record a client hands back for
// persistence once its stream terminated.
type SaveMessageRequest struct {
	SessionId string                    `json:"session_id"`
	Message   streamclient.FinalMessage `json:"message"`
}

// SaveMessage handles POST /api/messages.
func SaveMessage(c *gin.Context) {
	userId := c.GetInt(ctxkey.UserId)
	if userId <= 0 {
		middleware.AbortWithError(c, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}

	var req SaveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.Wrap(err, "parse request"))
		return
	}
	if req.SessionId == "" {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("session_id must not be empty"))
		return
	}

	if err := messageStore.SaveFinalMessage(c.Request.Context(), req.SessionId, userId, &req.Message); err != nil {
		gmw.GetLogger(c).Error("failed to persist message",
			zap.String("session_id", req.SessionId),
			zap.Error(err))
		middleware.AbortWithError(c, http.StatusInternalServerError, errors.New("failed to persist message"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
