package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/neatchat/neatchat/common/ctxkey"
	dbmodel "github.com/neatchat/neatchat/model"
	"github.com/neatchat/neatchat/streamclient"
)

type recordingPersister struct {
	sessionId string
	userId    int
	msg       *streamclient.FinalMessage
	err       error
}

func (p *recordingPersister) SaveFinalMessage(_ context.Context, sessionId string, userId int, msg *streamclient.FinalMessage) error {
	p.sessionId = sessionId
	p.userId = userId
	p.msg = msg
	return p.err
}

func messageRouter(userId int) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userId > 0 {
			c.Set(ctxkey.UserId, userId)
		}
		c.Next()
	})
	router.GET("/api/messages", GetMessages)
	router.POST("/api/messages", SaveMessage)
	return router
}

func TestSaveMessagePersistsRecord(t *testing.T) {
	p := &recordingPersister{}
	SetMessageStore(p)
	defer SetMessageStore(dbmodel.MessageStore{})

	body := `{"session_id":"sess-1","message":{"content":"saved","reasoning":"why","incomplete":false}}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	messageRouter(42).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-1", p.sessionId)
	assert.Equal(t, 42, p.userId)
	require.NotNil(t, p.msg)
	assert.Equal(t, "saved", p.msg.Content)
}

func TestSaveMessageRequiresAuth(t *testing.T) {
	body := `{"session_id":"sess-1","message":{"content":"x"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	w := httptest.NewRecorder()
	messageRouter(0).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSaveMessageRequiresSessionId(t *testing.T) {
	body := `{"message":{"content":"x"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	w := httptest.NewRecorder()
	messageRouter(42).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMessagesReturnsOwnSessionOnly(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&dbmodel.Message{}))
	originalDB := dbmodel.DB
	dbmodel.DB = gdb
	defer func() { dbmodel.DB = originalDB }()

	ctx := context.Background()
	require.NoError(t, dbmodel.SaveUserMessage(ctx, "sess-9", 42, "from owner", "openai/gpt-4o-mini"))
	require.NoError(t, dbmodel.SaveUserMessage(ctx, "sess-9", 7, "from stranger", "openai/gpt-4o-mini"))

	req := httptest.NewRequest(http.MethodGet, "/api/messages?session_id=sess-9", nil)
	w := httptest.NewRecorder()
	messageRouter(42).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "from owner")
	assert.NotContains(t, w.Body.String(), "from stranger")
}

func TestGetMessagesRequiresSessionId(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	w := httptest.NewRecorder()
	messageRouter(42).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
