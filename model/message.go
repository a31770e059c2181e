package model

import (
	"context"
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/neatchat/neatchat/common/helper"
	relaymodel "github.com/neatchat/neatchat/relay/model"
	"github.com/neatchat/neatchat/streamclient"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted turn of a conversation. Assistant turns carry the
// reassembled stream output; Incomplete marks turns whose stream ended before
// the final metadata envelope, with whatever partial content arrived.
type Message struct {
	Id               int    `json:"id"`
	SessionId        string `json:"session_id" gorm:"type:varchar(64);index:idx_session_created,priority:1"`
	UserId           int    `json:"user_id" gorm:"index"`
	Role             string `json:"role" gorm:"type:varchar(16)"`
	Content          string `json:"content" gorm:"type:text"`
	Reasoning        string `json:"reasoning,omitempty" gorm:"type:text"`
	Annotations      string `json:"annotations,omitempty" gorm:"type:text"`
	ModelName        string `json:"model_name" gorm:"index;default:''"`
	GenerationId     string `json:"generation_id" gorm:"type:varchar(64);default:''"`
	PromptTokens     int    `json:"prompt_tokens" gorm:"default:0"`
	CompletionTokens int    `json:"completion_tokens" gorm:"default:0"`
	ElapsedTime      int64  `json:"elapsed_time" gorm:"default:0"` // unit is ms
	Incomplete       bool   `json:"incomplete" gorm:"default:false"`
	CreatedAt        int64  `json:"created_at" gorm:"bigint;index:idx_session_created,priority:2"`
}

func (m *Message) Insert(ctx context.Context) error {
	if m.CreatedAt == 0 {
		m.CreatedAt = helper.GetTimestamp()
	}
	return errors.Wrap(DB.WithContext(ctx).Create(m).Error, "insert message")
}

// GetMessagesBySession returns a session's turns oldest first, scoped to the
// owning user so one user cannot read another's session by guessing its id.
func GetMessagesBySession(ctx context.Context, sessionId string, userId int) ([]*Message, error) {
	var messages []*Message
	err := DB.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionId, userId).
		Order("created_at asc").
		Find(&messages).Error
	return messages, errors.Wrap(err, "get messages by session")
}

// ParsedAnnotations decodes the stored annotation list. Empty column means no
// citations.
func (m *Message) ParsedAnnotations() ([]relaymodel.Annotation, error) {
	if m.Annotations == "" {
		return nil, nil
	}
	var anns []relaymodel.Annotation
	if err := json.Unmarshal([]byte(m.Annotations), &anns); err != nil {
		return nil, errors.Wrap(err, "parse annotations")
	}
	return anns, nil
}

// MessageStore adapts the messages table to the stream pipeline's persistence
// hook.
type MessageStore struct{}

var _ streamclient.Persister = (*MessageStore)(nil)

func (MessageStore) SaveFinalMessage(ctx context.Context, sessionId string, userId int, msg *streamclient.FinalMessage) error {
	record := &Message{
		SessionId:  sessionId,
		UserId:     userId,
		Role:       RoleAssistant,
		Content:    msg.Content,
		Reasoning:  msg.Reasoning,
		Incomplete: msg.Incomplete,
	}
	if len(msg.Annotations) > 0 {
		raw, err := json.Marshal(msg.Annotations)
		if err != nil {
			return errors.Wrap(err, "marshal annotations")
		}
		record.Annotations = string(raw)
	}
	if msg.Metadata != nil {
		record.ModelName = msg.Metadata.Model
		record.GenerationId = msg.Metadata.GenerationId
		record.PromptTokens = msg.Metadata.Usage.PromptTokens
		record.CompletionTokens = msg.Metadata.Usage.CompletionTokens
		record.ElapsedTime = msg.Metadata.ElapsedMs
	}
	return record.Insert(ctx)
}

// SaveUserMessage records the prompt side of a turn before the stream starts.
func SaveUserMessage(ctx context.Context, sessionId string, userId int, content, modelName string) error {
	record := &Message{
		SessionId: sessionId,
		UserId:    userId,
		Role:      RoleUser,
		Content:   content,
		ModelName: modelName,
	}
	return record.Insert(ctx)
}
