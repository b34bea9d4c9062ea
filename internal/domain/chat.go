package domain

import (
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Conversation struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Participants []primitive.ObjectID `bson:"participants" json:"participants"`
	PairKey      string               `bson:"pair_key,omitempty" json:"-"`
	LastMessage  *primitive.ObjectID  `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	CreatedAt    time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time            `bson:"updated_at" json:"updatedAt"`
}

func (c *Conversation) HasParticipant(id primitive.ObjectID) bool {
	return lo.Contains(c.Participants, id)
}

type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversationId"`
	Sender         primitive.ObjectID `bson:"sender" json:"sender"`
	Receiver       primitive.ObjectID `bson:"receiver" json:"receiver"`
	Body           string             `bson:"message" json:"message"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
}

// MessageView is a message with the sender's profile inlined.
type MessageView struct {
	ID             primitive.ObjectID `json:"_id"`
	ConversationID primitive.ObjectID `json:"conversationId"`
	Sender         PublicUser         `json:"sender"`
	Receiver       primitive.ObjectID `json:"receiver"`
	Body           string             `json:"message"`
	CreatedAt      time.Time          `json:"createdAt"`
}

func NewMessageView(m *Message, sender PublicUser) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Receiver:       m.Receiver,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

type ConversationView struct {
	ID           primitive.ObjectID `json:"_id"`
	Participants []PublicUser       `json:"participants"`
	LastMessage  *MessageView       `json:"lastMessage"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}
