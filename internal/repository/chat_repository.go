package repository

import (
	"context"
	"strings"
	"time"

	"github.com/fathima-sithara/libamarket/internal/apperr"
	"github.com/fathima-sithara/libamarket/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ChatRepository stores conversations and their messages.
type ChatRepository struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	log           *zap.Logger
	clock         func() time.Time
}

func NewChatRepository(db *mongo.Database, log *zap.Logger) *ChatRepository {
	return &ChatRepository{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
		log:           log,
		clock:         now,
	}
}

func (r *ChatRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetName("pair_key_unique").SetUnique(true).SetSparse(true),
		},
		{Keys: bson.D{{Key: "participants", Value: 1}}, Options: options.Index().SetName("participants_idx")},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}, Options: options.Index().SetName("updated_at_idx")},
	})
	if err != nil {
		return err
	}
	_, err = r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("conversation_created_idx"),
	})
	return err
}

// FindConversationByParticipants matches the pair in either stored order.
func (r *ChatRepository) FindConversationByParticipants(ctx context.Context, a, b primitive.ObjectID) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"participants": bson.M{"$all": bson.A{a, b}, "$size": 2}}
	var c domain.Conversation
	if err := r.conversations.FindOne(ctx, filter).Decode(&c); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *ChatRepository) FindConversationByID(ctx context.Context, id primitive.ObjectID) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var c domain.Conversation
	if err := r.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// CreateConversation does not look for an existing pair. The unique pair_key
// index turns a lost creation race into ErrDuplicate.
func (r *ChatRepository) CreateConversation(ctx context.Context, a, b primitive.ObjectID) (*domain.Conversation, error) {
	if a.IsZero() || b.IsZero() {
		return nil, apperr.Validation("Invalid participant id")
	}
	if a == b {
		return nil, apperr.Validation("A conversation needs two different participants")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pair := domain.SortedPair(a, b)
	ts := r.clock()
	c := &domain.Conversation{
		ID:           primitive.NewObjectID(),
		Participants: []primitive.ObjectID{pair[0], pair[1]},
		PairKey:      domain.PairKey(a, b),
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if _, err := r.conversations.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// AppendMessage inserts the message and then moves the conversation's
// last_message pointer. A failed pointer update is logged; the message stays.
func (r *ChatRepository) AppendMessage(ctx context.Context, conversationID, sender, receiver primitive.ObjectID, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation("Message content cannot be empty")
	}
	conv, err := r.FindConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if sender == receiver || !conv.HasParticipant(sender) || !conv.HasParticipant(receiver) {
		return nil, apperr.Validation("Sender and receiver must both belong to the conversation")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	m := &domain.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: conversationID,
		Sender:         sender,
		Receiver:       receiver,
		Body:           body,
		CreatedAt:      r.clock(),
	}
	if _, err := r.messages.InsertOne(ctx, m); err != nil {
		return nil, err
	}

	update := bson.M{"$set": bson.M{"last_message": m.ID, "updated_at": m.CreatedAt}}
	if _, err := r.conversations.UpdateByID(ctx, conversationID, update); err != nil {
		r.log.Warn("last message pointer not updated",
			zap.String("conversation_id", conversationID.Hex()),
			zap.String("message_id", m.ID.Hex()),
			zap.Error(err))
	}
	return m, nil
}

// ListMessages returns the conversation's messages oldest first.
func (r *ChatRepository) ListMessages(ctx context.Context, conversationID primitive.ObjectID) ([]domain.Message, error) {
	if _, err := r.FindConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ChatRepository) ListConversationsForUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Conversation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ChatRepository) FindMessageByID(ctx context.Context, id primitive.ObjectID) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var m domain.Message
	if err := r.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// LatestMessage reads the newest message directly, ignoring last_message.
func (r *ChatRepository) LatestMessage(ctx context.Context, conversationID primitive.ObjectID) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	var m domain.Message
	if err := r.messages.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}
