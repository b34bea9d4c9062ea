package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fathima-sithara/libamarket/internal/apperr"
	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/fathima-sithara/libamarket/internal/metrics"
	"github.com/fathima-sithara/libamarket/internal/repository"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const msgConversationNotFound = "Conversation not found or you are not authorized"

type DeliveryOutcome string

const (
	DeliveryDelivered DeliveryOutcome = "delivered"
	DeliveryOffline   DeliveryOutcome = "offline"
	DeliveryDropped   DeliveryOutcome = "dropped"
)

// DeliveryResult describes a realtime push. It is logged and counted, never
// returned to callers.
type DeliveryResult struct {
	Outcome DeliveryOutcome
	Err     error
}

type MessagingService struct {
	store    ChatStore
	users    UserDirectory
	presence Presence
	events   EventPublisher
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewMessagingService(store ChatStore, users UserDirectory, p Presence, events EventPublisher, m *metrics.Metrics, log *zap.Logger) *MessagingService {
	return &MessagingService{store: store, users: users, presence: p, events: events, metrics: m, log: log}
}

// SendMessage persists the message first and only then attempts a realtime
// push to the receiver. The push outcome never changes the result.
func (s *MessagingService) SendMessage(ctx context.Context, senderID, receiverID, body string) (*domain.MessageView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation("Message content cannot be empty")
	}
	sender, err := domain.ParseID(senderID, "sender id")
	if err != nil {
		return nil, err
	}
	receiver, err := domain.ParseID(receiverID, "receiver id")
	if err != nil {
		return nil, err
	}
	if sender == receiver {
		return nil, apperr.Validation("You cannot send a message to yourself")
	}

	if _, err := s.users.FindByID(ctx, receiver); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("Receiver user not found")
		}
		return nil, fmt.Errorf("find receiver: %w", err)
	}
	senderUser, err := s.users.FindByID(ctx, sender)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("Sender not found")
		}
		return nil, fmt.Errorf("find sender: %w", err)
	}

	conv, err := s.findOrCreateConversation(ctx, sender, receiver)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.AppendMessage(ctx, conv.ID, sender, receiver, body)
	if err != nil {
		return nil, err
	}
	s.metrics.MessagesSent.Inc()

	view := domain.NewMessageView(msg, senderUser.Public())
	res := s.notifyBestEffort(receiver.Hex(), domain.NewMessageEvent{Message: view})
	s.metrics.Deliveries.WithLabelValues(string(res.Outcome)).Inc()
	if res.Err != nil {
		s.log.Debug("realtime push dropped", zap.String("receiver", receiver.Hex()), zap.Error(res.Err))
	}

	s.publishCreated(ctx, msg)
	return &view, nil
}

// findOrCreateConversation is a read then write. Two first messages racing
// on the same pair meet at the unique pair index and the loser re-reads.
func (s *MessagingService) findOrCreateConversation(ctx context.Context, a, b primitive.ObjectID) (*domain.Conversation, error) {
	conv, err := s.store.FindConversationByParticipants(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	conv, err = s.store.CreateConversation(ctx, a, b)
	if errors.Is(err, repository.ErrDuplicate) {
		return s.store.FindConversationByParticipants(ctx, a, b)
	}
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *MessagingService) notifyBestEffort(userID string, ev domain.Event) DeliveryResult {
	h, ok := s.presence.Lookup(userID)
	if !ok {
		return DeliveryResult{Outcome: DeliveryOffline}
	}
	if err := h.Deliver(ev); err != nil {
		return DeliveryResult{Outcome: DeliveryDropped, Err: err}
	}
	return DeliveryResult{Outcome: DeliveryDelivered}
}

func (s *MessagingService) publishCreated(ctx context.Context, msg *domain.Message) {
	if err := s.events.PublishMessageCreated(ctx, msg); err != nil {
		s.metrics.DomainEvents.WithLabelValues("failed").Inc()
		s.log.Warn("publish message.created", zap.String("message_id", msg.ID.Hex()), zap.Error(err))
		return
	}
	s.metrics.DomainEvents.WithLabelValues("published").Inc()
}

// GetMessages returns the conversation oldest first. Callers outside the
// conversation get the same error as for a missing one.
func (s *MessagingService) GetMessages(ctx context.Context, callerID, conversationID string) ([]domain.MessageView, error) {
	caller, err := domain.ParseID(callerID, "user id")
	if err != nil {
		return nil, err
	}
	convID, err := domain.ParseID(conversationID, "conversation id")
	if err != nil {
		return nil, err
	}

	conv, err := s.store.FindConversationByID(ctx, convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Authorization(msgConversationNotFound)
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if !conv.HasParticipant(caller) {
		return nil, apperr.Authorization(msgConversationNotFound)
	}

	msgs, err := s.store.ListMessages(ctx, convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Authorization(msgConversationNotFound)
		}
		return nil, fmt.Errorf("list messages: %w", err)
	}
	profiles, err := s.profiles(ctx, conv.Participants)
	if err != nil {
		return nil, err
	}
	return lo.Map(msgs, func(m domain.Message, _ int) domain.MessageView {
		return domain.NewMessageView(&m, profileOf(profiles, m.Sender))
	}), nil
}

// GetConversations lists the caller's conversations, most recently updated first.
func (s *MessagingService) GetConversations(ctx context.Context, callerID string) ([]domain.ConversationView, error) {
	caller, err := domain.ParseID(callerID, "user id")
	if err != nil {
		return nil, err
	}
	convs, err := s.store.ListConversationsForUser(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	ids := lo.Uniq(lo.FlatMap(convs, func(c domain.Conversation, _ int) []primitive.ObjectID {
		return c.Participants
	}))
	profiles, err := s.profiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ConversationView, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		if !c.HasParticipant(caller) {
			continue
		}
		last, err := s.resolveLastMessage(ctx, c)
		if err != nil {
			return nil, err
		}
		view := domain.ConversationView{
			ID: c.ID,
			Participants: lo.Map(c.Participants, func(id primitive.ObjectID, _ int) domain.PublicUser {
				return profileOf(profiles, id)
			}),
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		}
		if last != nil {
			mv := domain.NewMessageView(last, profileOf(profiles, last.Sender))
			view.LastMessage = &mv
		}
		out = append(out, view)
	}
	return out, nil
}

// resolveLastMessage follows the last_message hint and falls back to the
// newest stored message when the hint is missing or dangling.
func (s *MessagingService) resolveLastMessage(ctx context.Context, c *domain.Conversation) (*domain.Message, error) {
	if c.LastMessage != nil {
		m, err := s.store.FindMessageByID(ctx, *c.LastMessage)
		if err == nil && m.ConversationID == c.ID {
			return m, nil
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find last message: %w", err)
		}
	}
	m, err := s.store.LatestMessage(ctx, c.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	return m, nil
}

func (s *MessagingService) OnlineUsers() []string {
	return s.presence.OnlineUsers()
}

func (s *MessagingService) profiles(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]domain.PublicUser, error) {
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	return lo.SliceToMap(users, func(u domain.User) (primitive.ObjectID, domain.PublicUser) {
		return u.ID, u.Public()
	}), nil
}

// profileOf keeps the id for users that have since been deleted.
func profileOf(profiles map[primitive.ObjectID]domain.PublicUser, id primitive.ObjectID) domain.PublicUser {
	if p, ok := profiles[id]; ok {
		return p
	}
	return domain.PublicUser{ID: id}
}
