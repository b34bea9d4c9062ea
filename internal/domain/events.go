package domain

type EventType string

const (
	EventNewMessage         EventType = "newMessage"
	EventOnlineUsersChanged EventType = "onlineUsersChanged"
)

// Event is a realtime payload pushed to connected clients.
type Event interface {
	Type() EventType
}

type NewMessageEvent struct {
	Message MessageView `json:"message"`
}

func (NewMessageEvent) Type() EventType { return EventNewMessage }

type OnlineUsersChangedEvent struct {
	UserIDs []string `json:"userIds"`
}

func (OnlineUsersChangedEvent) Type() EventType { return EventOnlineUsersChanged }
