package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/fathima-sithara/libamarket/internal/metrics"
	"github.com/fathima-sithara/libamarket/internal/presence"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSocket struct {
	mu     sync.Mutex
	frames [][]byte
	closed chan struct{}
	once   sync.Once
}

func newFakeSocket() *fakeSocket { return &fakeSocket{closed: make(chan struct{})} }

func (f *fakeSocket) SetReadLimit(int64)                         {}
func (f *fakeSocket) SetReadDeadline(time.Time) error            { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error           { return nil }
func (f *fakeSocket) SetPongHandler(func(string) error)          {}
func (f *fakeSocket) WriteControl(int, []byte, time.Time) error { return nil }

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("use of closed network connection")
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeSocket) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type frame struct {
	Type    domain.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

func (f *fakeSocket) received(t *testing.T, typ domain.EventType) []json.RawMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, b := range f.frames {
		var fr frame
		require.NoError(t, json.Unmarshal(b, &fr))
		if fr.Type == typ {
			out = append(out, fr.Payload)
		}
	}
	return out
}

func (f *fakeSocket) lastOnlineUsers(t *testing.T) []string {
	t.Helper()
	payloads := f.received(t, domain.EventOnlineUsersChanged)
	if len(payloads) == 0 {
		return nil
	}
	var ev domain.OnlineUsersChangedEvent
	require.NoError(t, json.Unmarshal(payloads[len(payloads)-1], &ev))
	return ev.UserIDs
}

func testOptions() Options {
	return Options{
		PingInterval:   time.Hour,
		PongWait:       2 * time.Hour,
		WriteDeadline:  time.Second,
		MaxMessageSize: 1024,
		SendBuffer:     16,
	}
}

func newTestHub() (*Hub, *presence.Registry) {
	reg := presence.NewRegistry()
	return NewHub(reg, testOptions(), metrics.NewNop(), zap.NewNop()), reg
}

const wait, tick = 2 * time.Second, 5 * time.Millisecond

func TestHub(t *testing.T) {
	t.Run("should register an identified connection and announce it", func(t *testing.T) {
		req := require.New(t)
		hub, reg := newTestHub()
		sock := newFakeSocket()
		go hub.Serve(sock, "alice")
		defer sock.Close()

		req.Eventually(func() bool { _, ok := reg.Lookup("alice"); return ok }, wait, tick)
		req.Eventually(func() bool { return len(sock.lastOnlineUsers(t)) == 1 }, wait, tick)
		req.Equal([]string{"alice"}, sock.lastOnlineUsers(t))
	})

	t.Run("should keep anonymous connections out of presence", func(t *testing.T) {
		req := require.New(t)
		hub, reg := newTestHub()
		anon := newFakeSocket()
		go hub.Serve(anon, "")
		defer anon.Close()
		req.Eventually(func() bool { return hub.Count() == 1 }, wait, tick)
		req.Equal(0, reg.Len())

		alice := newFakeSocket()
		go hub.Serve(alice, "alice")
		defer alice.Close()

		req.Eventually(func() bool { return len(anon.lastOnlineUsers(t)) == 1 }, wait, tick)
		req.Equal([]string{"alice"}, anon.lastOnlineUsers(t))
	})

	t.Run("should unregister on disconnect and tell the others", func(t *testing.T) {
		req := require.New(t)
		hub, reg := newTestHub()
		alice, bob := newFakeSocket(), newFakeSocket()
		go hub.Serve(alice, "alice")
		defer alice.Close()
		go hub.Serve(bob, "bob")
		req.Eventually(func() bool { return len(alice.lastOnlineUsers(t)) == 2 }, wait, tick)

		bob.Close()

		req.Eventually(func() bool { _, ok := reg.Lookup("bob"); return !ok }, wait, tick)
		req.Eventually(func() bool { return len(alice.lastOnlineUsers(t)) == 1 }, wait, tick)
		req.Equal([]string{"alice"}, alice.lastOnlineUsers(t))
		req.Eventually(func() bool { return hub.Count() == 1 }, wait, tick)
	})

	t.Run("should keep the newer connection when an old one drops", func(t *testing.T) {
		req := require.New(t)
		hub, reg := newTestHub()
		first, second := newFakeSocket(), newFakeSocket()
		go hub.Serve(first, "alice")
		req.Eventually(func() bool { return hub.Count() == 1 }, wait, tick)
		go hub.Serve(second, "alice")
		defer second.Close()
		req.Eventually(func() bool { return hub.Count() == 2 }, wait, tick)
		h, _ := reg.Lookup("alice")
		newest := h.ID()

		first.Close()
		req.Eventually(func() bool { return hub.Count() == 1 }, wait, tick)

		h, ok := reg.Lookup("alice")
		req.True(ok)
		req.Equal(newest, h.ID())
	})

	t.Run("should end on the current online list under connection churn", func(t *testing.T) {
		req := require.New(t)
		reg := presence.NewRegistry()
		opts := testOptions()
		opts.SendBuffer = 4096
		hub := NewHub(reg, opts, metrics.NewNop(), zap.NewNop())
		observer := newFakeSocket()
		go hub.Serve(observer, "observer")
		defer observer.Close()
		req.Eventually(func() bool { _, ok := reg.Lookup("observer"); return ok }, wait, tick)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for round := 0; round < 50; round++ {
					sock := newFakeSocket()
					done := make(chan struct{})
					go func() {
						hub.Serve(sock, fmt.Sprintf("user-%d", i))
						close(done)
					}()
					sock.Close()
					<-done
				}
			}(i)
		}
		wg.Wait()

		req.Equal(1, hub.Count())
		req.Eventually(func() bool {
			last := observer.lastOnlineUsers(t)
			return len(last) == 1 && last[0] == "observer"
		}, wait, tick)
	})

	t.Run("should deliver targeted events to the registered connection", func(t *testing.T) {
		req := require.New(t)
		hub, reg := newTestHub()
		sock := newFakeSocket()
		go hub.Serve(sock, "bob")
		defer sock.Close()
		req.Eventually(func() bool { _, ok := reg.Lookup("bob"); return ok }, wait, tick)

		h, _ := reg.Lookup("bob")
		req.NoError(h.Deliver(domain.NewMessageEvent{Message: domain.MessageView{Body: "hi"}}))

		req.Eventually(func() bool { return len(sock.received(t, domain.EventNewMessage)) == 1 }, wait, tick)
		var ev domain.NewMessageEvent
		req.NoError(json.Unmarshal(sock.received(t, domain.EventNewMessage)[0], &ev))
		req.Equal("hi", ev.Message.Body)
	})
}

func TestClientDeliver(t *testing.T) {
	t.Run("should refuse when the buffer is full", func(t *testing.T) {
		req := require.New(t)
		opts := testOptions()
		opts.SendBuffer = 1
		c := newClient("c1", "alice", newFakeSocket(), opts)

		req.NoError(c.Deliver(domain.OnlineUsersChangedEvent{}))
		req.ErrorIs(c.Deliver(domain.OnlineUsersChangedEvent{}), ErrSendBufferFull)
	})

	t.Run("should refuse after close", func(t *testing.T) {
		req := require.New(t)
		c := newClient("c1", "alice", newFakeSocket(), testOptions())
		c.closeSend()
		c.closeSend()
		req.ErrorIs(c.Deliver(domain.OnlineUsersChangedEvent{}), ErrClosed)
	})
}

func TestEncode(t *testing.T) {
	req := require.New(t)
	b, err := Encode(domain.OnlineUsersChangedEvent{UserIDs: []string{"a", "b"}})
	req.NoError(err)
	req.JSONEq(`{"type":"onlineUsersChanged","payload":{"userIds":["a","b"]}}`, string(b))
}
