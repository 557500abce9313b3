package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaychat/relay-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// memStore is an in-memory MessageStore for hub tests.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	msgs    []store.Message
	failing bool
}

var errStoreDown = errors.New("store down")

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) Append(_ context.Context, from, room, body string, ct store.ContentType) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	s.nextID++
	m := store.Message{
		ID:          s.nextID,
		Room:        room,
		From:        from,
		Body:        body,
		ContentType: ct,
		CreatedAt:   time.Now().UTC(),
		ReadBy:      []string{from},
	}
	s.msgs = append(s.msgs, m)
	return &m, nil
}

func (s *memStore) Recent(_ context.Context, room string, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	out := []store.Message{}
	for _, m := range s.msgs {
		if m.Room == room {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) History(_ context.Context, room string, page, pageSize int) ([]store.Message, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inRoom := []store.Message{}
	for _, m := range s.msgs {
		if m.Room == room {
			inRoom = append(inRoom, m)
		}
	}
	total := len(inRoom)
	// newest first
	out := []store.Message{}
	for i := total - 1 - (page-1)*pageSize; i >= 0 && len(out) < pageSize; i-- {
		out = append(out, inRoom[i])
	}
	return out, total, nil
}

func (s *memStore) MarkRead(_ context.Context, ids []int64, reader string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	for _, id := range ids {
		for i := range s.msgs {
			if s.msgs[i].ID != id {
				continue
			}
			already := false
			for _, r := range s.msgs[i].ReadBy {
				if r == reader {
					already = true
					break
				}
			}
			if !already {
				s.msgs[i].ReadBy = append(s.msgs[i].ReadBy, reader)
			}
		}
	}
	return nil
}

func (s *memStore) ListRooms(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	rooms := []string{}
	for _, m := range s.msgs {
		if _, ok := seen[m.Room]; !ok {
			seen[m.Room] = struct{}{}
			rooms = append(rooms, m.Room)
		}
	}
	return rooms, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *memStore) messages(room string) []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []store.Message{}
	for _, m := range s.msgs {
		if m.Room == room {
			out = append(out, m)
		}
	}
	return out
}

// startHub runs a hub with an in-memory store for the duration of a test.
func startHub(t *testing.T) (*Hub, *memStore) {
	t.Helper()

	st := newMemStore()
	hub := NewHub(st, nil, 50)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return hub, st
}

// connect registers a client and queues its hello. The hub applies
// commands from one client in order, so a later joinRoom on the same
// client also proves the hello went through.
func connect(t *testing.T, hub *Hub, id, identity string) *Client {
	t.Helper()

	c := NewClient(id)
	hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandHello, User: identity}
	return c
}

// joinRoom joins a room and waits for the history sync so the join is
// known to have been applied.
func joinRoom(t *testing.T, c *Client, room string) *Event {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinRoom, Room: room}
	ev := mustEvent(t, c.Events, EventHistory)
	if ev.Room != room {
		t.Fatalf("history for wrong room: got %q want %q", ev.Room, room)
	}
	return ev
}
