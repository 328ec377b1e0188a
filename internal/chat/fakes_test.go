package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var errBackendDown = fmt.Errorf("%w: connection refused", ErrStoreUnavailable)

type fakeStore struct {
	mu       sync.Mutex
	messages []Message
	fail     bool
}

func (s *fakeStore) Append(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errBackendDown
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeStore) QueryByRoom(_ context.Context, roomID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errBackendDown
	}
	var out []Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if s.messages[i].RoomID == roomID {
			out = append(out, s.messages[i])
		}
	}
	return out, nil
}

func (s *fakeStore) all() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []Message
	fail      bool
}

func (p *fakePublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("hub closed")
	}
	p.published = append(p.published, msg)
	return nil
}

func (p *fakePublisher) all() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.published...)
}

func (p *fakePublisher) count(kind MessageType) int {
	n := 0
	for _, msg := range p.all() {
		if msg.Type == kind {
			n++
		}
	}
	return n
}

type fakePresence struct {
	mu    sync.Mutex
	rooms map[string]map[string]int
	fail  bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{rooms: make(map[string]map[string]int)}
}

func (p *fakePresence) AddMember(_ context.Context, roomID, identity string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errBackendDown
	}
	if p.rooms[roomID] == nil {
		p.rooms[roomID] = make(map[string]int)
	}
	p.rooms[roomID][identity]++
	return nil
}

func (p *fakePresence) RemoveMember(_ context.Context, roomID, identity string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errBackendDown
	}
	if p.rooms[roomID][identity] <= 1 {
		delete(p.rooms[roomID], identity)
		return nil
	}
	p.rooms[roomID][identity]--
	return nil
}

func (p *fakePresence) Members(_ context.Context, roomID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	members := make([]string, 0, len(p.rooms[roomID]))
	if p.fail {
		return members
	}
	for identity := range p.rooms[roomID] {
		members = append(members, identity)
	}
	sort.Strings(members)
	return members
}

type fakeActivity struct {
	mu   sync.Mutex
	seen map[string]map[string]time.Time
	fail bool
}

func newFakeActivity() *fakeActivity {
	return &fakeActivity{seen: make(map[string]map[string]time.Time)}
}

func (a *fakeActivity) RecordActivity(_ context.Context, roomID, identity string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errBackendDown
	}
	if a.seen[roomID] == nil {
		a.seen[roomID] = make(map[string]time.Time)
	}
	a.seen[roomID][identity] = time.Now()
	return nil
}

func (a *fakeActivity) LastSeen(_ context.Context, roomID string) (map[string]time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return nil, errBackendDown
	}
	out := make(map[string]time.Time, len(a.seen[roomID]))
	for k, v := range a.seen[roomID] {
		out[k] = v
	}
	return out, nil
}

type fakeRooms struct {
	mu     sync.Mutex
	counts map[string]int
	fail   bool
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{counts: make(map[string]int)}
}

func (r *fakeRooms) FindParticipantCount(_ context.Context, roomID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return 0, errBackendDown
	}
	return r.counts[roomID], nil
}

func (r *fakeRooms) IncrementParticipantCount(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errBackendDown
	}
	r.counts[roomID]++
	return nil
}

func (r *fakeRooms) DecrementParticipantCount(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errBackendDown
	}
	if r.counts[roomID] > 0 {
		r.counts[roomID]--
	}
	return nil
}

type fixture struct {
	router    *Router
	store     *fakeStore
	publisher *fakePublisher
	presence  *fakePresence
	activity  *fakeActivity
	rooms     *fakeRooms
}

func newFixture(directory Directory) *fixture {
	f := &fixture{
		store:     &fakeStore{},
		publisher: &fakePublisher{},
		presence:  newFakePresence(),
		activity:  newFakeActivity(),
		rooms:     newFakeRooms(),
	}
	f.router = NewRouter(RouterDeps{
		Directory: directory,
		Messages:  f.store,
		Rooms:     f.rooms,
		Publisher: f.publisher,
		Presence:  f.presence,
		Activity:  f.activity,
		Now:       func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) },
	})
	return f
}
