package api

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/afterword/afterword/internal/session"
)

// Manager keeps one Session per work id and fans state changes out to
// subscribers.
type Manager struct {
	api  session.WorkAPI
	opts session.Options
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

type entry struct {
	sess *session.Session

	load    sync.Once
	loadErr error

	mu     sync.Mutex
	subs   map[int]chan session.State
	nextID int
}

// NewManager creates a manager. opts is the template for every session;
// its OnChange is replaced.
func NewManager(api session.WorkAPI, opts session.Options, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{api: api, opts: opts, log: log, sessions: make(map[string]*entry)}
}

// ErrManagerClosed is returned by Open after CloseAll.
var ErrManagerClosed = errors.New("bridge is shutting down")

// Open returns the session for workID, creating and loading it on first
// use. A first load that fails for any reason but a lock discards the
// session.
func (m *Manager) Open(ctx context.Context, workID string) (*session.Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	e, ok := m.sessions[workID]
	if !ok {
		e = &entry{subs: make(map[int]chan session.State)}
		opts := m.opts
		opts.OnChange = e.publish
		e.sess = session.New(m.api, workID, opts)
		m.sessions[workID] = e
		m.log.Info("session opened", "work", workID)
	}
	m.mu.Unlock()

	e.load.Do(func() { e.loadErr = e.sess.LoadAll(ctx) })
	if e.loadErr != nil && session.MapError(e.loadErr).Kind != session.KindLocked {
		m.drop(workID, e)
		return nil, e.loadErr
	}
	return e.sess, nil
}

// Get returns an already open session.
func (m *Manager) Get(workID string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[workID]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// IDs lists the open work ids.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subscribe delivers the latest state of workID's session on the returned
// channel. Slow readers only miss intermediate states.
func (m *Manager) Subscribe(workID string) (<-chan session.State, func(), bool) {
	m.mu.Lock()
	e, ok := m.sessions[workID]
	m.mu.Unlock()
	if !ok {
		return nil, nil, false
	}

	ch := make(chan session.State, 1)
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.mu.Unlock()

	return ch, func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}, true
}

// Close closes and forgets workID's session.
func (m *Manager) Close(workID string) bool {
	m.mu.Lock()
	e, ok := m.sessions[workID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.drop(workID, e)
	return true
}

// CloseAll closes every session; later Opens fail.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	entries := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()
	for _, e := range entries {
		e.sess.Close()
	}
}

func (m *Manager) drop(workID string, e *entry) {
	m.mu.Lock()
	if m.sessions[workID] == e {
		delete(m.sessions, workID)
	}
	m.mu.Unlock()
	e.sess.Close()
	m.log.Info("session closed", "work", workID)
}

// publish keeps only the newest state in each subscriber's buffer.
func (e *entry) publish(st session.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
