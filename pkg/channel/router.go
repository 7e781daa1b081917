package channel

import (
	"errors"
	"fmt"
	"sync"

	"avaneesh/otrfrag-go/pkg/transport"
	"avaneesh/otrfrag-go/pkg/types"
)

// ErrNoSession is returned by Route when no session is registered
var ErrNoSession = errors.New("no session registered")

// Session represents a protocol instance on a channel
type Session interface {
	// OnReceive is called when a message is received for this session
	OnReceive(env Envelope) error

	// InstanceTag returns the instance tag this session accepts fragments for
	InstanceTag() types.InstanceTag
}

// ConnectionAware is implemented by sessions that want connection state changes
type ConnectionAware interface {
	Session
	ConnectionStateListener
}

// Router routes inbound messages to sessions by receiver instance tag.
// Messages without a known receiver tag go to the primary session,
// which is the first one added.
type Router struct {
	sessions map[types.InstanceTag]Session
	order    []types.InstanceTag
	mu       sync.RWMutex
}

// NewRouter creates a new router
func NewRouter() *Router {
	return &Router{
		sessions: make(map[types.InstanceTag]Session),
	}
}

// AddSession adds a session to the router
func (r *Router) AddSession(session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag := session.InstanceTag()

	// Check if tag is already in use
	if _, exists := r.sessions[tag]; exists {
		return fmt.Errorf("session with instance tag %s already exists", tag)
	}

	r.sessions[tag] = session
	r.order = append(r.order, tag)
	return nil
}

// RemoveSession removes a session from the router
func (r *Router) RemoveSession(tag types.InstanceTag) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[tag]; !exists {
		return
	}
	delete(r.sessions, tag)
	for i, t := range r.order {
		if t == tag {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Target returns the session a message would be delivered to
func (r *Router) Target(env Envelope) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tag, ok := transport.PeekReceiver(env.Text); ok && !tag.IsZero() {
		if session, exists := r.sessions[tag]; exists {
			return session, nil
		}
	}

	if len(r.order) == 0 {
		return nil, ErrNoSession
	}
	return r.sessions[r.order[0]], nil
}

// Route delivers a message to the appropriate session
func (r *Router) Route(env Envelope) error {
	session, err := r.Target(env)
	if err != nil {
		return err
	}
	return session.OnReceive(env)
}

// GetSession returns a session by instance tag
func (r *Router) GetSession(tag types.InstanceTag) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[tag]
	return session, exists
}

// Sessions returns all sessions in the order they were added
func (r *Router) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]Session, 0, len(r.order))
	for _, tag := range r.order {
		sessions = append(sessions, r.sessions[tag])
	}
	return sessions
}

// GetSessionCount returns the number of active sessions
func (r *Router) GetSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Clear removes all sessions
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[types.InstanceTag]Session)
	r.order = nil
}
