package otr

import (
	"context"
	"fmt"
	"sync/atomic"

	"avaneesh/otrfrag-go/pkg/channel"
	"avaneesh/otrfrag-go/pkg/internal/logger"
	"avaneesh/otrfrag-go/pkg/transport"
	"avaneesh/otrfrag-go/pkg/types"
)

// session connects a PeerTransport to a channel
type session struct {
	id        string
	tag       types.InstanceTag
	channel   *channel.Channel
	transport *transport.PeerTransport
	handler   MessageHandler
	logger    logger.Logger
	closed    atomic.Bool
}

// newSession creates a session and registers it on ch
func newSession(config SessionConfig, handler MessageHandler, ch *channel.Channel, log logger.Logger) (*session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	s := &session{
		id:        config.ID,
		tag:       config.InstanceTag,
		channel:   ch,
		transport: transport.NewPeerTransport(config.InstanceTag, config.Transport),
		handler:   handler,
		logger:    log,
	}
	s.transport.SetTimeoutHandler(s.onTimeout)

	if err := ch.AddSession(s); err != nil {
		return nil, err
	}
	return s, nil
}

// OnReceive handles an inbound wire message (implements channel.Session)
func (s *session) OnReceive(env channel.Envelope) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	result, err := s.transport.Receive(env.Peer, env.Text)
	if err != nil {
		// The partial message is gone; the peer has to resend it
		s.logger.Debug("Session %s: %s from %s: %v", s.id, transport.ErrorKindOf(err), env.Peer, err)
		s.handler.OnError(env.Peer, err)
		return nil
	}

	switch result.Status {
	case transport.StatusComplete:
		s.logger.Debug("Session %s: message from %s (%d bytes, %s)", s.id, env.Peer, len(result.Message), result.Format)
		s.handler.OnMessage(env.Peer, result.Message)
	case transport.StatusForeignRecipient:
		s.logger.Debug("Session %s: ignoring fragment from %s for another instance", s.id, env.Peer)
		if fh, ok := s.handler.(ForeignHandler); ok {
			fh.OnForeignFragment(env.Peer)
		}
	}
	return nil
}

func (s *session) onTimeout(peer string) {
	s.logger.Warn("Session %s: reassembly from %s timed out", s.id, peer)
	s.handler.OnError(peer, transport.ErrReassemblyTimeout)
}

// OnConnectionEstablished resets reassembly state (implements channel.ConnectionStateListener)
func (s *session) OnConnectionEstablished() {
	s.logger.Info("Session %s: Connection established, resetting reassembly", s.id)
	s.transport.ResetAll()
}

// OnConnectionLost resets reassembly state (implements channel.ConnectionStateListener)
func (s *session) OnConnectionLost() {
	s.logger.Info("Session %s: Connection lost", s.id)
	s.transport.ResetAll()
}

// Send implements Session
func (s *session) Send(ctx context.Context, peer, msg string, receiver types.InstanceTag) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	fragments, err := s.transport.Send(peer, msg, receiver)
	if err != nil {
		return fmt.Errorf("fragment message: %w", err)
	}

	s.logger.Debug("Session %s: sending %d fragment(s) to %s", s.id, len(fragments), peer)
	return s.channel.WriteAll(ctx, peer, fragments)
}

// Reset implements Session
func (s *session) Reset(peer string) {
	s.transport.Reset(peer)
}

// InstanceTag implements Session and channel.Session
func (s *session) InstanceTag() types.InstanceTag {
	return s.tag
}

// Statistics implements Session
func (s *session) Statistics(peer string) transport.StatisticsSnapshot {
	return s.transport.GetStats(peer).Snapshot()
}

// Close implements Session
func (s *session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.channel.RemoveSession(s.tag)
	for _, peer := range s.transport.Peers() {
		s.transport.RemovePeer(peer)
	}
	return nil
}
