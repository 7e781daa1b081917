package otr

import (
	"context"
	"errors"

	"avaneesh/otrfrag-go/pkg/transport"
	"avaneesh/otrfrag-go/pkg/types"
)

var (
	ErrSessionClosed      = errors.New("session is closed")
	ErrInvalidInstanceTag = errors.New("own instance tag must be at least 0x100")
)

// Session sends and receives fragmented messages under one instance tag
type Session interface {
	// Send fragments msg and writes every fragment to peer in order.
	// receiver is the peer's instance tag, zero if not yet known.
	Send(ctx context.Context, peer, msg string, receiver types.InstanceTag) error

	// Reset discards the reassembly in progress for peer
	Reset(peer string)

	// InstanceTag returns this session's own instance tag
	InstanceTag() types.InstanceTag

	// Statistics returns transport statistics for peer
	Statistics(peer string) transport.StatisticsSnapshot

	// Close detaches the session from its channel
	Close() error
}

// MessageHandler receives reassembled messages and reassembly errors
type MessageHandler interface {
	// OnMessage is called with every complete message, fragmented or not
	OnMessage(peer, text string)

	// OnError is called when a message from peer was rejected or timed out.
	// The partial reassembly has already been discarded.
	OnError(peer string, err error)
}

// ForeignHandler is optionally implemented by a MessageHandler to observe
// fragments addressed to another instance
type ForeignHandler interface {
	OnForeignFragment(peer string)
}

// HandlerFuncs adapts plain functions to MessageHandler and ForeignHandler.
// Nil fields are ignored.
type HandlerFuncs struct {
	Message func(peer, text string)
	Error   func(peer string, err error)
	Foreign func(peer string)
}

// OnMessage implements MessageHandler
func (h HandlerFuncs) OnMessage(peer, text string) {
	if h.Message != nil {
		h.Message(peer, text)
	}
}

// OnError implements MessageHandler
func (h HandlerFuncs) OnError(peer string, err error) {
	if h.Error != nil {
		h.Error(peer, err)
	}
}

// OnForeignFragment implements ForeignHandler
func (h HandlerFuncs) OnForeignFragment(peer string) {
	if h.Foreign != nil {
		h.Foreign(peer)
	}
}
