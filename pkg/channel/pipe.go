package channel

import (
	"context"
	"sync"
)

// PipeChannel is an in-memory PhysicalChannel.
// NewPipe returns two connected ends; a message written on one end is read
// from the other with Peer set to the writer's name.
type PipeChannel struct {
	stateNotifier

	name      string
	readChan  chan Envelope
	writeChan chan Envelope
	closeChan chan struct{}
	peer      *PipeChannel
	closed    bool
	mu        sync.RWMutex
	stats     TransportStats
}

// NewPipe creates a connected pair of in-memory channels
func NewPipe(nameA, nameB string) (*PipeChannel, *PipeChannel) {
	ab := make(chan Envelope, 64)
	ba := make(chan Envelope, 64)

	a := &PipeChannel{name: nameA, readChan: ba, writeChan: ab, closeChan: make(chan struct{})}
	b := &PipeChannel{name: nameB, readChan: ab, writeChan: ba, closeChan: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// Name returns the name this end presents to its peer
func (p *PipeChannel) Name() string {
	return p.name
}

// Read implements PhysicalChannel.Read
func (p *PipeChannel) Read(ctx context.Context) (Envelope, error) {
	select {
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-p.closeChan:
		return Envelope{}, ErrClosed
	case env := <-p.readChan:
		p.mu.Lock()
		p.stats.BytesReceived += uint64(len(env.Text))
		p.mu.Unlock()
		return env, nil
	}
}

// Write implements PhysicalChannel.Write
func (p *PipeChannel) Write(ctx context.Context, env Envelope) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	p.mu.RUnlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closeChan:
		return ErrClosed
	case <-p.peer.closeChan:
		p.mu.Lock()
		p.stats.WriteErrors++
		p.mu.Unlock()
		return ErrNoConnection
	case p.writeChan <- Envelope{Peer: p.name, Text: env.Text}:
		p.mu.Lock()
		p.stats.BytesSent += uint64(len(env.Text))
		p.mu.Unlock()
		return nil
	}
}

// Inject delivers env to this end as if it had been received
func (p *PipeChannel) Inject(env Envelope) {
	p.readChan <- env
}

// Close implements PhysicalChannel.Close
func (p *PipeChannel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.stats.Disconnects++
	close(p.closeChan)
	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (p *PipeChannel) Statistics() TransportStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// SimulateConnectionLost notifies the listener that the link went down
func (p *PipeChannel) SimulateConnectionLost() {
	p.notifyConnectionLost()
}

// SimulateConnectionEstablished notifies the listener that the link came up
func (p *PipeChannel) SimulateConnectionEstablished() {
	p.mu.Lock()
	p.stats.Connects++
	p.mu.Unlock()
	p.notifyConnectionEstablished()
}
