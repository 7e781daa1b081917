package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"avaneesh/otrfrag-go/pkg/internal/logger"
	"avaneesh/otrfrag-go/pkg/types"
)

var (
	ErrChannelClosed = errors.New("channel is closed")
	ErrChannelOpen   = errors.New("channel is already open")
)

// readErrorBackoff throttles the read loop after a failed read
const readErrorBackoff = 50 * time.Millisecond

// Channel reads messages from a physical channel, routes them to sessions
// and serializes writes
type Channel struct {
	id              string
	physicalChannel PhysicalChannel
	router          *Router
	stats           *Statistics
	logger          logger.Logger

	// State
	state   ChannelState
	stateMu sync.RWMutex

	// Concurrency
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Write queue for serializing writes
	writeQueue chan *writeRequest
}

// writeRequest represents a write request
type writeRequest struct {
	ctx  context.Context
	env  Envelope
	resp chan error
}

// New creates a new channel
func New(id string, physical PhysicalChannel, log logger.Logger) *Channel {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Channel{
		id:              id,
		physicalChannel: physical,
		router:          NewRouter(),
		stats:           NewStatistics(),
		logger:          log,
		state:           ChannelStateClosed,
		ctx:             ctx,
		cancel:          cancel,
		writeQueue:      make(chan *writeRequest, 100),
	}
	physical.SetConnectionStateListener(c)
	return c
}

// ID returns the channel ID
func (c *Channel) ID() string {
	return c.id
}

// Open opens the channel and starts processing
func (c *Channel) Open() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state == ChannelStateOpen {
		return ErrChannelOpen
	}
	if c.ctx.Err() != nil {
		return ErrChannelClosed
	}

	c.state = ChannelStateOpen

	// Start read loop
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()

	// Start write loop
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.writeLoop()
	}()

	c.logger.Info("Channel %s opened", c.id)
	return nil
}

// Close closes the channel
func (c *Channel) Close() error {
	c.stateMu.Lock()
	if c.state == ChannelStateClosed && c.ctx.Err() != nil {
		c.stateMu.Unlock()
		return nil
	}
	c.state = ChannelStateClosed
	c.stateMu.Unlock()

	c.logger.Info("Channel %s closing", c.id)

	// Cancel context to stop goroutines
	c.cancel()

	// Close physical channel
	if err := c.physicalChannel.Close(); err != nil {
		c.logger.Error("Error closing physical channel: %v", err)
	}

	// Wait for goroutines to finish
	c.wg.Wait()

	c.logger.Info("Channel %s closed", c.id)
	return nil
}

// readLoop continuously reads from physical channel
func (c *Channel) readLoop() {
	c.logger.Debug("Channel %s read loop started", c.id)
	defer c.logger.Debug("Channel %s read loop stopped", c.id)

	for {
		env, err := c.physicalChannel.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, ErrClosed) {
				// Context cancelled or physical channel gone
				return
			}
			c.logger.Error("Channel %s read error: %v", c.id, err)
			c.stats.ReadError()

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		c.stats.MessageRx()
		c.logger.Debug("Channel %s received %d bytes from %s", c.id, len(env.Text), env.Peer)

		if err := c.router.Route(env); err != nil {
			c.stats.RouteError()
			c.logger.Warn("Channel %s routing error: %v", c.id, err)
		}
	}
}

// writeLoop processes write requests
func (c *Channel) writeLoop() {
	c.logger.Debug("Channel %s write loop started", c.id)
	defer c.logger.Debug("Channel %s write loop stopped", c.id)

	for {
		select {
		case <-c.ctx.Done():
			// Drain remaining requests with error
			for {
				select {
				case req := <-c.writeQueue:
					req.resp <- ErrChannelClosed
				default:
					return
				}
			}

		case req := <-c.writeQueue:
			err := c.physicalChannel.Write(req.ctx, req.env)
			if err != nil {
				c.stats.WriteError()
				c.logger.Error("Channel %s write error: %v", c.id, err)
			} else {
				c.stats.MessageTx()
			}
			req.resp <- err
		}
	}
}

// Write queues one message and waits until it has been written
func (c *Channel) Write(ctx context.Context, env Envelope) error {
	c.stateMu.RLock()
	if c.state != ChannelStateOpen {
		c.stateMu.RUnlock()
		return ErrChannelClosed
	}
	c.stateMu.RUnlock()

	req := &writeRequest{
		ctx:  ctx,
		env:  env,
		resp: make(chan error, 1),
	}

	select {
	case c.writeQueue <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrChannelClosed
	}

	select {
	case err := <-req.resp:
		return err
	case <-c.ctx.Done():
		return ErrChannelClosed
	}
}

// WriteAll writes messages in order, stopping at the first failure
func (c *Channel) WriteAll(ctx context.Context, peer string, texts []string) error {
	for i, text := range texts {
		if err := c.Write(ctx, Envelope{Peer: peer, Text: text}); err != nil {
			return fmt.Errorf("message %d of %d: %w", i+1, len(texts), err)
		}
	}
	return nil
}

// AddSession adds a session to the channel
func (c *Channel) AddSession(session Session) error {
	if err := c.router.AddSession(session); err != nil {
		return err
	}

	c.stats.SetActiveSessions(uint64(c.router.GetSessionCount()))
	c.logger.Info("Channel %s: Added session with instance tag %s", c.id, session.InstanceTag())
	return nil
}

// RemoveSession removes a session from the channel
func (c *Channel) RemoveSession(tag types.InstanceTag) {
	c.router.RemoveSession(tag)
	c.stats.SetActiveSessions(uint64(c.router.GetSessionCount()))
	c.logger.Info("Channel %s: Removed session with instance tag %s", c.id, tag)
}

// OnConnectionEstablished forwards the event to connection-aware sessions
func (c *Channel) OnConnectionEstablished() {
	c.stats.StateChange()
	c.logger.Info("Channel %s: connection established", c.id)
	for _, session := range c.router.Sessions() {
		if aware, ok := session.(ConnectionAware); ok {
			aware.OnConnectionEstablished()
		}
	}
}

// OnConnectionLost forwards the event to connection-aware sessions
func (c *Channel) OnConnectionLost() {
	c.stats.StateChange()
	c.logger.Warn("Channel %s: connection lost", c.id)
	for _, session := range c.router.Sessions() {
		if aware, ok := session.(ConnectionAware); ok {
			aware.OnConnectionLost()
		}
	}
}

// GetStatistics returns channel statistics
func (c *Channel) GetStatistics() *Statistics {
	return c.stats
}

// GetPhysicalStatistics returns physical channel statistics
func (c *Channel) GetPhysicalStatistics() TransportStats {
	return c.physicalChannel.Statistics()
}

// State returns the current channel state
func (c *Channel) State() ChannelState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// String returns string representation of channel
func (c *Channel) String() string {
	return fmt.Sprintf("Channel{ID=%s, State=%s, Sessions=%d}",
		c.id, c.State(), c.router.GetSessionCount())
}
