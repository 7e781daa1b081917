package otr

import (
	"avaneesh/otrfrag-go/pkg/channel"
)

// Channel is the public interface for a channel
type Channel interface {
	// AddSession adds a session to this channel.
	// The first session added also receives every message not addressed to
	// another registered session.
	AddSession(config SessionConfig, handler MessageHandler) (Session, error)

	// Shutdown closes the channel and all sessions
	Shutdown() error

	// Statistics returns channel statistics
	Statistics() ChannelStatistics
}

// ChannelStatistics provides channel-level statistics
type ChannelStatistics struct {
	MessagesTx      uint64 // Wire messages transmitted
	MessagesRx      uint64 // Wire messages received
	ReadErrors      uint64 // Failed reads
	WriteErrors     uint64 // Failed writes
	RouteErrors     uint64 // Messages no session accepted
	StateChanges    uint64 // Connection established/lost notifications
	ActiveSessions  uint64 // Number of active sessions
	PhysicalBytesTx uint64 // Physical bytes transmitted
	PhysicalBytesRx uint64 // Physical bytes received
}

// channelImpl implements the Channel interface
type channelImpl struct {
	channel *channel.Channel
	manager *Manager
}

// AddSession adds a session to this channel
func (c *channelImpl) AddSession(config SessionConfig, handler MessageHandler) (Session, error) {
	c.manager.mu.RLock()
	log := c.manager.logger
	c.manager.mu.RUnlock()

	return newSession(config, handler, c.channel, log)
}

// Shutdown closes the channel
func (c *channelImpl) Shutdown() error {
	return c.manager.RemoveChannel(c.channel.ID())
}

// Statistics returns channel statistics
func (c *channelImpl) Statistics() ChannelStatistics {
	stats := c.channel.GetStatistics()
	physStats := c.channel.GetPhysicalStatistics()

	return ChannelStatistics{
		MessagesTx:      stats.GetMessagesTx(),
		MessagesRx:      stats.GetMessagesRx(),
		ReadErrors:      stats.GetReadErrors(),
		WriteErrors:     stats.GetWriteErrors(),
		RouteErrors:     stats.GetRouteErrors(),
		StateChanges:    stats.GetStateChanges(),
		ActiveSessions:  stats.GetActiveSessions(),
		PhysicalBytesTx: physStats.BytesSent,
		PhysicalBytesRx: physStats.BytesReceived,
	}
}
