package channel

import "sync/atomic"

// Statistics tracks channel-level statistics
type Statistics struct {
	numMessagesTx   uint64
	numMessagesRx   uint64
	numReadErrors   uint64
	numWriteErrors  uint64
	numRouteErrors  uint64
	numStateChanges uint64

	numActiveSessions uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// MessageTx increments transmitted messages
func (s *Statistics) MessageTx() {
	atomic.AddUint64(&s.numMessagesTx, 1)
}

// MessageRx increments received messages
func (s *Statistics) MessageRx() {
	atomic.AddUint64(&s.numMessagesRx, 1)
}

// ReadError increments read errors
func (s *Statistics) ReadError() {
	atomic.AddUint64(&s.numReadErrors, 1)
}

// WriteError increments write errors
func (s *Statistics) WriteError() {
	atomic.AddUint64(&s.numWriteErrors, 1)
}

// RouteError increments messages no session accepted
func (s *Statistics) RouteError() {
	atomic.AddUint64(&s.numRouteErrors, 1)
}

// StateChange increments connection state notifications
func (s *Statistics) StateChange() {
	atomic.AddUint64(&s.numStateChanges, 1)
}

// SetActiveSessions sets the number of active sessions
func (s *Statistics) SetActiveSessions(count uint64) {
	atomic.StoreUint64(&s.numActiveSessions, count)
}

// GetMessagesTx returns transmitted messages
func (s *Statistics) GetMessagesTx() uint64 {
	return atomic.LoadUint64(&s.numMessagesTx)
}

// GetMessagesRx returns received messages
func (s *Statistics) GetMessagesRx() uint64 {
	return atomic.LoadUint64(&s.numMessagesRx)
}

// GetReadErrors returns read errors
func (s *Statistics) GetReadErrors() uint64 {
	return atomic.LoadUint64(&s.numReadErrors)
}

// GetWriteErrors returns write errors
func (s *Statistics) GetWriteErrors() uint64 {
	return atomic.LoadUint64(&s.numWriteErrors)
}

// GetRouteErrors returns routing errors
func (s *Statistics) GetRouteErrors() uint64 {
	return atomic.LoadUint64(&s.numRouteErrors)
}

// GetStateChanges returns connection state notifications
func (s *Statistics) GetStateChanges() uint64 {
	return atomic.LoadUint64(&s.numStateChanges)
}

// GetActiveSessions returns number of active sessions
func (s *Statistics) GetActiveSessions() uint64 {
	return atomic.LoadUint64(&s.numActiveSessions)
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.numMessagesTx, 0)
	atomic.StoreUint64(&s.numMessagesRx, 0)
	atomic.StoreUint64(&s.numReadErrors, 0)
	atomic.StoreUint64(&s.numWriteErrors, 0)
	atomic.StoreUint64(&s.numRouteErrors, 0)
	atomic.StoreUint64(&s.numStateChanges, 0)
}
