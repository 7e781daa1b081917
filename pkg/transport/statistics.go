package transport

import (
	"sync/atomic"
	"time"
)

// TransportStatistics tracks fragment transport metrics
type TransportStatistics struct {
	// Fragment counts
	TxFragments uint64
	RxFragments uint64

	// Message counts
	TxMessages          uint64
	RxMessages          uint64
	PassthroughMessages uint64 // Inbound messages that were not fragments

	// Routing
	ForeignFragments uint64

	// Error counts
	MalformedHeaders   uint64
	InvalidTags        uint64
	MalformedFragments uint64
	BoundsErrors       uint64
	SequenceErrors     uint64
	TimeoutErrors      uint64
	BufferOverflows    uint64

	// Timing (stored as Unix nano for atomic operations)
	lastTxTimeNano int64
	lastRxTimeNano int64
}

// StatisticsSnapshot is a point-in-time copy of TransportStatistics
type StatisticsSnapshot struct {
	TxFragments         uint64
	RxFragments         uint64
	TxMessages          uint64
	RxMessages          uint64
	PassthroughMessages uint64
	ForeignFragments    uint64
	MalformedHeaders    uint64
	InvalidTags         uint64
	MalformedFragments  uint64
	BoundsErrors        uint64
	SequenceErrors      uint64
	TimeoutErrors       uint64
	BufferOverflows     uint64
	LastTxTime          time.Time
	LastRxTime          time.Time
}

// NewTransportStatistics creates a new statistics tracker
func NewTransportStatistics() *TransportStatistics {
	return &TransportStatistics{}
}

// IncrementTxFragments adds n transmitted fragments
func (s *TransportStatistics) IncrementTxFragments(n int) {
	atomic.AddUint64(&s.TxFragments, uint64(n))
}

// IncrementRxFragments increments received fragment count
func (s *TransportStatistics) IncrementRxFragments() {
	atomic.AddUint64(&s.RxFragments, 1)
}

// IncrementTxMessages increments transmitted message count
func (s *TransportStatistics) IncrementTxMessages() {
	atomic.AddUint64(&s.TxMessages, 1)
	atomic.StoreInt64(&s.lastTxTimeNano, time.Now().UnixNano())
}

// IncrementRxMessages increments reassembled message count
func (s *TransportStatistics) IncrementRxMessages() {
	atomic.AddUint64(&s.RxMessages, 1)
	atomic.StoreInt64(&s.lastRxTimeNano, time.Now().UnixNano())
}

// IncrementPassthrough increments the count of unfragmented inbound messages
func (s *TransportStatistics) IncrementPassthrough() {
	atomic.AddUint64(&s.PassthroughMessages, 1)
	atomic.StoreInt64(&s.lastRxTimeNano, time.Now().UnixNano())
}

// IncrementForeignFragments increments fragments addressed to other instances
func (s *TransportStatistics) IncrementForeignFragments() {
	atomic.AddUint64(&s.ForeignFragments, 1)
}

// IncrementTimeoutErrors increments timeout error count
func (s *TransportStatistics) IncrementTimeoutErrors() {
	atomic.AddUint64(&s.TimeoutErrors, 1)
}

// RecordError increments the counter matching err
func (s *TransportStatistics) RecordError(err error) {
	switch ErrorKindOf(err) {
	case KindMalformedHeader:
		atomic.AddUint64(&s.MalformedHeaders, 1)
	case KindInvalidInstanceTag:
		atomic.AddUint64(&s.InvalidTags, 1)
	case KindMalformedFragment:
		atomic.AddUint64(&s.MalformedFragments, 1)
	case KindOutOfBounds:
		atomic.AddUint64(&s.BoundsErrors, 1)
	case KindOutOfSequence:
		atomic.AddUint64(&s.SequenceErrors, 1)
	case KindBufferOverflow:
		atomic.AddUint64(&s.BufferOverflows, 1)
	}
}

// GetTxFragments returns transmitted fragment count
func (s *TransportStatistics) GetTxFragments() uint64 {
	return atomic.LoadUint64(&s.TxFragments)
}

// GetRxFragments returns received fragment count
func (s *TransportStatistics) GetRxFragments() uint64 {
	return atomic.LoadUint64(&s.RxFragments)
}

// GetRxMessages returns reassembled message count
func (s *TransportStatistics) GetRxMessages() uint64 {
	return atomic.LoadUint64(&s.RxMessages)
}

// GetSequenceErrors returns sequence error count
func (s *TransportStatistics) GetSequenceErrors() uint64 {
	return atomic.LoadUint64(&s.SequenceErrors)
}

// GetTxMessages returns transmitted message count
func (s *TransportStatistics) GetTxMessages() uint64 {
	return atomic.LoadUint64(&s.TxMessages)
}

// GetTimeoutErrors returns timeout error count
func (s *TransportStatistics) GetTimeoutErrors() uint64 {
	return atomic.LoadUint64(&s.TimeoutErrors)
}

// GetBufferOverflows returns buffer overflow count
func (s *TransportStatistics) GetBufferOverflows() uint64 {
	return atomic.LoadUint64(&s.BufferOverflows)
}

// GetForeignFragments returns the count of fragments for other instances
func (s *TransportStatistics) GetForeignFragments() uint64 {
	return atomic.LoadUint64(&s.ForeignFragments)
}

// Snapshot returns a copy of all counters
func (s *TransportStatistics) Snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		TxFragments:         atomic.LoadUint64(&s.TxFragments),
		RxFragments:         atomic.LoadUint64(&s.RxFragments),
		TxMessages:          atomic.LoadUint64(&s.TxMessages),
		RxMessages:          atomic.LoadUint64(&s.RxMessages),
		PassthroughMessages: atomic.LoadUint64(&s.PassthroughMessages),
		ForeignFragments:    atomic.LoadUint64(&s.ForeignFragments),
		MalformedHeaders:    atomic.LoadUint64(&s.MalformedHeaders),
		InvalidTags:         atomic.LoadUint64(&s.InvalidTags),
		MalformedFragments:  atomic.LoadUint64(&s.MalformedFragments),
		BoundsErrors:        atomic.LoadUint64(&s.BoundsErrors),
		SequenceErrors:      atomic.LoadUint64(&s.SequenceErrors),
		TimeoutErrors:       atomic.LoadUint64(&s.TimeoutErrors),
		BufferOverflows:     atomic.LoadUint64(&s.BufferOverflows),
		LastTxTime:          loadTime(&s.lastTxTimeNano),
		LastRxTime:          loadTime(&s.lastRxTimeNano),
	}
}

func loadTime(nano *int64) time.Time {
	v := atomic.LoadInt64(nano)
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

// Reset resets all statistics to zero
func (s *TransportStatistics) Reset() {
	for _, counter := range []*uint64{
		&s.TxFragments, &s.RxFragments, &s.TxMessages, &s.RxMessages,
		&s.PassthroughMessages, &s.ForeignFragments, &s.MalformedHeaders,
		&s.InvalidTags, &s.MalformedFragments, &s.BoundsErrors,
		&s.SequenceErrors, &s.TimeoutErrors, &s.BufferOverflows,
	} {
		atomic.StoreUint64(counter, 0)
	}
	atomic.StoreInt64(&s.lastTxTimeNano, 0)
	atomic.StoreInt64(&s.lastRxTimeNano, 0)
}
