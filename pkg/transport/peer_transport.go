package transport

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"avaneesh/otrfrag-go/pkg/types"
)

// PeerTransport manages fragment reassembly for many conversation partners.
// Each peer gets its own Assembler; calls for the same peer are serialized.
type PeerTransport struct {
	ownInstance types.InstanceTag

	// Per-peer state tracking
	peers map[string]*peerState

	// Configuration
	config TransportConfig

	// Called after a reassembly was discarded by the timeout
	onTimeout func(peer string)

	// Synchronization
	mu sync.RWMutex
}

// peerState tracks reassembly state for one peer
type peerState struct {
	assembler       *Assembler
	reassemblyTimer *time.Timer
	generation      uint64 // invalidates stale timers

	// Statistics
	stats *TransportStatistics

	// Synchronization
	mu sync.Mutex
}

// NewPeerTransport creates a transport accepting fragments for ownInstance
func NewPeerTransport(ownInstance types.InstanceTag, config TransportConfig) *PeerTransport {
	if config.MaxPieceSize <= 0 {
		config.MaxPieceSize = DefaultMaxPieceSize
	}
	return &PeerTransport{
		ownInstance: ownInstance,
		peers:       make(map[string]*peerState),
		config:      config,
	}
}

// OwnInstance returns the instance tag of this transport
func (p *PeerTransport) OwnInstance() types.InstanceTag {
	return p.ownInstance
}

// SetTimeoutHandler registers a callback invoked after a reassembly timeout
func (p *PeerTransport) SetTimeoutHandler(fn func(peer string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTimeout = fn
}

// getOrCreatePeer gets or creates state for a peer
func (p *PeerTransport) getOrCreatePeer(peer string) *peerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, exists := p.peers[peer]
	if !exists {
		state = &peerState{
			assembler: NewAssembler(p.ownInstance),
			stats:     NewTransportStatistics(),
		}
		p.peers[peer] = state
	}
	return state
}

// Receive feeds one inbound message from peer into its assembler
func (p *PeerTransport) Receive(peer, text string) (Result, error) {
	state := p.getOrCreatePeer(peer)
	state.mu.Lock()
	defer state.mu.Unlock()

	result, err := state.assembler.Accumulate(text)
	if err != nil {
		p.stopReassemblyTimer(state)
		if p.config.EnableStatistics {
			state.stats.RecordError(err)
		}
		return result, err
	}

	switch result.Status {
	case StatusForeignRecipient:
		if p.config.EnableStatistics {
			state.stats.IncrementForeignFragments()
		}
		return result, nil

	case StatusComplete:
		p.stopReassemblyTimer(state)
		if result.Format == FormatNone {
			if p.config.EnableStatistics {
				state.stats.IncrementPassthrough()
			}
			return result, nil
		}
		if p.config.EnableStatistics {
			state.stats.IncrementRxFragments()
		}
		if p.config.MaxReassemblySize > 0 && len(result.Message) > p.config.MaxReassemblySize {
			return p.overflow(state, len(result.Message))
		}
		if p.config.EnableStatistics {
			state.stats.IncrementRxMessages()
		}
		return result, nil

	default:
		if p.config.EnableStatistics {
			state.stats.IncrementRxFragments()
		}
		if p.config.MaxReassemblySize > 0 && state.assembler.Buffered() > p.config.MaxReassemblySize {
			return p.overflow(state, state.assembler.Buffered())
		}
		if current, _ := state.assembler.Progress(); current == 1 {
			p.startReassemblyTimer(state, peer)
		}
		return result, nil
	}
}

// overflow discards the reassembly of a peer exceeding MaxReassemblySize
func (p *PeerTransport) overflow(state *peerState, size int) (Result, error) {
	state.assembler.Reset()
	p.stopReassemblyTimer(state)
	err := fmt.Errorf("%w: %d bytes, limit %d", ErrBufferOverflow, size, p.config.MaxReassemblySize)
	if p.config.EnableStatistics {
		state.stats.RecordError(err)
	}
	return Result{}, err
}

// Send fragments msg for transmission to peer.
// receiver is the peer's instance tag (zero if unknown).
func (p *PeerTransport) Send(peer, msg string, receiver types.InstanceTag) ([]string, error) {
	fragments, err := SplitMessage(msg, SplitOptions{
		MaxPieceSize: p.config.MaxPieceSize,
		Format:       p.config.Format,
		Sender:       p.ownInstance,
		Receiver:     receiver,
	})
	if err != nil {
		return nil, err
	}

	if p.config.EnableStatistics {
		state := p.getOrCreatePeer(peer)
		state.stats.IncrementTxFragments(len(fragments))
		state.stats.IncrementTxMessages()
	}

	return fragments, nil
}

// startReassemblyTimer starts or restarts the reassembly timeout timer.
// Caller holds state.mu.
func (p *PeerTransport) startReassemblyTimer(state *peerState, peer string) {
	if p.config.ReassemblyTimeout <= 0 {
		return
	}

	// Stop existing timer if any
	p.stopReassemblyTimer(state)

	generation := state.generation
	state.reassemblyTimer = time.AfterFunc(p.config.ReassemblyTimeout, func() {
		state.mu.Lock()
		if state.generation != generation || !state.assembler.InProgress() {
			state.mu.Unlock()
			return
		}

		// Timeout - discard incomplete message
		state.assembler.Reset()
		state.reassemblyTimer = nil
		if p.config.EnableStatistics {
			state.stats.IncrementTimeoutErrors()
		}
		state.mu.Unlock()

		p.mu.RLock()
		fn := p.onTimeout
		p.mu.RUnlock()
		if fn != nil {
			fn(peer)
		}
	})
}

// stopReassemblyTimer stops the reassembly timer. Caller holds state.mu.
func (p *PeerTransport) stopReassemblyTimer(state *peerState) {
	state.generation++
	if state.reassemblyTimer != nil {
		state.reassemblyTimer.Stop()
		state.reassemblyTimer = nil
	}
}

// GetStats returns statistics for a specific peer
func (p *PeerTransport) GetStats(peer string) *TransportStatistics {
	p.mu.RLock()
	state, exists := p.peers[peer]
	p.mu.RUnlock()

	if !exists {
		return NewTransportStatistics()
	}
	return state.stats
}

// Reset discards the reassembly in progress for a specific peer
func (p *PeerTransport) Reset(peer string) {
	p.mu.RLock()
	state, exists := p.peers[peer]
	p.mu.RUnlock()

	if !exists {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	p.stopReassemblyTimer(state)
	state.assembler.Reset()
}

// ResetAll discards reassembly state for all peers
func (p *PeerTransport) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, state := range p.peers {
		state.mu.Lock()
		p.stopReassemblyTimer(state)
		state.assembler.Reset()
		state.mu.Unlock()
	}
}

// RemovePeer removes state for a specific peer
// Use this when a conversation ends
func (p *PeerTransport) RemovePeer(peer string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, exists := p.peers[peer]; exists {
		state.mu.Lock()
		p.stopReassemblyTimer(state)
		state.mu.Unlock()
		delete(p.peers, peer)
	}
}

// Peers returns the sorted list of tracked peers
func (p *PeerTransport) Peers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	peers := make([]string, 0, len(p.peers))
	for peer := range p.peers {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}

// IsReassembling returns true if reassembly is in progress for a peer
func (p *PeerTransport) IsReassembling(peer string) bool {
	p.mu.RLock()
	state, exists := p.peers[peer]
	p.mu.RUnlock()

	if !exists {
		return false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.assembler.InProgress()
}
