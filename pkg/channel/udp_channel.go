package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// UDPChannel implements PhysicalChannel for UDP.
// Each datagram carries exactly one message.
type UDPChannel struct {
	stateNotifier

	// Connection
	conn     *net.UDPConn
	connLock sync.RWMutex

	// Configuration
	address        string
	isServer       bool
	remoteAddr     *net.UDPAddr // Used for client mode to know where to send
	lastPeerAddr   *net.UDPAddr // Used for server mode to remember last peer
	peerLock       sync.RWMutex
	writeTimeout   time.Duration
	maxMessageSize int

	stats ioStats

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// UDPChannelConfig configures a UDP channel
type UDPChannelConfig struct {
	Address        string        // "host:port" format
	IsServer       bool          // true = bind and listen, false = bind and send to remote
	WriteTimeout   time.Duration // Write timeout (0 = 10s)
	MaxMessageSize int           // Largest datagram accepted (0 = DefaultMaxMessageSize)
}

// NewUDPChannel creates a new UDP channel
func NewUDPChannel(config UDPChannelConfig) (*UDPChannel, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	// Set defaults
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	uc := &UDPChannel{
		address:        config.Address,
		isServer:       config.IsServer,
		writeTimeout:   config.WriteTimeout,
		maxMessageSize: config.MaxMessageSize,
		ctx:            ctx,
		cancel:         cancel,
	}

	// Initialize connection
	if err := uc.initialize(); err != nil {
		cancel()
		return nil, err
	}

	return uc, nil
}

// initialize sets up the UDP connection
func (uc *UDPChannel) initialize() error {
	addr, err := net.ResolveUDPAddr("udp", uc.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", uc.address, err)
	}

	if uc.isServer {
		// Server mode: bind to local address to receive from any client
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", uc.address, err)
		}
		uc.conn = conn
	} else {
		// Client mode: bind to any local address and remember remote address
		uc.remoteAddr = addr

		conn, err := net.ListenUDP("udp", &net.UDPAddr{})
		if err != nil {
			return fmt.Errorf("failed to create UDP connection: %w", err)
		}
		uc.conn = conn
	}

	uc.stats.connects.Add(1)
	return nil
}

// Read implements PhysicalChannel.Read
func (uc *UDPChannel) Read(ctx context.Context) (Envelope, error) {
	buffer := make([]byte, uc.maxMessageSize+1)

	for {
		select {
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		case <-uc.ctx.Done():
			return Envelope{}, ErrClosed
		default:
		}

		uc.connLock.RLock()
		conn := uc.conn
		uc.connLock.RUnlock()

		if conn == nil {
			return Envelope{}, ErrNoConnection
		}

		// Short deadline so cancellation of ctx is noticed
		conn.SetReadDeadline(time.Now().Add(time.Second))

		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if uc.closed.Load() {
				return Envelope{}, ErrClosed
			}
			uc.stats.readErrors.Add(1)
			return Envelope{}, err
		}

		if n > uc.maxMessageSize {
			uc.stats.readErrors.Add(1)
			continue
		}

		// Store the remote address for server mode (to reply to the same peer)
		if uc.isServer && remoteAddr != nil {
			uc.peerLock.Lock()
			uc.lastPeerAddr = remoteAddr
			uc.peerLock.Unlock()
		}

		uc.stats.bytesReceived.Add(uint64(n))

		// Tolerate line-oriented senders such as netcat
		text := strings.TrimSuffix(string(buffer[:n]), "\n")
		text = strings.TrimSuffix(text, "\r")

		return Envelope{Peer: remoteAddr.String(), Text: text}, nil
	}
}

// Write implements PhysicalChannel.Write.
// env.Peer may name a "host:port" destination; otherwise the client's remote
// address or the server's last peer is used.
func (uc *UDPChannel) Write(ctx context.Context, env Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-uc.ctx.Done():
		return ErrClosed
	default:
	}

	if len(env.Text) > uc.maxMessageSize {
		uc.stats.writeErrors.Add(1)
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, len(env.Text), uc.maxMessageSize)
	}

	uc.connLock.RLock()
	conn := uc.conn
	uc.connLock.RUnlock()

	if conn == nil {
		uc.stats.writeErrors.Add(1)
		return ErrNoConnection
	}

	destAddr, err := uc.destination(env.Peer)
	if err != nil {
		uc.stats.writeErrors.Add(1)
		return err
	}

	// Set write deadline
	if uc.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(uc.writeTimeout))
	}

	n, err := conn.WriteToUDP([]byte(env.Text), destAddr)
	if err != nil {
		uc.stats.writeErrors.Add(1)
		return err
	}

	uc.stats.bytesSent.Add(uint64(n))
	return nil
}

func (uc *UDPChannel) destination(peer string) (*net.UDPAddr, error) {
	if peer != "" {
		addr, err := net.ResolveUDPAddr("udp", peer)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve peer %s: %w", peer, err)
		}
		return addr, nil
	}

	if !uc.isServer {
		return uc.remoteAddr, nil
	}

	uc.peerLock.RLock()
	defer uc.peerLock.RUnlock()
	if uc.lastPeerAddr == nil {
		return nil, fmt.Errorf("no peer address available (no data received yet)")
	}
	return uc.lastPeerAddr, nil
}

// Close implements PhysicalChannel.Close
func (uc *UDPChannel) Close() error {
	if !uc.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	// Cancel context
	uc.cancel()

	// Close connection
	uc.connLock.Lock()
	if uc.conn != nil {
		uc.conn.Close()
		uc.stats.disconnects.Add(1)
		uc.conn = nil
	}
	uc.connLock.Unlock()

	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (uc *UDPChannel) Statistics() TransportStats {
	return uc.stats.snapshot()
}

// IsConnected returns true if the connection is open
// Note: For UDP, this just means the socket is bound
func (uc *UDPChannel) IsConnected() bool {
	uc.connLock.RLock()
	defer uc.connLock.RUnlock()
	return uc.conn != nil
}

// LocalAddr returns the local address of the connection
func (uc *UDPChannel) LocalAddr() net.Addr {
	uc.connLock.RLock()
	defer uc.connLock.RUnlock()
	if uc.conn != nil {
		return uc.conn.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote address
// For server mode, this returns the last peer address
// For client mode, this returns the configured remote address
func (uc *UDPChannel) RemoteAddr() net.Addr {
	if uc.isServer {
		uc.peerLock.RLock()
		defer uc.peerLock.RUnlock()
		if uc.lastPeerAddr == nil {
			return nil
		}
		return uc.lastPeerAddr
	}
	return uc.remoteAddr
}
