package channel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultMaxMessageSize is the longest message accepted on a line-framed stream
const DefaultMaxMessageSize = 64 * 1024

var (
	ErrClosed          = errors.New("channel closed")
	ErrNoConnection    = errors.New("no connection")
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrLineBreak       = errors.New("message contains a line break")
)

// lineReader reads newline-terminated messages from a stream
type lineReader struct {
	r   *bufio.Reader
	max int
}

func newLineReader(r io.Reader, max int) *lineReader {
	if max <= 0 {
		max = DefaultMaxMessageSize
	}
	return &lineReader{r: bufio.NewReader(r), max: max}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator.
// An oversize line is consumed in full and reported as ErrMessageTooLarge.
// A partial line at end of stream is discarded.
func (lr *lineReader) ReadLine() (string, error) {
	var buf []byte
	tooLarge := false

	for {
		chunk, err := lr.r.ReadSlice('\n')
		if !tooLarge {
			// max excludes the \r\n terminator
			if len(buf)+len(chunk) > lr.max+2 {
				tooLarge = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return "", err
		}
		break
	}

	line := strings.TrimSuffix(string(buf), "\n")
	line = strings.TrimSuffix(line, "\r")
	if tooLarge || len(line) > lr.max {
		return "", fmt.Errorf("%w: limit %d", ErrMessageTooLarge, lr.max)
	}
	return line, nil
}

// encodeLine frames text as a single line
func encodeLine(text string, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxMessageSize
	}
	if strings.ContainsAny(text, "\r\n") {
		return nil, ErrLineBreak
	}
	if len(text) > max {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, len(text), max)
	}
	data := make([]byte, 0, len(text)+1)
	data = append(data, text...)
	return append(data, '\n'), nil
}

// ioStats holds the counters shared by the built-in channels
type ioStats struct {
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	writeErrors   atomic.Uint64
	readErrors    atomic.Uint64
	connects      atomic.Uint64
	disconnects   atomic.Uint64
}

func (s *ioStats) snapshot() TransportStats {
	return TransportStats{
		BytesSent:     s.bytesSent.Load(),
		BytesReceived: s.bytesReceived.Load(),
		WriteErrors:   s.writeErrors.Load(),
		ReadErrors:    s.readErrors.Load(),
		Connects:      s.connects.Load(),
		Disconnects:   s.disconnects.Load(),
	}
}

// stateNotifier delivers connection state changes to a listener
type stateNotifier struct {
	listener ConnectionStateListener
	mu       sync.RWMutex
}

// SetConnectionStateListener sets a listener for connection state changes
func (n *stateNotifier) SetConnectionStateListener(listener ConnectionStateListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listener = listener
}

func (n *stateNotifier) notifyConnectionEstablished() {
	n.mu.RLock()
	listener := n.listener
	n.mu.RUnlock()

	if listener != nil {
		listener.OnConnectionEstablished()
	}
}

func (n *stateNotifier) notifyConnectionLost() {
	n.mu.RLock()
	listener := n.listener
	n.mu.RUnlock()

	if listener != nil {
		listener.OnConnectionLost()
	}
}
