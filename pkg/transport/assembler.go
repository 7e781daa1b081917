package transport

import (
	"fmt"
	"strings"

	"avaneesh/otrfrag-go/pkg/types"
)

// Status describes the outcome of a successful Accumulate call
type Status int

const (
	StatusIncomplete       Status = iota // Fragment accepted, more expected
	StatusComplete                       // Message available in Result.Message
	StatusForeignRecipient               // Fragment addressed to another instance, ignored
)

// String returns string representation of Status
func (s Status) String() string {
	switch s {
	case StatusIncomplete:
		return "Incomplete"
	case StatusComplete:
		return "Complete"
	case StatusForeignRecipient:
		return "ForeignRecipient"
	default:
		return "Unknown"
	}
}

// Result is returned by Accumulate
type Result struct {
	Status  Status
	Message string // Set only for StatusComplete
	Format  Format // Format of the consumed input
}

// assemblyState is replaced as a whole on every reset.
// current == 0 iff total == 0 iff buffer is empty.
type assemblyState struct {
	buffer  strings.Builder
	current int // index of the last appended fragment
	total   int // fragment count declared by fragment 1
}

// Assembler reassembles fragmented messages for one conversation.
// It holds at most one reassembly in progress and is not safe for
// concurrent use.
type Assembler struct {
	ownInstance types.InstanceTag
	state       assemblyState
}

// NewAssembler creates an assembler that accepts fragments addressed to
// ownInstance or to the zero tag
func NewAssembler(ownInstance types.InstanceTag) *Assembler {
	return &Assembler{ownInstance: ownInstance}
}

// Accumulate processes one inbound message.
//
// Plain messages are returned as complete and discard any partial state.
// Fragments are appended in strict order; the final fragment yields the
// reassembled message. On error the partial state is discarded. A fragment
// for another instance returns StatusForeignRecipient and leaves the state
// untouched.
func (a *Assembler) Accumulate(text string) (Result, error) {
	h, err := decodeHeader(text)
	if err != nil {
		a.Reset()
		return Result{}, err
	}

	switch h.format {
	case FormatNone:
		a.Reset()
		return Result{Status: StatusComplete, Message: text, Format: FormatNone}, nil

	case FormatAddressed:
		// Sender tag is not checked.
		if !h.receiver.IsZero() && h.receiver != a.ownInstance {
			return Result{Status: StatusForeignRecipient, Format: FormatAddressed}, nil
		}
	}

	k, n, piece, err := decodeBody(h.body)
	if err != nil {
		a.Reset()
		return Result{}, err
	}

	switch {
	case k == 1:
		// A new first fragment always supersedes a reassembly in progress.
		a.Reset()
		a.state.current = 1
		a.state.total = n
		a.state.buffer.WriteString(piece)

	case a.state.current > 0 && n == a.state.total && k == a.state.current+1:
		a.state.current++
		a.state.buffer.WriteString(piece)

	default:
		expected, total := a.state.current+1, a.state.total
		a.Reset()
		return Result{}, fmt.Errorf("%w: got %d/%d, expected %d/%d", ErrOutOfSequence, k, n, expected, total)
	}

	if k == n {
		message := a.state.buffer.String()
		a.Reset()
		return Result{Status: StatusComplete, Message: message, Format: h.format}, nil
	}

	return Result{Status: StatusIncomplete, Format: h.format}, nil
}

// Reset discards any partial message. It is idempotent.
func (a *Assembler) Reset() {
	a.state = assemblyState{}
}

// InProgress returns true if a reassembly is in progress
func (a *Assembler) InProgress() bool {
	return a.state.current > 0
}

// Progress returns the last accepted fragment index and the expected total
func (a *Assembler) Progress() (current, total int) {
	return a.state.current, a.state.total
}

// Buffered returns the number of payload bytes held
func (a *Assembler) Buffered() int {
	return a.state.buffer.Len()
}

// OwnInstance returns the instance tag this assembler accepts
func (a *Assembler) OwnInstance() types.InstanceTag {
	return a.ownInstance
}
