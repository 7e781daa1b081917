package transport

import "errors"

var (
	ErrMalformedHeader    = errors.New("malformed fragment header")
	ErrInvalidInstanceTag = errors.New("invalid receiver instance tag")
	ErrMalformedFragment  = errors.New("malformed fragment")
	ErrOutOfBounds        = errors.New("fragment number out of bounds")
	ErrOutOfSequence      = errors.New("fragment out of sequence")
	ErrBufferOverflow     = errors.New("reassembly buffer overflow")
	ErrReassemblyTimeout  = errors.New("reassembly timed out")

	ErrPieceHasComma     = errors.New("message payload contains a comma")
	ErrTooManyFragments  = errors.New("message needs more than 65535 fragments")
	ErrInvalidPieceSize  = errors.New("piece size must be positive")
	ErrUnsupportedFormat = errors.New("unsupported fragment format")
)

// ErrorKind classifies reassembly failures
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindMalformedHeader
	KindInvalidInstanceTag
	KindMalformedFragment
	KindOutOfBounds
	KindOutOfSequence
	KindBufferOverflow
	KindOther
)

// String returns string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindMalformedHeader:
		return "MalformedHeader"
	case KindInvalidInstanceTag:
		return "InvalidInstanceTag"
	case KindMalformedFragment:
		return "MalformedFragment"
	case KindOutOfBounds:
		return "OutOfBounds"
	case KindOutOfSequence:
		return "OutOfSequence"
	case KindBufferOverflow:
		return "BufferOverflow"
	default:
		return "Other"
	}
}

// ErrorKindOf maps an error returned by this package to its kind
func ErrorKindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformedHeader):
		return KindMalformedHeader
	case errors.Is(err, ErrInvalidInstanceTag):
		return KindInvalidInstanceTag
	case errors.Is(err, ErrMalformedFragment):
		return KindMalformedFragment
	case errors.Is(err, ErrOutOfBounds):
		return KindOutOfBounds
	case errors.Is(err, ErrOutOfSequence):
		return KindOutOfSequence
	case errors.Is(err, ErrBufferOverflow):
		return KindBufferOverflow
	default:
		return KindOther
	}
}
