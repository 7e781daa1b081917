package transport

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"avaneesh/otrfrag-go/pkg/types"
)

// Fragment wire prefixes
const (
	HeadLegacy    = "?OTR,"
	HeadAddressed = "?OTR|"
)

// MaxFragments bounds both the fragment index and the fragment total
// (16-bit wire fields)
const MaxFragments = 65535

// Format identifies the encoding of an inbound message
type Format int

const (
	FormatNone      Format = iota // Not a fragment
	FormatLegacy                  // ?OTR,k,n,piece,
	FormatAddressed               // ?OTR|sender|receiver,k,n,piece,
)

// String returns string representation of Format
func (f Format) String() string {
	switch f {
	case FormatNone:
		return "None"
	case FormatLegacy:
		return "Legacy"
	case FormatAddressed:
		return "Addressed"
	default:
		return "Unknown"
	}
}

// ParseFormat parses a format name as written in configuration files
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "v2":
		return FormatLegacy, nil
	case "addressed", "v3", "":
		return FormatAddressed, nil
	default:
		return FormatNone, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Fragment is one decoded message fragment
type Fragment struct {
	Format   Format
	Sender   types.InstanceTag // Zero when the sender token is not a valid tag
	Receiver types.InstanceTag
	Index    int // 1-based
	Total    int
	Piece    string
}

// String converts the fragment to wire format
func (f *Fragment) String() string {
	switch f.Format {
	case FormatLegacy:
		return fmt.Sprintf("%s%05d,%05d,%s,", HeadLegacy, f.Index, f.Total, f.Piece)
	case FormatAddressed:
		return fmt.Sprintf("%s%s|%s,%05d,%05d,%s,", HeadAddressed, f.Sender, f.Receiver, f.Index, f.Total, f.Piece)
	default:
		return f.Piece
	}
}

// header is the decoded prefix of an inbound message
type header struct {
	format   Format
	sender   string // raw token, never validated
	receiver types.InstanceTag
	body     string // k,n,piece,
}

// decodeHeader detects the fragment format and strips its prefix.
// Non-fragment text yields FormatNone.
func decodeHeader(text string) (header, error) {
	switch {
	case strings.HasPrefix(text, HeadLegacy):
		return header{format: FormatLegacy, body: text[len(HeadLegacy):]}, nil

	case strings.HasPrefix(text, HeadAddressed):
		tags, body, found := strings.Cut(text[len(HeadAddressed):], ",")
		if !found {
			return header{}, fmt.Errorf("%w: missing ',' after instance tags", ErrMalformedHeader)
		}

		parts := strings.Split(tags, "|")
		if len(parts) != 2 {
			return header{}, fmt.Errorf("%w: expected sender|receiver, got %d tokens", ErrMalformedHeader, len(parts))
		}

		receiver, err := types.ParseInstanceTag(parts[1])
		if err != nil {
			return header{}, fmt.Errorf("%w: %w", ErrInvalidInstanceTag, err)
		}

		return header{
			format:   FormatAddressed,
			sender:   parts[0],
			receiver: receiver,
			body:     body,
		}, nil

	default:
		return header{format: FormatNone}, nil
	}
}

// decodeBody parses "k,n,piece," and validates the counters
func decodeBody(body string) (k, n int, piece string, err error) {
	params := strings.SplitN(body, ",", 4)
	if len(params) != 4 {
		return 0, 0, "", fmt.Errorf("%w: expected k,n,piece, got %d fields", ErrMalformedFragment, len(params))
	}

	if k, err = parseCount(params[0]); err != nil {
		return 0, 0, "", fmt.Errorf("%w: fragment index: %w", ErrMalformedFragment, err)
	}
	if n, err = parseCount(params[1]); err != nil {
		return 0, 0, "", fmt.Errorf("%w: fragment total: %w", ErrMalformedFragment, err)
	}
	if params[2] == "" {
		return 0, 0, "", fmt.Errorf("%w: empty payload", ErrMalformedFragment)
	}
	if params[3] != "" {
		return 0, 0, "", fmt.Errorf("%w: data after trailing comma", ErrMalformedFragment)
	}

	if k < 1 || k > MaxFragments || n < 1 || n > MaxFragments || k > n {
		return 0, 0, "", fmt.Errorf("%w: k=%d n=%d", ErrOutOfBounds, k, n)
	}

	return k, n, params[2], nil
}

// parseCount parses an unsigned decimal counter. Values too large for an
// int are clamped above MaxFragments so the bounds check rejects them.
func parseCount(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("invalid number %q", s)
		}
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v > MaxFragments {
		return MaxFragments + 1, nil
	}
	return int(v), nil
}

// ParseFragment decodes a fragment without any reassembly state.
// Returns nil, nil if text is not a fragment.
func ParseFragment(text string) (*Fragment, error) {
	h, err := decodeHeader(text)
	if err != nil {
		return nil, err
	}
	if h.format == FormatNone {
		return nil, nil
	}

	k, n, piece, err := decodeBody(h.body)
	if err != nil {
		return nil, err
	}

	frag := &Fragment{
		Format:   h.format,
		Receiver: h.receiver,
		Index:    k,
		Total:    n,
		Piece:    piece,
	}
	if h.format == FormatAddressed {
		if sender, err := types.ParseInstanceTag(h.sender); err == nil {
			frag.Sender = sender
		}
	}
	return frag, nil
}

// PeekReceiver returns the receiver tag of an addressed fragment.
// ok is false for legacy fragments, plain messages and malformed headers.
func PeekReceiver(text string) (receiver types.InstanceTag, ok bool) {
	if !strings.HasPrefix(text, HeadAddressed) {
		return types.ZeroTag, false
	}
	h, err := decodeHeader(text)
	if err != nil {
		return types.ZeroTag, false
	}
	return h.receiver, true
}

// SplitOptions controls sender-side fragmentation
type SplitOptions struct {
	MaxPieceSize int // payload bytes per fragment
	Format       Format
	Sender       types.InstanceTag
	Receiver     types.InstanceTag
}

// SplitMessage breaks a message into wire fragments.
// A message that fits into one piece is returned unchanged.
func SplitMessage(msg string, opts SplitOptions) ([]string, error) {
	if opts.MaxPieceSize <= 0 {
		return nil, ErrInvalidPieceSize
	}
	if len(msg) <= opts.MaxPieceSize {
		return []string{msg}, nil
	}
	if opts.Format != FormatLegacy && opts.Format != FormatAddressed {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
	}
	if strings.Contains(msg, ",") {
		return nil, ErrPieceHasComma
	}
	if (len(msg)+opts.MaxPieceSize-1)/opts.MaxPieceSize > MaxFragments {
		return nil, ErrTooManyFragments
	}

	pieces := splitPieces(msg, opts.MaxPieceSize)
	if len(pieces) > MaxFragments {
		return nil, ErrTooManyFragments
	}

	result := make([]string, len(pieces))
	for i, piece := range pieces {
		frag := Fragment{
			Format:   opts.Format,
			Sender:   opts.Sender,
			Receiver: opts.Receiver,
			Index:    i + 1,
			Total:    len(pieces),
			Piece:    piece,
		}
		result[i] = frag.String()
	}
	return result, nil
}

// splitPieces cuts msg into chunks of at most max bytes on rune boundaries.
// A chunk always holds at least one rune.
func splitPieces(msg string, max int) []string {
	var pieces []string
	for len(msg) > 0 {
		end := len(msg)
		if end > max {
			end = max
			for end > 0 && !utf8.RuneStart(msg[end]) {
				end--
			}
			if end == 0 {
				_, end = utf8.DecodeRuneInString(msg)
			}
		}
		pieces = append(pieces, msg[:end])
		msg = msg[end:]
	}
	return pieces
}
