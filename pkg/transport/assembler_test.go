package transport

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"avaneesh/otrfrag-go/pkg/types"
)

// addressed builds an addressed fragment for receiver with sender ff123456
func addressed(receiver types.InstanceTag, k, n int, piece string) string {
	return fmt.Sprintf("?OTR|ff123456|%08x,%05d,%05d,%s,", uint32(receiver), k, n, piece)
}

func legacy(k, n int, piece string) string {
	return fmt.Sprintf("?OTR,%05d,%05d,%s,", k, n, piece)
}

func mustIncomplete(t *testing.T, a *Assembler, input string) {
	t.Helper()
	result, err := a.Accumulate(input)
	if err != nil {
		t.Fatalf("Accumulate(%q) unexpected error: %v", input, err)
	}
	if result.Status != StatusIncomplete {
		t.Fatalf("Accumulate(%q) status = %s, want Incomplete", input, result.Status)
	}
}

func mustComplete(t *testing.T, a *Assembler, input, want string) {
	t.Helper()
	result, err := a.Accumulate(input)
	if err != nil {
		t.Fatalf("Accumulate(%q) unexpected error: %v", input, err)
	}
	if result.Status != StatusComplete {
		t.Fatalf("Accumulate(%q) status = %s, want Complete", input, result.Status)
	}
	if result.Message != want {
		t.Fatalf("Accumulate(%q) message = %q, want %q", input, result.Message, want)
	}
}

func assertIdle(t *testing.T, a *Assembler) {
	t.Helper()
	current, total := a.Progress()
	if current != 0 || total != 0 || a.Buffered() != 0 || a.InProgress() {
		t.Fatalf("assembler not idle: current=%d total=%d buffered=%d", current, total, a.Buffered())
	}
}

func TestAssembler_HighestAndLowestTag(t *testing.T) {
	for _, tag := range []types.InstanceTag{0xffffffff, 0x00000100, 0xff123456} {
		a := NewAssembler(tag)
		mustIncomplete(t, a, addressed(tag, 1, 2, "test"))
	}
}

func TestAssembler_TwoPartExample(t *testing.T) {
	a := NewAssembler(0xff123456)
	mustIncomplete(t, a, "?OTR|ff123456|ff123456,00001,00002,abcdef,")
	mustComplete(t, a, "?OTR|ff123456|ff123456,00002,00002,ghijkl,", "abcdefghijkl")
	assertIdle(t, a)
}

func TestAssembler_SinglePartMessage(t *testing.T) {
	tag := types.InstanceTag(0xfedcba98)
	a := NewAssembler(tag)
	mustComplete(t, a, addressed(tag, 1, 1, "test"), "test")
	assertIdle(t, a)
}

func TestAssembler_FourPartMessage(t *testing.T) {
	tag := types.InstanceTag(0xfedcba98)
	a := NewAssembler(tag)
	mustIncomplete(t, a, addressed(tag, 1, 4, "a"))
	mustIncomplete(t, a, addressed(tag, 2, 4, "b"))
	mustIncomplete(t, a, addressed(tag, 3, 4, "c"))
	mustComplete(t, a, addressed(tag, 4, 4, "d"), "abcd")
}

func TestAssembler_LegacyFormat(t *testing.T) {
	a := NewAssembler(0x12345678)
	mustIncomplete(t, a, "?OTR,1,3,abc,")
	mustIncomplete(t, a, "?OTR,2,3,def,")
	result, err := a.Accumulate("?OTR,3,3,ghi,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusComplete || result.Message != "abcdefghi" {
		t.Fatalf("got %s %q, want Complete %q", result.Status, result.Message, "abcdefghi")
	}
	if result.Format != FormatLegacy {
		t.Errorf("Format = %s, want Legacy", result.Format)
	}
}

func TestAssembler_Errors(t *testing.T) {
	tag := types.InstanceTag(0xff123456)

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"33 bit receiver tag", "?OTR|ff123456|1ff123456,00001,00002,test,", ErrInvalidInstanceTag},
		{"Non-hex receiver tag", "?OTR|ff123456|ff12345z,00001,00002,test,", ErrInvalidInstanceTag},
		{"Empty receiver tag", "?OTR|ff123456|,00001,00002,test,", ErrInvalidInstanceTag},
		{"Negative receiver tag", "?OTR|ff123456|-1,00001,00002,test,", ErrInvalidInstanceTag},
		{"Missing comma after header", "?OTR|ff123456|ff123456", ErrMalformedHeader},
		{"Missing pipe", "?OTR|ff123456,00001,00002,test,", ErrMalformedHeader},
		{"Three tags", "?OTR|ff123456|ff123456|ff123456,00001,00002,test,", ErrMalformedHeader},
		{"Empty payload", addressed(tag, 1, 2, ""), ErrMalformedFragment},
		{"Trailing data", addressed(tag, 1, 2, "test") + "invalid", ErrMalformedFragment},
		{"Missing trailing comma", "?OTR,00001,00002,test", ErrMalformedFragment},
		{"Too few fields", "?OTR,00001,", ErrMalformedFragment},
		{"Only prefix", "?OTR,", ErrMalformedFragment},
		{"Non-numeric k", "?OTR,x,00002,test,", ErrMalformedFragment},
		{"Non-numeric n", "?OTR,00001,y,test,", ErrMalformedFragment},
		{"Negative k", "?OTR|ff123456|ff123456,-0001,00002,test,", ErrMalformedFragment},
		{"Signed n", "?OTR,1,+2,test,", ErrMalformedFragment},
		{"Empty k", "?OTR,,00002,test,", ErrMalformedFragment},
		{"Zero k", "?OTR,00000,00002,test,", ErrOutOfBounds},
		{"Zero n", "?OTR,00001,00000,test,", ErrOutOfBounds},
		{"k larger than n", addressed(tag, 3, 2, "test"), ErrOutOfBounds},
		{"k over upper bound", addressed(tag, 65536, 65536, "test"), ErrOutOfBounds},
		{"n over upper bound", addressed(tag, 1, 65536, "test"), ErrOutOfBounds},
		{"Overflowing n", "?OTR,1,99999999999999999999999,test,", ErrOutOfBounds},
		{"Continuation with mismatched total", addressed(tag, 2, 2, "test"), ErrOutOfSequence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(tag)
			// Start a reassembly so that the reset side effect is visible
			mustIncomplete(t, a, addressed(tag, 1, 3, "partial"))

			result, err := a.Accumulate(tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Accumulate(%q) error = %v, want %v", tt.input, err, tt.want)
			}
			if result.Status == StatusComplete {
				t.Errorf("Accumulate(%q) returned Complete on error", tt.input)
			}
			assertIdle(t, a)
		})
	}
}

func TestAssembler_BoundaryAcceptance(t *testing.T) {
	tag := types.InstanceTag(0xff123456)

	a := NewAssembler(tag)
	mustIncomplete(t, a, addressed(tag, 1, 65535, "test"))

	// k=65535 of n=65535 is a valid fragment, but out of sequence when idle
	a = NewAssembler(tag)
	if _, err := a.Accumulate(addressed(tag, 65535, 65535, "test")); !errors.Is(err, ErrOutOfSequence) {
		t.Fatalf("expected ErrOutOfSequence, got %v", err)
	}
}

func TestAssembler_MaximumRoundTrip(t *testing.T) {
	a := NewAssembler(0x100)
	var want strings.Builder
	for k := 1; k <= MaxFragments; k++ {
		piece := string(rune('a' + k%26))
		want.WriteString(piece)
		result, err := a.Accumulate(legacy(k, MaxFragments, piece))
		if err != nil {
			t.Fatalf("fragment %d: unexpected error: %v", k, err)
		}
		if k < MaxFragments && result.Status != StatusIncomplete {
			t.Fatalf("fragment %d: status = %s, want Incomplete", k, result.Status)
		}
		if k == MaxFragments {
			if result.Status != StatusComplete || result.Message != want.String() {
				t.Fatalf("final fragment: status = %s, message mismatch", result.Status)
			}
		}
	}
	assertIdle(t, a)
}

func TestAssembler_RoundTripSplit(t *testing.T) {
	tag := types.InstanceTag(0xabcdef01)
	msg := strings.Repeat("?OTR:AAMDbase64payload.", 40)

	for _, size := range []int{1, 7, 100, len(msg) - 1} {
		t.Run(fmt.Sprintf("piece=%d", size), func(t *testing.T) {
			fragments, err := SplitMessage(msg, SplitOptions{
				MaxPieceSize: size,
				Format:       FormatAddressed,
				Sender:       0x100,
				Receiver:     tag,
			})
			if err != nil {
				t.Fatalf("SplitMessage error: %v", err)
			}

			a := NewAssembler(tag)
			for i, frag := range fragments[:len(fragments)-1] {
				result, err := a.Accumulate(frag)
				if err != nil || result.Status != StatusIncomplete {
					t.Fatalf("fragment %d: status=%s err=%v", i+1, result.Status, err)
				}
			}
			mustComplete(t, a, fragments[len(fragments)-1], msg)
		})
	}
}

func TestAssembler_NewFirstFragmentSupersedes(t *testing.T) {
	tag := types.InstanceTag(0xff123456)
	a := NewAssembler(tag)

	mustIncomplete(t, a, addressed(tag, 1, 3, "first"))
	mustIncomplete(t, a, addressed(tag, 1, 2, "second"))
	mustComplete(t, a, addressed(tag, 2, 2, "-tail"), "second-tail")
}

func TestAssembler_OutOfOrderRejection(t *testing.T) {
	tag := types.InstanceTag(0xff123456)

	tests := []struct {
		name  string
		input string
	}{
		{"Fragment 2 with different total", addressed(tag, 2, 3, "x")},
		{"Skipped fragment", addressed(tag, 3, 3, "x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(tag)
			mustIncomplete(t, a, addressed(tag, 1, 2, "stale"))

			if _, err := a.Accumulate(tt.input); !errors.Is(err, ErrOutOfSequence) {
				t.Fatalf("expected ErrOutOfSequence, got %v", err)
			}
			assertIdle(t, a)

			// Next attempt starts clean
			mustIncomplete(t, a, addressed(tag, 1, 2, "fresh"))
			mustComplete(t, a, addressed(tag, 2, 2, "!"), "fresh!")
		})
	}
}

func TestAssembler_RepeatedFirstFragmentRestarts(t *testing.T) {
	tag := types.InstanceTag(0xff123456)
	a := NewAssembler(tag)

	mustIncomplete(t, a, addressed(tag, 1, 2, "dup"))
	mustIncomplete(t, a, addressed(tag, 1, 2, "dup"))
	mustComplete(t, a, addressed(tag, 2, 2, "e"), "dupe")
}

func TestAssembler_DuplicateContinuationRejected(t *testing.T) {
	tag := types.InstanceTag(0xff123456)
	a := NewAssembler(tag)

	mustIncomplete(t, a, addressed(tag, 1, 3, "a"))
	mustIncomplete(t, a, addressed(tag, 2, 3, "b"))
	if _, err := a.Accumulate(addressed(tag, 2, 3, "b")); !errors.Is(err, ErrOutOfSequence) {
		t.Fatalf("expected ErrOutOfSequence, got %v", err)
	}
	assertIdle(t, a)
}

func TestAssembler_InstanceTagRouting(t *testing.T) {
	own := types.InstanceTag(0x11111111)
	other := types.InstanceTag(0x22222222)

	t.Run("Zero receiver accepted", func(t *testing.T) {
		a := NewAssembler(own)
		mustComplete(t, a, addressed(types.ZeroTag, 1, 1, "hi"), "hi")
	})

	t.Run("Own receiver accepted", func(t *testing.T) {
		a := NewAssembler(own)
		mustComplete(t, a, addressed(own, 1, 1, "hi"), "hi")
	})

	t.Run("Foreign receiver leaves state untouched", func(t *testing.T) {
		a := NewAssembler(own)
		mustIncomplete(t, a, addressed(own, 1, 2, "left"))

		result, err := a.Accumulate(addressed(other, 1, 1, "intruder"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Status != StatusForeignRecipient {
			t.Fatalf("status = %s, want ForeignRecipient", result.Status)
		}

		current, total := a.Progress()
		if current != 1 || total != 2 {
			t.Fatalf("progress = %d/%d, want 1/2", current, total)
		}
		mustComplete(t, a, addressed(own, 2, 2, "right"), "leftright")
	})

	t.Run("Foreign receiver with malformed body is not parsed", func(t *testing.T) {
		a := NewAssembler(own)
		result, err := a.Accumulate("?OTR|ff123456|22222222,garbage")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Status != StatusForeignRecipient {
			t.Fatalf("status = %s, want ForeignRecipient", result.Status)
		}
	})

	t.Run("Zero own tag accepts only zero receiver", func(t *testing.T) {
		a := NewAssembler(types.ZeroTag)
		mustComplete(t, a, addressed(types.ZeroTag, 1, 1, "x"), "x")
		result, err := a.Accumulate(addressed(own, 1, 1, "x"))
		if err != nil || result.Status != StatusForeignRecipient {
			t.Fatalf("got %s %v, want ForeignRecipient", result.Status, err)
		}
	})

	t.Run("Sender tag is not validated", func(t *testing.T) {
		a := NewAssembler(own)
		mustComplete(t, a, fmt.Sprintf("?OTR|not-a-tag|%08x,1,1,x,", uint32(own)), "x")
	})
}

func TestAssembler_NonFragmentPassthrough(t *testing.T) {
	tag := types.InstanceTag(0xff123456)

	tests := []string{
		"hello world",
		"",
		"?OTR:AAMDbase64.",
		"?OTR?v3?",
		"?OT,1,1,x,",
		" ?OTR,1,1,x,",
	}

	for _, input := range tests {
		a := NewAssembler(tag)
		mustIncomplete(t, a, addressed(tag, 1, 2, "partial"))
		mustComplete(t, a, input, input)
		assertIdle(t, a)
	}
}

func TestAssembler_ResetIdempotent(t *testing.T) {
	tag := types.InstanceTag(0xff123456)
	a := NewAssembler(tag)
	mustIncomplete(t, a, addressed(tag, 1, 2, "partial"))

	for i := 0; i < 3; i++ {
		a.Reset()
		assertIdle(t, a)
	}

	if a.OwnInstance() != tag {
		t.Errorf("OwnInstance() = %s, want %s", a.OwnInstance(), tag)
	}

	// Continuation after reset has nothing to continue
	if _, err := a.Accumulate(addressed(tag, 2, 2, "tail")); !errors.Is(err, ErrOutOfSequence) {
		t.Fatalf("expected ErrOutOfSequence after reset, got %v", err)
	}
}
