package channel

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLineReader(t *testing.T) {
	input := "first\r\nsecond\n\nthird\n" + strings.Repeat("x", 20) + "\nlast\npartial"
	lr := newLineReader(strings.NewReader(input), 10)

	want := []struct {
		line string
		err  error
	}{
		{"first", nil},
		{"second", nil},
		{"", nil},
		{"third", nil},
		{"", ErrMessageTooLarge},
		{"last", nil},
		{"", io.EOF},
	}

	for i, w := range want {
		line, err := lr.ReadLine()
		if w.err != nil {
			if !errors.Is(err, w.err) {
				t.Fatalf("line %d: error = %v, want %v", i, err, w.err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("line %d: unexpected error %v", i, err)
		}
		if line != w.line {
			t.Errorf("line %d = %q, want %q", i, line, w.line)
		}
	}
}

func TestLineReader_LongLinesAcrossBuffer(t *testing.T) {
	long := strings.Repeat("a", 10000)
	lr := newLineReader(strings.NewReader(long+"\n"+strings.Repeat("b", 70000)+"\nok\n"), DefaultMaxMessageSize)

	line, err := lr.ReadLine()
	if err != nil || line != long {
		t.Fatalf("ReadLine = %d bytes, %v; want %d bytes", len(line), err, len(long))
	}

	if _, err := lr.ReadLine(); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("Expected ErrMessageTooLarge, got %v", err)
	}

	line, err = lr.ReadLine()
	if err != nil || line != "ok" {
		t.Fatalf("ReadLine = %q, %v; want ok", line, err)
	}
}

func TestEncodeLine(t *testing.T) {
	data, err := encodeLine("?OTR,1,1,x,", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "?OTR,1,1,x,\n" {
		t.Errorf("encodeLine = %q", data)
	}

	if _, err := encodeLine("a\nb", 0); !errors.Is(err, ErrLineBreak) {
		t.Errorf("Expected ErrLineBreak, got %v", err)
	}
	if _, err := encodeLine("abcdef", 5); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("Expected ErrMessageTooLarge, got %v", err)
	}
}
