package types

import (
	"errors"
	"testing"
)

// TestParseInstanceTag tests hex parsing of wire instance tags
func TestParseInstanceTag(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    InstanceTag
		wantErr error
	}{
		{"Lowest valid", "00000100", 0x00000100, nil},
		{"Mid minus one", "7ffffffe", 0x7ffffffe, nil},
		{"Mid", "7fffffff", 0x7fffffff, nil},
		{"Mid plus one", "80000000", 0x80000000, nil},
		{"Highest", "ffffffff", 0xffffffff, nil},
		{"Upper case", "FF123456", 0xff123456, nil},
		{"Short form", "100", 0x100, nil},
		{"Zero", "0", ZeroTag, nil},
		{"Nine digits", "1ff123456", ZeroTag, ErrTagTooLong},
		{"Nine zero digits", "000000000", ZeroTag, ErrTagTooLong},
		{"Empty", "", ZeroTag, ErrTagSyntax},
		{"Not hex", "ff12345g", ZeroTag, ErrTagSyntax},
		{"Negative", "-1", ZeroTag, ErrTagSyntax},
		{"Plus sign", "+100", ZeroTag, ErrTagSyntax},
		{"Hex prefix", "0x100", ZeroTag, ErrTagSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInstanceTag(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseInstanceTag(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInstanceTag(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseInstanceTag(%q) = %#x, want %#x", tt.input, uint32(got), uint32(tt.want))
			}
		})
	}
}

func TestInstanceTag_Valid(t *testing.T) {
	tests := []struct {
		tag  InstanceTag
		want bool
	}{
		{ZeroTag, true},
		{0x01, false},
		{0xff, false},
		{SmallestTag, true},
		{0xffffffff, true},
	}

	for _, tt := range tests {
		if got := tt.tag.Valid(); got != tt.want {
			t.Errorf("InstanceTag(%#x).Valid() = %v, want %v", uint32(tt.tag), got, tt.want)
		}
	}
}

func TestInstanceTag_String(t *testing.T) {
	if got := InstanceTag(0x100).String(); got != "00000100" {
		t.Errorf("String() = %q, want %q", got, "00000100")
	}
	if got := InstanceTag(0xff123456).String(); got != "ff123456" {
		t.Errorf("String() = %q, want %q", got, "ff123456")
	}
}

func TestNewRandomInstanceTag(t *testing.T) {
	for i := 0; i < 100; i++ {
		tag, err := NewRandomInstanceTag()
		if err != nil {
			t.Fatalf("NewRandomInstanceTag error: %v", err)
		}
		if tag.IsZero() || !tag.Valid() {
			t.Fatalf("NewRandomInstanceTag returned invalid tag %s", tag)
		}
	}
}
