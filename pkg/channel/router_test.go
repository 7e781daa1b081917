package channel

import (
	"errors"
	"sync"
	"testing"

	"avaneesh/otrfrag-go/pkg/types"
)

type recordingSession struct {
	tag      types.InstanceTag
	mu       sync.Mutex
	received []Envelope
	lost     int
	up       int
}

func (s *recordingSession) OnReceive(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, env)
	return nil
}

func (s *recordingSession) InstanceTag() types.InstanceTag {
	return s.tag
}

func (s *recordingSession) OnConnectionEstablished() {
	s.mu.Lock()
	s.up++
	s.mu.Unlock()
}

func (s *recordingSession) OnConnectionLost() {
	s.mu.Lock()
	s.lost++
	s.mu.Unlock()
}

func (s *recordingSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func TestRouter_Route(t *testing.T) {
	primary := &recordingSession{tag: 0x100}
	second := &recordingSession{tag: 0xff123456}

	r := NewRouter()
	if err := r.AddSession(primary); err != nil {
		t.Fatalf("AddSession error: %v", err)
	}
	if err := r.AddSession(second); err != nil {
		t.Fatalf("AddSession error: %v", err)
	}

	tests := []struct {
		name string
		text string
		want *recordingSession
	}{
		{"Addressed to second", "?OTR|00000200|ff123456,1,1,x,", second},
		{"Addressed to primary", "?OTR|00000200|00000100,1,1,x,", primary},
		{"Addressed to unknown", "?OTR|00000200|00000300,1,1,x,", primary},
		{"Zero receiver", "?OTR|00000200|0,1,1,x,", primary},
		{"Legacy", "?OTR,1,1,x,", primary},
		{"Plain", "hello", primary},
		{"Bad receiver", "?OTR|00000200|zz,1,1,x,", primary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Target(Envelope{Text: tt.text})
			if err != nil {
				t.Fatalf("Target error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Target(%q) = %s, want %s", tt.text, got.InstanceTag(), tt.want.InstanceTag())
			}
		})
	}

	if err := r.Route(Envelope{Text: "?OTR|00000200|ff123456,1,1,x,"}); err != nil {
		t.Fatalf("Route error: %v", err)
	}
	if second.count() != 1 {
		t.Errorf("second received %d messages, want 1", second.count())
	}
}

func TestRouter_DuplicateTag(t *testing.T) {
	r := NewRouter()
	r.AddSession(&recordingSession{tag: 0x100})

	if err := r.AddSession(&recordingSession{tag: 0x100}); err == nil {
		t.Error("Expected error for duplicate instance tag")
	}
}

func TestRouter_RemoveSessionPromotesNext(t *testing.T) {
	first := &recordingSession{tag: 0x100}
	second := &recordingSession{tag: 0x200}

	r := NewRouter()
	r.AddSession(first)
	r.AddSession(second)
	r.RemoveSession(0x100)

	got, err := r.Target(Envelope{Text: "plain"})
	if err != nil || got != second {
		t.Fatalf("Target after removal = %v, %v; want second session", got, err)
	}

	r.Clear()
	if _, err := r.Target(Envelope{Text: "plain"}); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
	if r.GetSessionCount() != 0 {
		t.Errorf("GetSessionCount = %d, want 0", r.GetSessionCount())
	}
}
