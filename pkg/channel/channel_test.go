package channel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestChannel_RoutesInbound(t *testing.T) {
	local, remote := NewPipe("local", "remote")
	ch := New("test", local, nil)
	defer ch.Close()

	session := &recordingSession{tag: 0x100}
	if err := ch.AddSession(session); err != nil {
		t.Fatalf("AddSession error: %v", err)
	}
	if err := ch.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	ctx := context.Background()
	if err := remote.Write(ctx, Envelope{Text: "hello"}); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	waitFor(t, func() bool { return session.count() == 1 })

	session.mu.Lock()
	env := session.received[0]
	session.mu.Unlock()
	if env.Peer != "remote" || env.Text != "hello" {
		t.Errorf("received %+v, want {remote hello}", env)
	}

	if got := ch.GetStatistics().GetMessagesRx(); got != 1 {
		t.Errorf("MessagesRx = %d, want 1", got)
	}
}

func TestChannel_WriteAll(t *testing.T) {
	local, remote := NewPipe("local", "remote")
	ch := New("test", local, nil)
	defer ch.Close()

	if err := ch.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	texts := []string{"one", "two", "three"}
	if err := ch.WriteAll(ctx, "remote", texts); err != nil {
		t.Fatalf("WriteAll error: %v", err)
	}

	for _, want := range texts {
		env, err := remote.Read(ctx)
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
		if env.Text != want || env.Peer != "local" {
			t.Errorf("Read = %+v, want {local %s}", env, want)
		}
	}

	if got := ch.GetStatistics().GetMessagesTx(); got != 3 {
		t.Errorf("MessagesTx = %d, want 3", got)
	}
}

func TestChannel_WriteWhenClosed(t *testing.T) {
	local, _ := NewPipe("local", "remote")
	ch := New("test", local, nil)

	if err := ch.Write(context.Background(), Envelope{Text: "x"}); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Write before Open = %v, want ErrChannelClosed", err)
	}

	ch.Open()
	if err := ch.Open(); !errors.Is(err, ErrChannelOpen) {
		t.Errorf("second Open = %v, want ErrChannelOpen", err)
	}
	ch.Close()

	if err := ch.Write(context.Background(), Envelope{Text: "x"}); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Write after Close = %v, want ErrChannelClosed", err)
	}
	if ch.State() != ChannelStateClosed {
		t.Errorf("State = %s, want Closed", ch.State())
	}
}

func TestChannel_ForwardsConnectionState(t *testing.T) {
	local, _ := NewPipe("local", "remote")
	ch := New("test", local, nil)
	defer ch.Close()

	session := &recordingSession{tag: 0x100}
	ch.AddSession(session)

	local.SimulateConnectionLost()
	local.SimulateConnectionEstablished()

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.lost != 1 || session.up != 1 {
		t.Errorf("lost=%d up=%d, want 1 and 1", session.lost, session.up)
	}
	if got := ch.GetStatistics().GetStateChanges(); got != 2 {
		t.Errorf("StateChanges = %d, want 2", got)
	}
}

func TestTCPChannel_Loopback(t *testing.T) {
	server, err := NewTCPChannel(TCPChannelConfig{Address: "127.0.0.1:0", IsServer: true})
	if err != nil {
		t.Fatalf("NewTCPChannel server: %v", err)
	}
	defer server.Close()

	client, err := NewTCPChannel(TCPChannelConfig{Address: server.Addr().String()})
	if err != nil {
		t.Fatalf("NewTCPChannel client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Write(ctx, Envelope{Text: "?OTR,00001,00001,hi,"}); err != nil {
		t.Fatalf("client Write: %v", err)
	}

	env, err := server.Read(ctx)
	if err != nil {
		t.Fatalf("server Read: %v", err)
	}
	if env.Text != "?OTR,00001,00001,hi," {
		t.Errorf("server Read = %q", env.Text)
	}
	if env.Peer == "" {
		t.Error("Expected peer address on inbound message")
	}

	if err := server.Write(ctx, Envelope{Text: "reply"}); err != nil {
		t.Fatalf("server Write: %v", err)
	}
	env, err = client.Read(ctx)
	if err != nil || env.Text != "reply" {
		t.Fatalf("client Read = %q, %v", env.Text, err)
	}

	if err := client.Write(ctx, Envelope{Text: "two\nlines"}); !errors.Is(err, ErrLineBreak) {
		t.Errorf("Expected ErrLineBreak, got %v", err)
	}
}

func TestUDPChannel_Loopback(t *testing.T) {
	server, err := NewUDPChannel(UDPChannelConfig{Address: "127.0.0.1:0", IsServer: true})
	if err != nil {
		t.Fatalf("NewUDPChannel server: %v", err)
	}
	defer server.Close()

	client, err := NewUDPChannel(UDPChannelConfig{Address: server.LocalAddr().String()})
	if err != nil {
		t.Fatalf("NewUDPChannel client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Write(ctx, Envelope{Text: "datagram\n"}); err != nil {
		t.Fatalf("client Write: %v", err)
	}

	env, err := server.Read(ctx)
	if err != nil {
		t.Fatalf("server Read: %v", err)
	}
	if env.Text != "datagram" {
		t.Errorf("server Read = %q, want datagram", env.Text)
	}

	if err := server.Write(ctx, Envelope{Peer: env.Peer, Text: "back"}); err != nil {
		t.Fatalf("server Write: %v", err)
	}
	env, err = client.Read(ctx)
	if err != nil || env.Text != "back" {
		t.Fatalf("client Read = %q, %v", env.Text, err)
	}
}
