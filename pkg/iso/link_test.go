package iso

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/rtp"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (r *recorder) disconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected
}

func (r *recorder) validity() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.valid...)
}

func TestLoopback(t *testing.T) {
	a, b := NewLoopbackPair()
	ra, rb := &recorder{}, &recorder{}
	ctx := context.Background()

	if _, err := a.Anchor(); !errors.Is(err, ErrNoAnchor) {
		t.Errorf("Anchor got=%v, want=%v", err, ErrNoAnchor)
	}
	if err := a.Send([]byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send got=%v, want=%v", err, ErrNotConnected)
	}

	a.Connect(ctx, Left, ra)
	b.Connect(ctx, Left, rb)
	if err := a.Send([]byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if rb.count() != 1 || ra.sent != 1 {
		t.Errorf("received=%d sent=%d, want 1/1", rb.count(), ra.sent)
	}
	if _, err := a.Anchor(); err != nil {
		t.Errorf("Anchor after send got=%v", err)
	}

	a.DisconnectACL()
	if ra.disconnects() != 1 || rb.disconnects() != 1 {
		t.Errorf("disconnects got=%d/%d, want=1/1", ra.disconnects(), rb.disconnects())
	}
	a.Close()
	if ra.disconnects() != 1 {
		t.Errorf("second disconnect reported")
	}
}

func TestRTPLink(t *testing.T) {
	ctx := context.Background()
	a := NewRTPLink(RTPConfig{Local: "127.0.0.1:0", SamplesPerFrame: 480})
	ra := &recorder{}
	if err := a.Connect(ctx, Left, ra); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })

	b := NewRTPLink(RTPConfig{Local: "127.0.0.1:0", Remote: a.LocalAddr().String(), SamplesPerFrame: 480})
	rb := &recorder{}
	if err := b.Connect(ctx, Left, rb); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })

	// a has not heard from anyone yet.
	if err := a.Send([]byte{0}); err == nil {
		t.Error("Send without a peer expected error")
	}

	if err := b.Send([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	ra.waitReceived(t, 1)
	if got := string(ra.frame(0)); got != "ping" {
		t.Errorf("a received %q, want %q", got, "ping")
	}

	if err := a.Send([]byte("pong")); err != nil {
		t.Fatal(err)
	}
	rb.waitReceived(t, 1)
	if got := string(rb.frame(0)); got != "pong" {
		t.Errorf("b received %q, want %q", got, "pong")
	}

	if err := b.DisconnectACL(); err != nil {
		t.Fatal(err)
	}
	if rb.disconnects() != 1 {
		t.Errorf("disconnects got=%d, want=1", rb.disconnects())
	}
	if err := b.Send([]byte{0}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after disconnect got=%v, want=%v", err, ErrNotConnected)
	}
}

func TestRTPLinkSequenceGap(t *testing.T) {
	l := NewRTPLink(RTPConfig{Local: "127.0.0.1:0"})
	rec := &recorder{}
	if err := l.Connect(context.Background(), Left, rec); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	conn, err := net.Dial("udp", l.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	for _, seq := range []uint16{7, 8, 11} {
		pkt := rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: RTPPayloadType, SequenceNumber: seq},
			Payload: []byte{byte(seq)},
		}
		b, err := pkt.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		conn.Write(b)
		// Keep the packets in order on the loopback interface.
		time.Sleep(5 * time.Millisecond)
	}

	rec.waitReceived(t, 4)
	want := []bool{true, true, false, true}
	got := rec.validity()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("valid got=%v, want=%v", got, want)
			break
		}
	}
}

func TestWSLink(t *testing.T) {
	accepted := make(chan *WSLink, 2)
	serverRec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l, err := AcceptWS(w, r, nil)
		if err != nil {
			return
		}
		l.Connect(r.Context(), Left, serverRec)
		accepted <- l
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	client := NewWSLink(WSConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	clientRec := &recorder{}
	if err := client.Connect(ctx, Left, clientRec); err != nil {
		t.Fatal(err)
	}
	server := <-accepted

	if err := client.Send([]byte("up")); err != nil {
		t.Fatal(err)
	}
	serverRec.waitReceived(t, 1)
	if got := string(serverRec.frame(0)); got != "up" {
		t.Errorf("server received %q, want %q", got, "up")
	}
	if err := server.Send([]byte("down")); err != nil {
		t.Fatal(err)
	}
	clientRec.waitReceived(t, 1)
	if got := string(clientRec.frame(0)); got != "down" {
		t.Errorf("client received %q, want %q", got, "down")
	}
	if _, err := client.Anchor(); err != nil {
		t.Errorf("Anchor got=%v", err)
	}

	if err := client.DisconnectACL(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.Fatal(err)
	}
	if clientRec.disconnects() != 1 {
		t.Errorf("client disconnects got=%d, want=1", clientRec.disconnects())
	}
	waitFor(t, "server disconnect", func() bool { return serverRec.disconnects() == 1 })

	// A dialing link reconnects after a disconnect.
	if err := client.Connect(ctx, Left, clientRec); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	server = <-accepted
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	if err := client.Send([]byte("again")); err != nil {
		t.Fatal(err)
	}
	serverRec.waitReceived(t, 2)
}

func TestWSLinkNoURL(t *testing.T) {
	l := NewWSLink(WSConfig{})
	if err := l.Connect(context.Background(), Left, &recorder{}); err == nil {
		t.Error("Connect without URL expected error")
	}
	if err := l.Send([]byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send got=%v, want=%v", err, ErrNotConnected)
	}
}
