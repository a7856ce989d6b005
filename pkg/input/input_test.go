package input

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/haivivi/lesynth/pkg/buffer"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestQueueDropsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(WithDebounce(0), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	for i := range QueueCapacity {
		if err := q.Post(Event{Index: i, State: Pressed}); err != nil {
			t.Fatalf("Post(%d): %v", i, err)
		}
	}
	if err := q.Post(Event{Index: 4, State: Pressed}); !errors.Is(err, buffer.ErrFull) {
		t.Errorf("Post on full got=%v, want=%v", err, buffer.ErrFull)
	}
	if !strings.Contains(buf.String(), "queue is full") {
		t.Errorf("missing warning, log=%q", buf.String())
	}

	for i := range QueueCapacity {
		ev, err := q.Get(context.Background())
		if err != nil || ev.Index != i {
			t.Errorf("Get got=(%v, %v), want index %d", ev, err, i)
		}
	}
}

func TestDebounce(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	q := NewQueue(WithClock(clk.now))

	q.Post(Event{Index: 0, State: Pressed})
	clk.t = clk.t.Add(10 * time.Millisecond)
	q.Post(Event{Index: 0, State: Released})
	q.Post(Event{Index: 1, State: Pressed})
	clk.t = clk.t.Add(DebounceWindow)
	q.Post(Event{Index: 0, State: Released})

	want := []Event{{0, Pressed}, {1, Pressed}, {0, Released}}
	if q.q.Len() != len(want) {
		t.Fatalf("queued got=%d, want=%d", q.q.Len(), len(want))
	}
	for _, w := range want {
		got, _ := q.Get(context.Background())
		if got != w {
			t.Errorf("Get got=%v, want=%v", got, w)
		}
	}
}

func TestKeyboard(t *testing.T) {
	q := NewQueue(WithDebounce(0))
	kb := NewKeyboard(strings.NewReader("1x2 1q3"), q)
	if err := kb.Run(context.Background()); !errors.Is(err, ErrQuit) {
		t.Fatalf("Run got=%v, want=%v", err, ErrQuit)
	}

	want := []Event{{0, Pressed}, {1, Pressed}, {0, Released}}
	for _, w := range want {
		got, err := q.Get(context.Background())
		if err != nil || got != w {
			t.Errorf("Get got=(%v, %v), want=%v", got, err, w)
		}
	}
	if q.q.Len() != 0 {
		t.Errorf("keys after quit should not be read, queued=%d", q.q.Len())
	}
}

func TestKeyboardEOF(t *testing.T) {
	kb := NewKeyboard(strings.NewReader("5"), NewQueue())
	if err := kb.Run(context.Background()); err != nil {
		t.Errorf("Run at EOF got=%v, want=nil", err)
	}
}

func TestButtonStateJSON(t *testing.T) {
	b, err := json.Marshal(Event{Index: 2, State: Pressed})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(b); got != `{"index":2,"state":"pressed"}` {
		t.Errorf("Marshal got=%s", got)
	}
	var ev Event
	if err := json.Unmarshal([]byte(`{"index":1,"state":"released"}`), &ev); err != nil {
		t.Fatal(err)
	}
	if ev != (Event{1, Released}) {
		t.Errorf("Unmarshal got=%v", ev)
	}
	if err := json.Unmarshal([]byte(`{"state":"held"}`), &ev); err == nil {
		t.Error("unknown state should fail")
	}
}
