package arpeggio

import (
	"fmt"
	"slices"
	"testing"
)

type fakeKeys struct {
	events []string
	onPlay func()
}

func (k *fakeKeys) Play(note int) int {
	k.events = append(k.events, fmt.Sprintf("play %d", note))
	if k.onPlay != nil {
		k.onPlay()
	}
	return 0
}

func (k *fakeKeys) Stop(note int) (int, bool) {
	k.events = append(k.events, fmt.Sprintf("stop %d", note))
	return 0, true
}

func ticks(a *Arpeggiator, n int) {
	for range n {
		a.Tick()
	}
}

func TestChordSequence(t *testing.T) {
	keys := &fakeKeys{}
	a := New(keys, WithDivider(12))
	for _, n := range []int{60, 64, 67} {
		a.NoteAdd(n)
	}

	for i := 1; i <= 36; i++ {
		a.Tick()
		var want int
		switch {
		case i <= 12:
			want = 1
		case i <= 24:
			want = 3
		default:
			want = 5
		}
		if len(keys.events) != want {
			t.Fatalf("after tick %d events got=%v, want %d events", i, keys.events, want)
		}
	}

	for _, n := range []int{60, 64, 67} {
		a.NoteRemove(n)
	}
	a.Tick()

	want := []string{"play 60", "stop 60", "play 64", "stop 64", "play 67", "stop 67"}
	if !slices.Equal(keys.events, want) {
		t.Errorf("events got=%v, want=%v", keys.events, want)
	}
	if a.Enabled() {
		t.Error("empty chord should disable the sequence")
	}
}

func TestOctaveCycle(t *testing.T) {
	keys := &fakeKeys{}
	a := New(keys, WithDivider(1))
	a.NoteAdd(60)
	ticks(a, 4)

	var plays []string
	for _, e := range keys.events {
		if e[:4] == "play" {
			plays = append(plays, e)
		}
	}
	want := []string{"play 60", "play 72", "play 84", "play 60"}
	if !slices.Equal(plays, want) {
		t.Errorf("plays got=%v, want=%v", plays, want)
	}
}

func TestNoteRemoveAdjustsIndex(t *testing.T) {
	tests := []struct {
		name   string
		before int
		remove int
		want   string
	}{
		{"before next", 1, 60, "play 64"},
		{"after next", 1, 67, "play 64"},
		{"last played", 3, 67, "play 60"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := &fakeKeys{}
			a := New(keys, WithDivider(1))
			for _, n := range []int{60, 64, 67} {
				a.NoteAdd(n)
			}
			ticks(a, tt.before)
			a.NoteRemove(tt.remove)
			keys.events = nil
			a.Tick()
			if got := keys.events[len(keys.events)-1]; got != tt.want {
				t.Errorf("next event got=%q, want=%q", got, tt.want)
			}
		})
	}
}

func TestNoteAddEvictsAndDedupes(t *testing.T) {
	a := New(&fakeKeys{})
	for n := 60; n < 60+MaxNotes+1; n++ {
		a.NoteAdd(n)
	}
	a.NoteAdd(65)

	want := []int{61, 62, 63, 64, 65}
	if got := a.Notes(); !slices.Equal(got, want) {
		t.Errorf("Notes got=%v, want=%v", got, want)
	}
}

func TestRestartAfterEmpty(t *testing.T) {
	keys := &fakeKeys{}
	a := New(keys, WithDivider(4))
	a.NoteAdd(60)
	ticks(a, 2)
	a.NoteRemove(60)
	ticks(a, 4)
	if a.Enabled() {
		t.Fatal("sequence should stop once the chord is empty")
	}

	keys.events = nil
	a.NoteAdd(62)
	a.Tick()
	if !slices.Equal(keys.events, []string{"play 62"}) {
		t.Errorf("restart events got=%v, want=[play 62]", keys.events)
	}
}

func TestKeysMayReenter(t *testing.T) {
	keys := &fakeKeys{}
	a := New(keys, WithDivider(1))
	keys.onPlay = func() { a.Notes() }
	a.NoteAdd(60)
	a.Tick()
	if len(keys.events) != 1 {
		t.Errorf("events got=%v", keys.events)
	}
}

func TestSetDivider(t *testing.T) {
	a := New(&fakeKeys{})
	if got := a.Divider(); got != 24 {
		t.Errorf("default divider got=%d, want=24", got)
	}
	defer func() {
		if recover() == nil {
			t.Error("SetDivider(0) should panic")
		}
	}()
	a.SetDivider(0)
}
