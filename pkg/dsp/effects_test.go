package dsp

import "testing"

func impulse(n int, v int16) []int16 {
	b := make([]int16, n)
	b[0] = v
	return b
}

func TestEchoDelay(t *testing.T) {
	e := NewEcho()
	e.SetFeedback(16384)
	if err := e.SetDelay(2); err != nil {
		t.Fatal(err)
	}
	block := impulse(8, 1000)
	e.Process(block)
	want := []int16{1000, 0, 500, 0, 250, 0, 125, 0}
	for i := range want {
		if block[i] != want[i] {
			t.Errorf("block[%d] got=%d, want=%d", i, block[i], want[i])
		}
	}
}

func TestEchoBypass(t *testing.T) {
	e := NewEcho()
	e.SetFeedback(0)
	block := impulse(4, 1000)
	e.Process(block)
	if block[0] != 1000 || block[1] != 0 {
		t.Errorf("bypass echo modified block: %v", block)
	}
	if err := e.SetDelay(EchoMaxDelay + 1); err == nil {
		t.Error("SetDelay beyond line length should fail")
	}
}

func TestAllpassImpulse(t *testing.T) {
	a := NewAllpass(1000, 8)
	a.SetGain(16384)
	if err := a.SetDelay(2); err != nil {
		t.Fatal(err)
	}
	block := impulse(6, 1000)
	a.Process(block)
	want := []int16{-500, 0, 749, 0, 374, 0}
	for i := range want {
		if block[i] != want[i] {
			t.Errorf("block[%d] got=%d, want=%d", i, block[i], want[i])
		}
	}
	if err := a.SetDelay(9); err == nil {
		t.Error("SetDelay beyond buffer should fail")
	}
}

func TestModulation(t *testing.T) {
	m := NewModulation(48000)
	m.SetAmplitude(0)
	block := []int16{100, 200}
	m.Process(block)
	if block[0] != 100 || block[1] != 200 {
		t.Errorf("zero-depth modulation changed block: %v", block)
	}

	m.SetAmplitude(1)
	if err := m.SetFrequency(0); err != nil {
		t.Fatal(err)
	}
	m.Process(block)
	if block[0] != 0 || block[1] != 0 {
		t.Errorf("LFO at phase zero should mute, got=%v", block)
	}
}

type gain struct{ shift uint }

func (g gain) Process(block []int16) bool {
	for i := range block {
		block[i] >>= g.shift
	}
	return true
}

type silent struct{}

func (silent) Process([]int16) bool { return false }

func TestChain(t *testing.T) {
	block := []int16{64}
	if !(Chain{gain{1}, gain{2}}).Process(block) {
		t.Error("chain should report signal")
	}
	if block[0] != 8 {
		t.Errorf("chain result got=%d, want=8", block[0])
	}
	if (Chain{silent{}}).Process(block) {
		t.Error("all-silent chain should report false")
	}
}
