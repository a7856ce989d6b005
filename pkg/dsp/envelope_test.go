package dsp

import (
	"math"
	"testing"
)

func fullScale(block []int16) {
	for i := range block {
		block[i] = math.MaxInt16
	}
}

func TestEnvelopeSilentByDefault(t *testing.T) {
	e := NewEnvelope(48000)
	if e.Active() {
		t.Fatal("new envelope should be silent")
	}
	if e.Process(make([]int16, 16)) {
		t.Fatal("silent envelope should return false")
	}
}

func TestEnvelopeOneShotFadesOut(t *testing.T) {
	e := NewEnvelope(48000)
	e.SetPeriod(100)
	e.SetMode(ModeOneShot)
	e.Start()

	block := make([]int16, 480)
	reached := -1
	for i := range 20 {
		fullScale(block)
		e.Process(block)
		if e.State() == EnvelopeFadeOut {
			reached = i
			break
		}
	}
	if reached < 0 {
		t.Fatalf("one-shot envelope never reached fade out, state=%v", e.State())
	}
	if reached < 9 || reached > 11 {
		t.Errorf("fade out after block %d, want around block 10", reached)
	}

	for range 400 {
		if !e.Active() {
			return
		}
		fullScale(block)
		e.Process(block)
	}
	t.Fatalf("envelope still active after fade out, magnitude=%d", e.Magnitude())
}

func TestEnvelopeEndReachesSilent(t *testing.T) {
	e := NewEnvelope(48000)
	e.SetPeriod(1000)
	e.SetDutyCycle(0.5)
	e.Start()

	block := make([]int16, 480)
	for range 30 {
		fullScale(block)
		e.Process(block)
	}
	if e.Magnitude() == 0 {
		t.Fatal("envelope should have risen above zero")
	}

	e.End()
	if e.State() != EnvelopeFadeOut {
		t.Fatalf("End state got=%v, want=fade_out", e.State())
	}
	blocks := 0
	for e.Active() {
		fullScale(block)
		e.Process(block)
		blocks++
		if blocks > 400 {
			t.Fatalf("fade out did not converge, magnitude=%d", e.Magnitude())
		}
	}
	if e.Magnitude() != 0 {
		t.Errorf("silent magnitude got=%d, want=0", e.Magnitude())
	}
}

func TestEnvelopeOneShotHold(t *testing.T) {
	e := NewEnvelope(48000)
	e.SetPeriod(100)
	e.SetFloor(0.5)
	e.SetMode(ModeOneShotHold)
	e.Start()

	block := make([]int16, 480)
	for range 20 {
		fullScale(block)
		e.Process(block)
		if e.State() == EnvelopeHold {
			break
		}
	}
	if e.State() != EnvelopeHold {
		t.Fatalf("state got=%v, want=hold", e.State())
	}

	hold := e.Magnitude()
	for range 5 {
		fullScale(block)
		e.Process(block)
	}
	if e.Magnitude() != hold {
		t.Errorf("hold magnitude changed: got=%d, want=%d", e.Magnitude(), hold)
	}
	want := int16((int32(math.MaxInt16) * hold) >> 15)
	if block[100] != want {
		t.Errorf("held sample got=%d, want=%d", block[100], want)
	}

	e.End()
	if e.State() != EnvelopeFadeOut {
		t.Errorf("End from hold got=%v, want=fade_out", e.State())
	}
}

func TestEnvelopeCurveEndpoints(t *testing.T) {
	e := NewEnvelope(48000)
	l := 0.25
	e.SetFloor(l)
	e.SetDutyCycle(0.5)

	floor := int16(math.MaxInt16 * l)
	if got := e.at(0); got != floor {
		t.Errorf("at(0) got=%d, want=%d", got, floor)
	}
	if got := e.at(1); got != floor {
		t.Errorf("at(1) got=%d, want=%d", got, floor)
	}
	if got := e.at(0.5); got < math.MaxInt16-1 {
		t.Errorf("at(duty) got=%d, want full scale", got)
	}
	if a, b := e.at(0.1), e.at(0.3); a >= b {
		t.Errorf("rising edge not increasing: at(0.1)=%d at(0.3)=%d", a, b)
	}
	if a, b := e.at(0.6), e.at(0.9); a <= b {
		t.Errorf("falling edge not decreasing: at(0.6)=%d at(0.9)=%d", a, b)
	}
}

func TestEnvelopeClamps(t *testing.T) {
	e := NewEnvelope(48000)
	e.SetRisingCurve(1)
	if e.rising != 0.99 {
		t.Errorf("rising curve 1 got=%v, want=0.99", e.rising)
	}
	e.SetFallingCurve(0)
	if e.falling != 0.0001 {
		t.Errorf("falling curve 0 got=%v, want=0.0001", e.falling)
	}
	e.SetFadeOutAttenuation(5)
	if e.attenuation != 1 {
		t.Errorf("attenuation 5 got=%v, want=1", e.attenuation)
	}
	e.SetFadeOutAttenuation(0)
	if e.attenuation != 0.001 {
		t.Errorf("attenuation 0 got=%v, want=0.001", e.attenuation)
	}
}

func TestEnvelopeLoopRestarts(t *testing.T) {
	e := NewEnvelope(48000)
	e.SetPeriod(100)
	e.Start()
	block := make([]int16, 480)
	for range 50 {
		fullScale(block)
		e.Process(block)
	}
	if e.State() != EnvelopeLoop {
		t.Errorf("loop envelope state got=%v, want=loop", e.State())
	}
}
