package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/lesynth/pkg/audio/pcm"
	"github.com/haivivi/lesynth/pkg/codec"
)

// trace records the order of calls across the fakes.
type trace struct {
	mu     sync.Mutex
	events []string
}

func (tr *trace) add(e string) {
	tr.mu.Lock()
	tr.events = append(tr.events, e)
	tr.mu.Unlock()
}

func (tr *trace) snapshot() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.events...)
}

type fakeSource struct {
	tr    *trace
	value int16
}

func (s *fakeSource) Process(block []int16) bool {
	s.tr.add("source")
	for i := range block {
		block[i] = s.value
	}
	return s.value != 0
}

type fakeSender struct {
	tr     *trace
	mu     sync.Mutex
	frames [][]byte
}

func (s *fakeSender) SendEncoded(data []byte) {
	s.tr.add("send")
	s.mu.Lock()
	s.frames = append(s.frames, append([]byte(nil), data...))
	s.mu.Unlock()
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type fakeTicker struct{ tr *trace }

func (k fakeTicker) Increment() bool {
	k.tr.add("tick")
	return false
}

type fakeCodec struct {
	mu        sync.Mutex
	initErr   error
	encodeErr error
	inits     int
	uninits   int
}

func (c *fakeCodec) Init(codec.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inits++
	return c.initErr
}

func (c *fakeCodec) Encode(samples []int16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encodeErr != nil {
		return nil, c.encodeErr
	}
	return pcm.AppendEncode(nil, samples), nil
}

func (c *fakeCodec) Decode([]byte, bool) ([]int16, error) {
	return nil, nil
}

func (c *fakeCodec) Uninit(codec.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uninits++
	return nil
}

func testConfig() Config {
	return Config{
		SampleRate:    48000,
		FrameDuration: FrameDuration10ms,
		Codec:         codec.Config{Kind: codec.KindPCM},
	}
}

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

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"zero rate", func(c *Config) { c.SampleRate = 0 }},
		{"frame duration", func(c *Config) { c.FrameDuration = 20 * time.Millisecond }},
		{"fractional block", func(c *Config) { c.SampleRate = 44100; c.FrameDuration = FrameDuration7500us }},
		{"channels", func(c *Config) { c.Channels = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.edit(&cfg)
			tr := &trace{}
			if _, err := New(cfg, &fakeSource{tr: tr}, &fakeCodec{}, &fakeSender{tr: tr}, fakeTicker{tr}); err == nil {
				t.Error("New expected error")
			}
		})
	}

	cfg := testConfig()
	cfg.FrameDuration = FrameDuration7500us
	if got := cfg.BlockSize(); got != 360 {
		t.Errorf("BlockSize got=%d, want=360", got)
	}
}

func TestStartStop(t *testing.T) {
	tr := &trace{}
	c := &fakeCodec{}
	sender := &fakeSender{tr: tr}
	p, err := New(testConfig(), &fakeSource{tr: tr, value: 3}, c, sender, fakeTicker{tr})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Stop(); err != nil {
		t.Errorf("Stop before Start got=%v, want=nil", err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if !p.Running() {
		t.Error("Running got=false after Start")
	}
	waitFor(t, "three frames", func() bool { return sender.count() >= 3 })
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}

	sent := sender.count()
	time.Sleep(30 * time.Millisecond)
	if got := sender.count(); got != sent {
		t.Errorf("frames after Stop got=%d, want=%d", got, sent)
	}
	if c.inits != 1 || c.uninits != 1 {
		t.Errorf("codec init/uninit got=%d/%d, want=1/1", c.inits, c.uninits)
	}

	// Every mono sample is duplicated to both channels.
	frame := sender.frames[0]
	if len(frame) != 480*2*2 {
		t.Fatalf("frame bytes got=%d, want=%d", len(frame), 480*2*2)
	}
	if frame[0] != 3 || frame[2] != 3 {
		t.Errorf("frame prefix got=%v", frame[:4])
	}

	st := p.Stats()
	if st.Frames != uint64(sent) {
		t.Errorf("Stats.Frames got=%d, want=%d", st.Frames, sent)
	}
}

func TestTickAfterSend(t *testing.T) {
	tr := &trace{}
	sender := &fakeSender{tr: tr}
	p, err := New(testConfig(), &fakeSource{tr: tr, value: 1}, &fakeCodec{}, sender, fakeTicker{tr})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "two frames", func() bool { return sender.count() >= 2 })
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}

	events := tr.snapshot()
	if len(events)%3 != 0 {
		t.Fatalf("events got=%v, want whole source/send/tick triples", events)
	}
	for i := 0; i < len(events); i += 3 {
		if events[i] != "source" || events[i+1] != "send" || events[i+2] != "tick" {
			t.Fatalf("events[%d:%d] got=%v, want=[source send tick]", i, i+3, events[i:i+3])
		}
	}
}

func TestInitFailureIsFatal(t *testing.T) {
	tr := &trace{}
	c := &fakeCodec{initErr: codec.ErrUnsupported}
	p, err := New(testConfig(), &fakeSource{tr: tr}, c, &fakeSender{tr: tr}, fakeTicker{tr})
	if err != nil {
		t.Fatal(err)
	}
	err = p.Start()
	if !IsFatal(err) || !errors.Is(err, codec.ErrUnsupported) {
		t.Errorf("Start got=%v, want fatal wrapping %v", err, codec.ErrUnsupported)
	}
	if p.Running() {
		t.Error("Running got=true after failed Start")
	}
}

func TestEncodeFailureKeepsCadence(t *testing.T) {
	tr := &trace{}
	c := &fakeCodec{encodeErr: codec.ErrInvalidSize}
	sender := &fakeSender{tr: tr}

	var mu sync.Mutex
	var fatals []error
	cfg := testConfig()
	cfg.OnFatal = func(err error) {
		mu.Lock()
		fatals = append(fatals, err)
		mu.Unlock()
	}
	p, err := New(cfg, &fakeSource{tr: tr}, c, sender, fakeTicker{tr})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "three encode errors", func() bool { return p.Stats().EncodeErrors >= 3 })
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}

	if sender.count() != 0 {
		t.Errorf("frames sent got=%d, want=0", sender.count())
	}
	mu.Lock()
	defer mu.Unlock()
	for _, err := range fatals {
		if !IsFatal(err) || !errors.Is(err, codec.ErrInvalidSize) {
			t.Errorf("OnFatal got=%v", err)
		}
	}
	ticks := 0
	for _, e := range tr.snapshot() {
		if e == "tick" {
			ticks++
		}
	}
	if uint64(ticks) != p.Stats().EncodeErrors {
		t.Errorf("ticks got=%d, want=%d", ticks, p.Stats().EncodeErrors)
	}
}

func TestWithSoftwareCodec(t *testing.T) {
	tr := &trace{}
	sender := &fakeSender{tr: tr}
	cfg := testConfig()
	cfg.Codec.Kind = codec.KindADPCM
	cfg.Codec.Encoder = codec.EncoderConfig{Enabled: true, Mode: codec.Stereo}
	p, err := New(cfg, &fakeSource{tr: tr, value: 1000}, codec.NewSoftware(nil), sender, fakeTicker{tr})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "one frame", func() bool { return sender.count() >= 1 })
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	want := 2 * codec.EncodedSize(p.Config().Codec)
	if got := len(sender.frames[0]); got != want {
		t.Errorf("frame bytes got=%d, want=%d", got, want)
	}
}

func TestMicSource(t *testing.T) {
	cfg := testConfig()
	samples := make([]int16, 3*cfg.BlockSize())
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	r := bytes.NewReader(pcm.AppendEncode(nil, samples))

	mic, err := NewMicSource(r, pcm.L16Mono48K, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mic.Close() })

	if err := mic.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	block := make([]int16, cfg.BlockSize())
	for i := range 3 {
		if !mic.Process(block) {
			t.Fatalf("Process(%d) got=false, want=true", i)
		}
		if block[1] != samples[i*cfg.BlockSize()+1] {
			t.Errorf("block %d sample got=%d, want=%d", i, block[1], samples[i*cfg.BlockSize()+1])
		}
	}
	if mic.Process(block) {
		t.Error("Process after drain got=true, want=false")
	}
	if got := mic.Underruns(); got != 1 {
		t.Errorf("Underruns got=%d, want=1", got)
	}
}

func TestMicSourceWaitsForWorker(t *testing.T) {
	cfg := testConfig()
	const blocks = 5 * MicQueueDepth
	samples := make([]int16, blocks*cfg.BlockSize())
	for i := range samples {
		samples[i] = int16(i)
	}
	mic, err := NewMicSource(bytes.NewReader(pcm.AppendEncode(nil, samples)), pcm.L16Mono48K, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mic.Close() })

	done := make(chan error, 1)
	go func() { done <- mic.Run(context.Background()) }()

	// The reader stops once the queue is full, before any frame is taken.
	waitFor(t, "queue full", func() bool { return mic.Pending() == MicQueueDepth })
	time.Sleep(20 * time.Millisecond)
	if got := mic.Pending(); got != MicQueueDepth {
		t.Fatalf("Pending got=%d, want=%d", got, MicQueueDepth)
	}

	block := make([]int16, cfg.BlockSize())
	next := 0
	waitFor(t, "every block", func() bool {
		for mic.Process(block) {
			for _, v := range block {
				if v != samples[next] {
					t.Fatalf("sample %d got=%d, want=%d", next, v, samples[next])
				}
				next++
			}
		}
		return next == len(samples)
	})

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run got=%v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return at end of stream")
	}
}

func TestMicSourceStopsWithContext(t *testing.T) {
	cfg := testConfig()
	samples := make([]int16, 2*MicQueueDepth*cfg.BlockSize())
	mic, err := NewMicSource(bytes.NewReader(pcm.AppendEncode(nil, samples)), pcm.L16Mono48K, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mic.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mic.Run(ctx) }()
	waitFor(t, "queue full", func() bool { return mic.Pending() == MicQueueDepth })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run got=%v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run blocked after cancel")
	}
}
