package input

import (
	"context"
	"log/slog"
	"time"

	"github.com/haivivi/lesynth/pkg/buffer"
	"github.com/haivivi/lesynth/pkg/logging"
)

// QueueCapacity is the number of button events held before new ones are
// dropped.
const QueueCapacity = 3

// DebounceWindow is how long further edges of a button are ignored after
// one is accepted.
const DebounceWindow = 50 * time.Millisecond

// Debouncer suppresses edges of a button that follow an accepted edge
// within the window. It is not safe for concurrent use.
type Debouncer struct {
	window time.Duration
	last   map[int]time.Time
}

// NewDebouncer returns a debouncer with the given window. A zero window
// accepts every edge.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window, last: make(map[int]time.Time)}
}

// Allow reports whether an edge of button index at now is accepted.
func (d *Debouncer) Allow(index int, now time.Time) bool {
	if d.window <= 0 {
		return true
	}
	if last, ok := d.last[index]; ok && now.Sub(last) < d.window {
		return false
	}
	d.last[index] = now
	return true
}

// QueueOption configures a Queue.
type QueueOption interface {
	apply(*Queue)
}

type queueLogger struct{ l *slog.Logger }

func (o queueLogger) apply(q *Queue) { q.logger = logging.New("input", o.l) }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) QueueOption {
	return queueLogger{l: l}
}

type queueDebounce time.Duration

func (o queueDebounce) apply(q *Queue) { q.debounce = NewDebouncer(time.Duration(o)) }

// WithDebounce sets the debounce window. Defaults to DebounceWindow.
func WithDebounce(d time.Duration) QueueOption {
	return queueDebounce(d)
}

type queueClock func() time.Time

func (o queueClock) apply(q *Queue) { q.now = o }

// WithClock sets the time source used for debouncing.
func WithClock(now func() time.Time) QueueOption {
	return queueClock(now)
}

// Queue carries button events from the producer to the synthesizer.
type Queue struct {
	q        *buffer.Queue[Event]
	debounce *Debouncer
	now      func() time.Time
	logger   logging.Logger
}

// NewQueue returns an event queue of QueueCapacity events.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		q:        buffer.NewQueue[Event](QueueCapacity),
		debounce: NewDebouncer(DebounceWindow),
		now:      time.Now,
		logger:   logging.New("input", nil),
	}
	for _, opt := range opts {
		opt.apply(q)
	}
	return q
}

// Post enqueues ev without blocking. Bouncing edges are discarded and a
// full queue drops the event with a warning and buffer.ErrFull.
//
// Post must be called from a single producer.
func (q *Queue) Post(ev Event) error {
	if !q.debounce.Allow(ev.Index, q.now()) {
		q.logger.DebugPrintf("debounced %s", ev)
		return nil
	}
	if err := q.q.TryPut(ev); err != nil {
		q.logger.WarnPrintf("queue is full, dropping %s", ev)
		return err
	}
	q.logger.InfoPrintf("%s", ev)
	return nil
}

// Get blocks until an event is available.
func (q *Queue) Get(ctx context.Context) (Event, error) {
	return q.q.Get(ctx)
}

// Close wakes blocked Get calls.
func (q *Queue) Close() {
	q.q.Close()
}
