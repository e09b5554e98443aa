package devtools

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jilio/laco"
)

// DefaultHistoryLimit bounds the number of entries a timeline keeps.
const DefaultHistoryLimit = 1000

// Entry is one recorded transition.
type Entry struct {
	Label string          `json:"label"`
	State json.RawMessage `json:"state"`
	At    time.Time       `json:"at"`
}

// timeline is a bounded list of entries. The oldest entries are dropped
// first once the limit is reached. It is not safe for concurrent use.
type timeline struct {
	entries []Entry
	limit   int
}

func newTimeline(limit int) *timeline {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &timeline{limit: limit}
}

func (t *timeline) reset(e Entry) {
	t.entries = append(t.entries[:0], e)
}

func (t *timeline) add(e Entry) {
	t.entries = append(t.entries, e)
	if over := len(t.entries) - t.limit; over > 0 {
		t.entries = slices.Delete(t.entries, 0, over)
	}
}

func (t *timeline) at(index int) (Entry, error) {
	if index < 0 || index >= len(t.entries) {
		return Entry{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(t.entries))
	}
	return t.entries[index], nil
}

func (t *timeline) list() []Entry {
	return slices.Clone(t.entries)
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithHistoryLimit bounds the number of entries kept.
func WithHistoryLimit(n int) RecorderOption {
	return func(r *Recorder) {
		r.timeline = newTimeline(n)
	}
}

// Recorder is an in-memory laco.Bridge. It records every transition and can
// replay any recorded snapshot into the registry it is attached to.
type Recorder struct {
	mu       sync.Mutex
	timeline *timeline
	handlers []func(laco.BridgeMessage)
	now      func() time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		timeline: newTimeline(DefaultHistoryLimit),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init implements laco.Bridge. It starts a new timeline.
func (r *Recorder) Init(snapshot map[int]any) error {
	state, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeline.reset(Entry{Label: InitLabel, State: state, At: r.now()})
	return nil
}

// Send implements laco.Bridge.
func (r *Recorder) Send(label string, snapshot map[int]any) error {
	state, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeline.add(Entry{Label: label, State: state, At: r.now()})
	return nil
}

// Subscribe implements laco.Bridge.
func (r *Recorder) Subscribe(fn func(laco.BridgeMessage)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// Entries returns a copy of the recorded timeline.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeline.list()
}

// Len returns the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timeline.entries)
}

// JumpToAction replays the snapshot recorded at index.
func (r *Recorder) JumpToAction(index int) error {
	return r.jump(laco.JumpToAction, index)
}

// JumpToState replays the snapshot recorded at index.
func (r *Recorder) JumpToState(index int) error {
	return r.jump(laco.JumpToState, index)
}

func (r *Recorder) jump(kind string, index int) error {
	r.mu.Lock()
	entry, err := r.timeline.at(index)
	handlers := slices.Clone(r.handlers)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	// Handlers run transitions that may call Send, so the lock is released.
	msg := laco.BridgeMessage{Type: kind, State: string(entry.State)}
	for _, h := range handlers {
		h(msg)
	}
	return nil
}
