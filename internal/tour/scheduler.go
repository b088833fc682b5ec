package tour

import (
	"errors"
	"fmt"
	"math"
	"time"

	"mapcore.psimaps.org/internal/models"
)

// ErrStaleState is raised (as a panic) when a tour is started on an ordering that
// was invalidated and never replaced.
var ErrStaleState = errors.New("tour ordering is stale")

const (
	DefaultTickInterval = 50 * time.Millisecond
	DefaultTicksPerStep = 100
)

// TicksPerStep converts a per-item duration into ticks at the given tick interval,
// rounding to the nearest tick and never returning less than one.
func TicksPerStep(itemDuration, tickInterval time.Duration) uint {
	if tickInterval <= 0 || itemDuration <= 0 {
		return 1
	}
	n := math.Round(float64(itemDuration) / float64(tickInterval))
	if n < 1 {
		return 1
	}
	return uint(n)
}

type Options struct {
	TicksPerStep uint
}

// Focus is emitted whenever the tour lands on a record.
type Focus struct {
	Record      models.GeoRecord `json:"record"`
	GroupKey    string           `json:"group_key"`
	MemberIndex uint             `json:"member_index"`
}

// State is a copy of the scheduler's playback position.
type State struct {
	ActiveGroupKey *string `json:"active_group_key"`
	MemberIndex    uint    `json:"member_index"`
	TickCount      uint    `json:"tick_count"`
	TicksPerStep   uint    `json:"ticks_per_step"`
	Running        bool    `json:"running"`
}

// Phase names the playback state: idle, playing or paused.
func (s State) Phase() string {
	switch {
	case s.ActiveGroupKey == nil:
		return "idle"
	case s.Running:
		return "playing"
	default:
		return "paused"
	}
}

// Scheduler plays an Ordering one member per step, driven by external ticks.
//
// It owns its position outright: nothing is derived from what a renderer
// currently shows. It starts no goroutines or timers and does not lock;
// callers deliver ticks and commands from one timeline.
type Scheduler struct {
	ordering Ordering
	stale    bool

	group        int // index into ordering.Groups, -1 when idle
	memberIndex  uint
	tickCount    uint
	ticksPerStep uint
	running      bool

	subscribers []func(Focus)
}

func NewScheduler(opts Options) *Scheduler {
	tps := opts.TicksPerStep
	if tps == 0 {
		tps = DefaultTicksPerStep
	}
	return &Scheduler{group: -1, ticksPerStep: tps}
}

// Subscribe registers fn for every Focus event. Listeners run synchronously
// inside the call that produced the event.
func (s *Scheduler) Subscribe(fn func(Focus)) {
	s.subscribers = append(s.subscribers, fn)
}

// SetOrdering installs a freshly built ordering. Any playback in progress stops.
func (s *Scheduler) SetOrdering(o Ordering) {
	s.Stop()
	s.ordering = o
	s.stale = false
}

// Invalidate marks the ordering as out of date with the candidate set and stops playback.
func (s *Scheduler) Invalidate() {
	s.Stop()
	s.stale = true
}

// Stale reports whether the ordering needs rebuilding before the next Start.
func (s *Scheduler) Stale() bool {
	return s.stale
}

func (s *Scheduler) Ordering() Ordering {
	return s.ordering
}

// SetTicksPerStep changes the cadence from the next tick on. Zero is treated as one.
func (s *Scheduler) SetTicksPerStep(n uint) {
	if n == 0 {
		n = 1
	}
	s.ticksPerStep = n
}

// Start begins playback at the first member of groupKey and emits its Focus immediately.
func (s *Scheduler) Start(groupKey string) (Focus, error) {
	if s.stale {
		panic(fmt.Errorf("start %q: %w", groupKey, ErrStaleState))
	}
	if err := s.ordering.ValidateStart(groupKey); err != nil {
		return Focus{}, err
	}

	s.group = s.ordering.indexOf(groupKey)
	s.memberIndex = 0
	s.tickCount = 0
	s.running = true

	f := s.current()
	s.emit(f)
	return f, nil
}

// Tick advances the clock by one tick. It returns the new Focus and true when the
// tick completed a step, and is a no-op unless the tour is playing.
func (s *Scheduler) Tick() (Focus, bool) {
	if !s.running {
		return Focus{}, false
	}
	s.tickCount++
	if s.tickCount < s.ticksPerStep {
		return Focus{}, false
	}
	s.tickCount = 0

	if int(s.memberIndex)+1 < len(s.ordering.Groups[s.group].Members) {
		s.memberIndex++
	} else {
		s.group = s.nextGroup(s.group)
		s.memberIndex = 0
	}

	f := s.current()
	s.emit(f)
	return f, true
}

// nextGroup wraps around the ordering, skipping empty groups.
func (s *Scheduler) nextGroup(from int) int {
	n := len(s.ordering.Groups)
	for i := 1; i <= n; i++ {
		g := (from + i) % n
		if len(s.ordering.Groups[g].Members) > 0 {
			return g
		}
	}
	return from
}

// Pause freezes playback; member index and tick count are kept exactly.
func (s *Scheduler) Pause() {
	s.running = false
}

// Resume continues a paused tour. It does nothing when idle.
func (s *Scheduler) Resume() {
	if s.group >= 0 {
		s.running = true
	}
}

// Stop returns to idle. Focus events already emitted stand.
func (s *Scheduler) Stop() {
	s.group = -1
	s.memberIndex = 0
	s.tickCount = 0
	s.running = false
}

func (s *Scheduler) State() State {
	st := State{
		MemberIndex:  s.memberIndex,
		TickCount:    s.tickCount,
		TicksPerStep: s.ticksPerStep,
		Running:      s.running,
	}
	if s.group >= 0 {
		key := s.ordering.Groups[s.group].Key
		st.ActiveGroupKey = &key
	}
	return st
}

// Current returns the member the tour is on, if any.
func (s *Scheduler) Current() (Focus, bool) {
	if s.group < 0 {
		return Focus{}, false
	}
	return s.current(), true
}

func (s *Scheduler) current() Focus {
	g := s.ordering.Groups[s.group]
	return Focus{
		Record:      g.Members[s.memberIndex],
		GroupKey:    g.Key,
		MemberIndex: s.memberIndex,
	}
}

func (s *Scheduler) emit(f Focus) {
	for _, fn := range s.subscribers {
		fn(f)
	}
}
