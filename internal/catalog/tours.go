package catalog

import (
	"fmt"
	"time"

	"mapcore.psimaps.org/internal/geo"
	"mapcore.psimaps.org/internal/metrics"
	"mapcore.psimaps.org/internal/models"
	"mapcore.psimaps.org/internal/tour"
)

// StartTour orders the current candidates by community and starts at groupKey.
// An empty key starts at the first community.
func (c *Catalog) StartTour(groupKey string) (tour.Focus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ordering := tour.BuildOrdering(c.candidates())
	if groupKey == "" && len(ordering.Groups) > 0 {
		groupKey = ordering.Groups[0].Key
	}

	// a rejected start leaves a playing tour alone
	if err := ordering.ValidateStart(groupKey); err != nil {
		return tour.Focus{}, err
	}

	c.scheduler.SetOrdering(ordering)
	c.scheduler.SetTicksPerStep(c.opts.ticksPerStep())
	c.presentation = ""
	return c.start(groupKey)
}

// StartPresentation tours the records of a saved presentation in their listed
// order, one per IntervalSeconds. Unknown or unlocated records are skipped.
func (c *Catalog) StartPresentation(id string) (tour.Focus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.presentations[id]
	if !ok {
		return tour.Focus{}, fmt.Errorf("presentation %q: %w", id, ErrNotFound)
	}

	var members []models.GeoRecord
	for _, rid := range p.RecordIDs {
		r, err := c.record(rid)
		if err != nil || !geo.IsValid(r.GeoPoint) {
			continue
		}
		members = append(members, r)
	}

	if len(members) == 0 {
		return tour.Focus{}, fmt.Errorf("presentation %q has no locatable records: %w", id, geo.ErrEmptyInput)
	}

	c.scheduler.SetOrdering(tour.Ordering{Groups: []tour.Group{{Key: p.ID, Members: members}}})
	ticks := c.opts.ticksPerStep()
	if p.IntervalSeconds > 0 {
		ticks = tour.TicksPerStep(time.Duration(p.IntervalSeconds)*time.Second, c.opts.TickInterval)
	}
	c.scheduler.SetTicksPerStep(ticks)
	c.presentation = p.ID
	return c.start(p.ID)
}

func (c *Catalog) start(groupKey string) (tour.Focus, error) {
	f, err := c.scheduler.Start(groupKey)
	if err != nil {
		c.presentation = ""
		c.syncRunningGauge()
		return tour.Focus{}, err
	}
	c.syncRunningGauge()
	c.logger.Info("tour started", "group", groupKey, "presentation", c.presentation, "record_id", f.Record.ID)
	return f, nil
}

func (c *Catalog) syncRunningGauge() {
	if c.scheduler.State().Running {
		metrics.TourRunning.Set(1)
	} else {
		metrics.TourRunning.Set(0)
	}
}

// Tick advances the tour clock by one tick.
func (c *Catalog) Tick() (tour.Focus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler.Tick()
}

func (c *Catalog) PauseTour() tour.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scheduler.Pause()
	metrics.TourRunning.Set(0)
	return c.scheduler.State()
}

func (c *Catalog) ResumeTour() tour.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scheduler.Resume()
	st := c.scheduler.State()
	if st.Running {
		metrics.TourRunning.Set(1)
	}
	return st
}

func (c *Catalog) StopTour() tour.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scheduler.Stop()
	c.presentation = ""
	metrics.TourRunning.Set(0)
	return c.scheduler.State()
}

// TourStatus is the scheduler state plus context for a renderer that polls.
type TourStatus struct {
	tour.State
	Phase        string      `json:"phase"`
	Presentation string      `json:"presentation,omitempty"`
	Groups       []string    `json:"groups"`
	Focus        *tour.Focus `json:"focus,omitempty"`
}

func (c *Catalog) TourStatus() TourStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.scheduler.State()
	status := TourStatus{
		State:        st,
		Phase:        st.Phase(),
		Presentation: c.presentation,
		Groups:       c.scheduler.Ordering().Keys(),
	}
	if f, ok := c.scheduler.Current(); ok {
		status.Focus = &f
	}
	return status
}

// LastFocus returns the most recent Focus event, which survives Stop.
func (c *Catalog) LastFocus() (tour.Focus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastFocus == nil {
		return tour.Focus{}, false
	}
	return *c.lastFocus, true
}
