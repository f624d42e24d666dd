package dataflow

import "time"

// Timestamped is implemented by items an Aggregate or Join node windows on
// event time rather than processing-time arrival order.
type Timestamped interface {
	// EventTime returns the item's logical timestamp.
	EventTime() time.Time
}

// Window identifies a single window instance by its half-open time range
// [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in [w.Start, w.End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// LatePolicy controls what happens to an item whose event time falls behind
// the current watermark by more than the configured allowed lateness.
type LatePolicy int

const (
	// LateDrop silently discards the item.
	LateDrop LatePolicy = iota
	// LateSideOutput is accepted by every assigner, but the Aggregate driver
	// has no side output wired to route the item to: it drops the item, as
	// under LateDrop.
	LateSideOutput
	// LateEmitImmediately processes the item against its (already-closed)
	// window anyway and emits a correction.
	LateEmitImmediately
)

// WindowAssigner maps an item's event time to the set of windows it belongs
// to (more than one for sliding windows) and tracks the watermark used to
// decide when a window is complete.
type WindowAssigner interface {
	// AssignWindows returns every window instance t belongs to.
	AssignWindows(t time.Time) []Window
	// AdvanceWatermark folds in an observed event time and returns the
	// windows that are now complete (End <= watermark) and have not been
	// returned as complete before.
	AdvanceWatermark(observed time.Time) []Window
	// AllowedLateness is the grace period after a window closes during
	// which late items are still accepted per LatePolicy.
	AllowedLateness() time.Duration
	// OnLate reports how a late item should be handled.
	OnLate() LatePolicy
}

// tumblingAssigner partitions event time into fixed, non-overlapping
// windows of width Size.
type tumblingAssigner struct {
	size      time.Duration
	lateness  time.Duration
	late      LatePolicy
	watermark time.Time
	closed    map[time.Time]bool
}

// NewTumblingWindow builds a WindowAssigner with fixed, non-overlapping
// windows of the given size.
func NewTumblingWindow(size time.Duration, allowedLateness time.Duration, onLate LatePolicy) WindowAssigner {
	return &tumblingAssigner{size: size, lateness: allowedLateness, late: onLate, closed: make(map[time.Time]bool)}
}

func (a *tumblingAssigner) AssignWindows(t time.Time) []Window {
	start := t.Truncate(a.size)
	return []Window{{Start: start, End: start.Add(a.size)}}
}

func (a *tumblingAssigner) AdvanceWatermark(observed time.Time) []Window {
	prevCutoff := a.watermark.Add(-a.lateness)
	first := a.watermark.IsZero()
	if observed.After(a.watermark) {
		a.watermark = observed
	}
	cutoff := a.watermark.Add(-a.lateness)
	if first {
		prevCutoff = cutoff
	}
	var completed []Window
	start := prevCutoff.Truncate(a.size)
	for s := start; !s.After(cutoff); s = s.Add(a.size) {
		w := Window{Start: s, End: s.Add(a.size)}
		if !w.End.After(cutoff) && !a.closed[w.Start] {
			a.closed[w.Start] = true
			completed = append(completed, w)
		}
	}
	return completed
}

func (a *tumblingAssigner) AllowedLateness() time.Duration { return a.lateness }
func (a *tumblingAssigner) OnLate() LatePolicy              { return a.late }

// slidingAssigner overlaps windows of width Size every Slide.
type slidingAssigner struct {
	size      time.Duration
	slide     time.Duration
	lateness  time.Duration
	late      LatePolicy
	watermark time.Time
	closed    map[time.Time]bool
}

// NewSlidingWindow builds a WindowAssigner with windows of size that start
// every slide; slide must divide size evenly for AssignWindows to be exact,
// but any positive slide is accepted.
func NewSlidingWindow(size, slide, allowedLateness time.Duration, onLate LatePolicy) WindowAssigner {
	return &slidingAssigner{size: size, slide: slide, lateness: allowedLateness, late: onLate, closed: make(map[time.Time]bool)}
}

func (a *slidingAssigner) AssignWindows(t time.Time) []Window {
	var windows []Window
	lastStart := t.Truncate(a.slide)
	for start := lastStart; start.Add(a.size).After(t); start = start.Add(-a.slide) {
		windows = append(windows, Window{Start: start, End: start.Add(a.size)})
	}
	return windows
}

func (a *slidingAssigner) AdvanceWatermark(observed time.Time) []Window {
	prevCutoff := a.watermark.Add(-a.lateness)
	first := a.watermark.IsZero()
	if observed.After(a.watermark) {
		a.watermark = observed
	}
	cutoff := a.watermark.Add(-a.lateness)
	if first {
		prevCutoff = cutoff
	}
	var completed []Window
	start := prevCutoff.Truncate(a.slide).Add(-a.size)
	for s := start; !s.After(cutoff); s = s.Add(a.slide) {
		w := Window{Start: s, End: s.Add(a.size)}
		if !w.End.After(cutoff) && !a.closed[w.Start] {
			a.closed[w.Start] = true
			completed = append(completed, w)
		}
	}
	return completed
}

func (a *slidingAssigner) AllowedLateness() time.Duration { return a.lateness }
func (a *slidingAssigner) OnLate() LatePolicy              { return a.late }

// sessionAssigner assigns each item a single provisional window [t, t+Gap)
// anchored on its event time. Neither the Aggregate nor the Join driver
// merges overlapping provisional windows into sessions, and
// AdvanceWatermark never reports one as complete, so each item's window
// stays open until the node's input ends.
type sessionAssigner struct {
	gap       time.Duration
	lateness  time.Duration
	late      LatePolicy
	watermark time.Time
}

// NewSessionWindow builds a WindowAssigner that closes a session after gap
// of inactivity.
func NewSessionWindow(gap, allowedLateness time.Duration, onLate LatePolicy) WindowAssigner {
	return &sessionAssigner{gap: gap, lateness: allowedLateness, late: onLate}
}

func (a *sessionAssigner) AssignWindows(t time.Time) []Window {
	return []Window{{Start: t, End: t.Add(a.gap)}}
}

func (a *sessionAssigner) AdvanceWatermark(observed time.Time) []Window {
	if observed.After(a.watermark) {
		a.watermark = observed
	}
	// Session windows have no fixed-grid closing schedule, and nothing else
	// tracks inactivity for them, so no window is reported complete.
	return nil
}

func (a *sessionAssigner) AllowedLateness() time.Duration { return a.lateness }
func (a *sessionAssigner) OnLate() LatePolicy              { return a.late }

// MergeSessions merges any windows in windows that overlap or abut (gap
// apart or closer) into their union, returning the reduced set sorted by
// Start. No driver in this package calls it; the Aggregate driver keeps
// each provisional per-item session window separate.
func MergeSessions(windows []Window, gap time.Duration) []Window {
	if len(windows) == 0 {
		return nil
	}
	sorted := append([]Window(nil), windows...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Start.Before(sorted[j-1].Start); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	merged := []Window{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End.Add(gap)) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}
