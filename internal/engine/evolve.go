package engine

import (
	"cmp"
	"errors"
	"slices"

	"github.com/roach88/cellgram/internal/compiler"
	"github.com/roach88/cellgram/internal/fastlog"
	"github.com/roach88/cellgram/internal/ir"
	"github.com/roach88/cellgram/internal/symbol"
)

// TicksPerSecond is the board time scale.
const TicksPerSecond = compiler.TicksPerSecond

const (
	// waitScale converts a fixed-point log (26 fractional bits) divided by a
	// rate in Hz into ticks: 2^32 / 2^26.
	waitScale = 64

	acceptMask = 1<<compiler.AcceptBits - 1
)

// event is a candidate asynchronous rule firing.
type event struct {
	wait     int64
	index    int
	rule     *compiler.Rule
	dir      string
	accepted bool
}

// typeRates returns each type's propensity (cell count × summed rule Hz) and
// their total.
func (b *Board) typeRates() ([]uint64, uint64) {
	rates := make([]uint64, len(b.byType))
	var total uint64
	for t, set := range b.byType {
		rates[t] = uint64(set.Total()) * uint64(b.grammar.RateByType[t])
		total += rates[t]
	}
	return rates, total
}

// nextEvent draws the wait until the next event and, if it falls within
// maxWait, which cell fires which rule in which direction. It returns false
// when no event is possible or the wait exceeds maxWait; the caller decides
// whether to keep the draws.
//
// Draw order: r1 for the wait, r2 (one or two words) for the type, cell and
// rule, r3 for the direction (top two bits) and acceptance (low 30 bits).
func (b *Board) nextEvent(maxWait int64) (event, bool) {
	rates, total := b.typeRates()
	if total == 0 {
		return event{}, false
	}

	r1 := b.rng.Uint32()
	wait := waitScale * (fastlog.Max - fastlog.Ln(r1)) / int64(total)
	if wait < 1 {
		wait = 1
	}
	if wait > maxWait {
		return event{}, false
	}

	r := b.rng.Below(total)
	typ := 0
	for t, w := range rates {
		if r < w {
			typ = t
			break
		}
		r -= w
	}
	hz := uint64(b.grammar.RateByType[typ])
	n := r / hz
	r -= n * hz

	var rule *compiler.Rule
	for _, candidate := range b.grammar.Transform[typ] {
		if r < uint64(candidate.RateHz) {
			rule = candidate
			break
		}
		r -= uint64(candidate.RateHz)
	}

	r3 := b.rng.Uint32()
	return event{
		wait:     wait,
		index:    b.byType[typ].Kth(int(n)),
		rule:     rule,
		dir:      symbol.Dirs[r3>>30],
		accepted: int64(r3&acceptMask) <= rule.AcceptProb,
	}, true
}

// evolveAsyncToTime fires asynchronous events until the next one would fall
// after t. Time then stops at t. Without hardStop the draws for that
// overshooting event are rolled back and lastEventTime stays put, so a later
// call with a larger horizon sees the same event. With hardStop, t is a
// committed event time.
//
// A rejected event changes no cell but still advances time.
func (b *Board) evolveAsyncToTime(t int64, hardStop bool) {
	for b.time < t {
		saved := b.rng.Snapshot()
		ev, ok := b.nextEvent(t - b.lastEventTime)
		if !ok {
			b.time = t
			if hardStop {
				b.lastEventTime = t
			} else {
				b.rng.Restore(saved)
			}
			return
		}
		if ev.accepted {
			x, y := b.XY(ev.index)
			b.ApplyRule(x, y, ev.dir, ev.rule)
		}
		b.lastEventTime += ev.wait
		b.time = b.lastEventTime
	}
}

// nextSyncBoundary returns the earliest of t and the next sync boundary after
// the current time, with the sync categories due exactly then, in category
// order.
func (b *Board) nextSyncBoundary(t int64) (int64, []int) {
	g := b.grammar
	next := t
	times := make([]int64, len(g.SyncPeriods))
	for m, p := range g.SyncPeriods {
		times[m] = b.time + p - b.time%p
		next = min(next, times[m])
	}
	var due []int
	for _, m := range g.SyncCategories {
		if times[m] == next {
			due = append(due, m)
		}
	}
	return next, due
}

// EvolveToTime advances the board to time t, alternating asynchronous
// evolution with sync sweeps at every sync boundary on the way. A boundary is
// a hard stop; t itself is one only when hardStop is set.
func (b *Board) EvolveToTime(t int64, hardStop bool) {
	for b.time < t {
		next, due := b.nextSyncBoundary(t)
		b.evolveAsyncToTime(next, hardStop || len(due) > 0)
		if len(due) > 0 {
			b.syncSweep(due)
		}
	}
}

// syncSweep fires the due sync categories in random order. Within a category
// every cell of every subscribed type attempts each of its type's rules once,
// in a freshly drawn direction.
//
// The sweep is synchronous: every match is made against the board as it stood
// before the sweep, and the writes are applied afterwards in attempt order, a
// later write to a cell replacing an earlier one.
func (b *Board) syncSweep(due []int) {
	g := b.grammar
	due = slices.Clone(due)
	b.rng.Shuffle(len(due), func(i, j int) { due[i], due[j] = due[j], due[i] })

	type attempt struct {
		index int
		rules []*compiler.Rule
	}
	var attempts []attempt
	for _, m := range due {
		for _, t := range g.TypesBySyncCategory[m] {
			rules := g.SyncTransform[m][t]
			for _, index := range b.byType[t].Elements() {
				attempts = append(attempts, attempt{index: index, rules: rules})
			}
		}
	}

	var writes []update
	for _, a := range attempts {
		x, y := b.XY(a.index)
		for _, r := range a.rules {
			dir := symbol.Dirs[b.rng.Uint32()%4]
			if updates, ok := b.ruleUpdates(x, y, dir, r); ok {
				writes = append(writes, updates...)
			}
		}
	}
	for _, u := range writes {
		b.setCellByIndex(u.index, u.cell)
	}
}

// EvolveAndProcess evolves the board to t, pausing at each move's time (a
// hard stop) to apply it. Moves are applied in time order, ties in the given
// order; moves after t are left for a later call. A move stamped before the
// current time applies at the current time.
//
// Rejected moves are not errors. The returned error joins the moves that could
// not be understood; they are skipped.
func (b *Board) EvolveAndProcess(t int64, moves []ir.Move, hardStop bool) error {
	pending := make([]ir.Move, 0, len(moves))
	for _, m := range moves {
		if m.Time <= t {
			pending = append(pending, m)
		}
	}
	slices.SortStableFunc(pending, func(a, b ir.Move) int {
		return cmp.Compare(a.Time, b.Time)
	})

	var errs []error
	for _, m := range pending {
		b.EvolveToTime(m.Time, true)
		if err := b.ProcessMove(m); err != nil {
			errs = append(errs, err)
		}
	}
	b.EvolveToTime(t, hardStop)
	return errors.Join(errs...)
}
