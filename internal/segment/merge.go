package segment

import (
	"sort"

	"github.com/jekabolt/grbpwr-analytics/internal/entity"
)

// partial is the result of one aggregation query and the metrics it owns.
type partial struct {
	rows  []Row
	apply applyFunc
}

type key struct {
	bucket string
	id     int64
}

// accumulator combines partial results keyed by bucket and segment id.
type accumulator struct {
	known  []entity.SegmentRef
	labels map[int64]string
	extra  map[int64]struct{}
	values map[key]*entity.Subtotals
}

func newAccumulator(known []entity.SegmentRef) *accumulator {
	labels := make(map[int64]string, len(known))
	for _, ref := range known {
		labels[ref.ID] = ref.Label
	}
	return &accumulator{
		known:  known,
		labels: labels,
		extra:  map[int64]struct{}{},
		values: map[key]*entity.Subtotals{},
	}
}

func (a *accumulator) add(bucket string, p partial) {
	for _, r := range p.rows {
		b := bucket
		if b == "" {
			b = r.TimeInterval
		}
		k := key{bucket: b, id: r.SegmentID}
		st, ok := a.values[k]
		if !ok {
			z := zeroSubtotals()
			st = &z
			a.values[k] = st
		}
		p.apply(st, r)
		if _, ok := a.labels[r.SegmentID]; !ok {
			a.extra[r.SegmentID] = struct{}{}
		}
	}
}

// ids returns the known segment ids in order followed by any segment that
// showed up in the results without being known, sorted by id.
func (a *accumulator) ids() []int64 {
	out := make([]int64, 0, len(a.known)+len(a.extra))
	for _, ref := range a.known {
		out = append(out, ref.ID)
	}
	extra := make([]int64, 0, len(a.extra))
	for id := range a.extra {
		extra = append(extra, id)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// segments returns a dense list for one bucket: every id gets a segment,
// missing ones with zero metrics.
func (a *accumulator) segments(bucket string, ids []int64) []entity.Segment {
	out := make([]entity.Segment, 0, len(ids))
	for _, id := range ids {
		st := zeroSubtotals()
		if v, ok := a.values[key{bucket: bucket, id: id}]; ok {
			st = *v
		}
		finalize(&st)
		out = append(out, entity.Segment{
			ID:        id,
			Label:     a.labels[id],
			Subtotals: st,
		})
	}
	return out
}

// mergeTotals combines totals rows into one segment per known id.
func mergeTotals(known []entity.SegmentRef, parts ...partial) []entity.Segment {
	a := newAccumulator(known)
	for _, p := range parts {
		// totals rows carry no time interval, use a fixed bucket
		a.add(totalsBucket, p)
	}
	return a.segments(totalsBucket, a.ids())
}

const totalsBucket = "totals"

// mergeIntervals combines interval rows into a dense grid: every bucket
// lists every segment. When buckets is empty the buckets seen in the rows
// are used in ascending order.
func mergeIntervals(buckets []string, known []entity.SegmentRef, parts ...partial) map[string][]entity.Segment {
	a := newAccumulator(known)
	for _, p := range parts {
		a.add("", p)
	}

	if len(buckets) == 0 {
		seen := map[string]struct{}{}
		for k := range a.values {
			if _, ok := seen[k.bucket]; !ok {
				seen[k.bucket] = struct{}{}
				buckets = append(buckets, k.bucket)
			}
		}
		sort.Strings(buckets)
	}

	ids := a.ids()
	out := make(map[string][]entity.Segment, len(buckets))
	for _, b := range buckets {
		out[b] = a.segments(b, ids)
	}
	return out
}
