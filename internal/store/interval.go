package store

import (
	"fmt"
	"time"

	"github.com/jekabolt/grbpwr-analytics/internal/entity"
)

// bucket is one interval of a report: its id as produced by timeExpr and the
// part of the requested range it covers.
type bucket struct {
	ID    string
	Start time.Time
	End   time.Time
}

// timeExpr returns the MySQL expression bucketing col by granularity. Its
// output matches bucketID.
func timeExpr(g entity.Granularity, col string) string {
	switch g {
	case entity.GranularityHour:
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H')", col)
	case entity.GranularityWeek:
		// ISO week, Monday start
		return fmt.Sprintf("DATE_FORMAT(%s, '%%x-%%v')", col)
	case entity.GranularityMonth:
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m')", col)
	case entity.GranularityQuarter:
		return fmt.Sprintf("CONCAT(YEAR(%[1]s), '-', QUARTER(%[1]s))", col)
	case entity.GranularityYear:
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y')", col)
	default:
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d')", col)
	}
}

func bucketID(t time.Time, g entity.Granularity) string {
	switch g {
	case entity.GranularityHour:
		return t.Format("2006-01-02 15")
	case entity.GranularityWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-%02d", year, week)
	case entity.GranularityMonth:
		return t.Format("2006-01")
	case entity.GranularityQuarter:
		return fmt.Sprintf("%d-%d", t.Year(), (int(t.Month())-1)/3+1)
	case entity.GranularityYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01-02")
	}
}

func bucketStart(t time.Time, g entity.Granularity) time.Time {
	loc := t.Location()
	switch g {
	case entity.GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	case entity.GranularityWeek:
		// Monday 00:00 (align with MySQL WEEKDAY: 0=Mon, 6=Sun; Go: 0=Sun, 1=Mon)
		weekday := int(t.Weekday())
		daysBack := (weekday + 6) % 7
		return time.Date(t.Year(), t.Month(), t.Day()-daysBack, 0, 0, 0, 0, loc)
	case entity.GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case entity.GranularityQuarter:
		month := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), month, 1, 0, 0, 0, 0, loc)
	case entity.GranularityYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
}

func bucketNext(t time.Time, g entity.Granularity) time.Time {
	switch g {
	case entity.GranularityHour:
		return t.Add(time.Hour)
	case entity.GranularityWeek:
		return t.AddDate(0, 0, 7)
	case entity.GranularityMonth:
		return t.AddDate(0, 1, 0)
	case entity.GranularityQuarter:
		return t.AddDate(0, 3, 0)
	case entity.GranularityYear:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// listBuckets returns every bucket intersecting [from, to] in ascending
// order, the first and last clamped to the range.
func listBuckets(from, to time.Time, g entity.Granularity) []bucket {
	var result []bucket
	if to.Before(from) {
		return result
	}
	for cur := bucketStart(from, g); !cur.After(to); cur = bucketNext(cur, g) {
		b := bucket{
			ID:    bucketID(cur, g),
			Start: cur,
			End:   bucketNext(cur, g).Add(-time.Second),
		}
		if b.Start.Before(from) {
			b.Start = from
		}
		if b.End.After(to) {
			b.End = to
		}
		result = append(result, b)
	}
	return result
}

// pageBuckets orders buckets by date and returns the requested page along
// with the total number of pages.
func pageBuckets(all []bucket, order entity.SortOrder, page, perPage int) ([]bucket, int) {
	if perPage <= 0 {
		perPage = len(all)
	}
	if perPage == 0 {
		return nil, 0
	}
	pages := (len(all) + perPage - 1) / perPage

	ordered := make([]bucket, len(all))
	copy(ordered, all)
	if order != entity.SortOrderAsc {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}

	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(ordered) {
		return []bucket{}, pages
	}
	end := start + perPage
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[start:end], pages
}

// window returns the time range covered by buckets.
func window(buckets []bucket) (from, to time.Time) {
	for i, b := range buckets {
		if i == 0 || b.Start.Before(from) {
			from = b.Start
		}
		if i == 0 || b.End.After(to) {
			to = b.End
		}
	}
	return from, to
}
