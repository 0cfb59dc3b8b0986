// Package stats turns the raw request samples of a finished run into the
// per-category summaries that are persisted and shown to operators.
package stats

import (
	"sort"
	"time"

	"github.com/examload/examload/internal/lms"
	"github.com/examload/examload/internal/models"
)

// TimeBucket summarizes all samples of one category whose timestamps fall
// into the same truncated interval.
type TimeBucket struct {
	Start       time.Time
	Count       int64
	AvgDuration time.Duration
}

// CategoryStats summarizes all samples of one request category.
type CategoryStats struct {
	Category    lms.RequestCategory
	Count       int64
	AvgDuration time.Duration
	PerMinute   []TimeBucket
	PerSecond   []TimeBucket
}

// Aggregate computes per-category statistics plus a synthetic TOTAL
// category covering every sample. Averages use truncating integer division;
// an empty sample set yields a single TOTAL entry with zero count and no
// buckets. Buckets are sorted by start time.
func Aggregate(samples []lms.RequestSample) map[lms.RequestCategory]CategoryStats {
	byCategory := map[lms.RequestCategory][]lms.RequestSample{
		lms.CategoryTotal: samples,
	}
	for _, s := range samples {
		byCategory[s.Category] = append(byCategory[s.Category], s)
	}

	out := make(map[lms.RequestCategory]CategoryStats, len(byCategory))
	for category, group := range byCategory {
		out[category] = CategoryStats{
			Category:    category,
			Count:       int64(len(group)),
			AvgDuration: avgDuration(group),
			PerMinute:   bucketize(group, time.Minute),
			PerSecond:   bucketize(group, time.Second),
		}
	}
	return out
}

// AggregateFor computes statistics for exactly the categories the
// simulation's authentication mix can produce, in a stable order. A category
// with no samples yields a zero-count entry with no buckets.
func AggregateFor(sim *models.Simulation, samples []lms.RequestSample) []CategoryStats {
	aggregated := Aggregate(samples)
	categories := CategoriesFor(sim)
	out := make([]CategoryStats, 0, len(categories))
	for _, category := range categories {
		stats, ok := aggregated[category]
		if !ok {
			stats = CategoryStats{Category: category}
		}
		out = append(out, stats)
	}
	return out
}

// CategoriesFor lists the categories a simulation can produce, given its
// authentication mix. Mechanism-specific clone and push categories are only
// reported when the corresponding share of users is nonzero.
func CategoriesFor(sim *models.Simulation) []lms.RequestCategory {
	categories := []lms.RequestCategory{
		lms.CategoryTotal,
		lms.CategoryAuthentication,
		lms.CategoryGetStudentExam,
		lms.CategoryStartStudentExam,
		lms.CategorySubmitExercise,
		lms.CategorySubmitStudentExam,
		lms.CategoryMisc,
	}
	if sim.OnlineIDEPercentage > 0 {
		categories = append(categories,
			lms.CategoryProgrammingResult,
			lms.CategoryRepositoryInfo,
			lms.CategoryRepositoryFiles,
		)
	}
	if sim.SSHPercentage > 0 {
		categories = append(categories, lms.CategoryCloneSSH, lms.CategoryPushSSH)
	}
	if sim.TokenPercentage > 0 {
		categories = append(categories, lms.CategoryCloneToken, lms.CategoryPushToken)
	}
	if sim.PasswordPercentage > 0 {
		categories = append(categories, lms.CategoryClonePassword, lms.CategoryPushPassword)
	}
	return categories
}

func avgDuration(samples []lms.RequestSample) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s.Duration
	}
	return sum / time.Duration(len(samples))
}

func bucketize(samples []lms.RequestSample, interval time.Duration) []TimeBucket {
	if len(samples) == 0 {
		return nil
	}
	grouped := make(map[time.Time][]lms.RequestSample)
	for _, s := range samples {
		start := s.Timestamp.Truncate(interval)
		grouped[start] = append(grouped[start], s)
	}
	buckets := make([]TimeBucket, 0, len(grouped))
	for start, group := range grouped {
		buckets = append(buckets, TimeBucket{
			Start:       start,
			Count:       int64(len(group)),
			AvgDuration: avgDuration(group),
		})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets
}
