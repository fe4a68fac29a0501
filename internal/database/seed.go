package database

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// SeedOptions controls generated sample data
type SeedOptions struct {
	Count int
	Labs  int
	// Spread distributes created_at uniformly over [now-Spread, now]
	Spread time.Duration
	Now    time.Time
	Rand   *rand.Rand
}

// DefaultSeedOptions produces 100 reports across labs 1-10 filed in the last 90 days
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{
		Count:  100,
		Labs:   10,
		Spread: 90 * 24 * time.Hour,
		Now:    time.Now().UTC(),
		Rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GenerateReports returns random reports with protein 5-25, fat 2-12 and
// weight 50-250 at one decimal, and expiry 100-599 days.
func GenerateReports(opts SeedOptions) []FoodReport {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	if opts.Labs <= 0 {
		opts.Labs = 10
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	rng := opts.Rand
	reports := make([]FoodReport, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		created := opts.Now
		if opts.Spread > 0 {
			created = opts.Now.Add(-time.Duration(rng.Int63n(int64(opts.Spread))))
		}
		reports = append(reports, FoodReport{
			LabID:     int64(rng.Intn(opts.Labs) + 1),
			Protein:   oneDecimal(rng.Float64()*20 + 5),
			Fat:       oneDecimal(rng.Float64()*10 + 2),
			Weight:    oneDecimal(rng.Float64()*200 + 50),
			Expiry:    float64(rng.Intn(500) + 100),
			CreatedAt: created,
		})
	}
	return reports
}

// Seed generates and inserts sample reports
func Seed(ctx context.Context, repo *ReportRepository, opts SeedOptions) (int, error) {
	reports := GenerateReports(opts)
	if err := repo.InsertBatch(ctx, reports); err != nil {
		return 0, fmt.Errorf("failed to seed reports: %w", err)
	}
	return len(reports), nil
}

func oneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}
