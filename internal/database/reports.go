package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// FoodReport is one nutrition report filed by a lab
type FoodReport struct {
	ID        string    `json:"id"`
	LabID     int64     `json:"lab_id"`
	Protein   float64   `json:"protein"`
	Fat       float64   `json:"fat"`
	Weight    float64   `json:"weight"`
	Expiry    float64   `json:"expiry"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportRepository reads and writes the FoodReports table
type ReportRepository struct {
	db *sql.DB
}

// NewReportRepository creates a repository over an open database
func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, lab_id, protein, fat, weight, expiry, created_at`

// ListAll returns every report, newest first
func (r *ReportRepository) ListAll(ctx context.Context) ([]FoodReport, error) {
	query := `SELECT ` + reportColumns + ` FROM "FoodReports" ORDER BY created_at DESC, id`
	return r.list(ctx, query)
}

// ListByLab returns the reports of one lab, newest first
func (r *ReportRepository) ListByLab(ctx context.Context, labID int64) ([]FoodReport, error) {
	query := `SELECT ` + reportColumns + ` FROM "FoodReports" WHERE lab_id = $1 ORDER BY created_at DESC, id`
	return r.list(ctx, query, labID)
}

func (r *ReportRepository) list(ctx context.Context, query string, args ...interface{}) ([]FoodReport, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := make([]FoodReport, 0)
	for rows.Next() {
		var fr FoodReport
		if err := rows.Scan(&fr.ID, &fr.LabID, &fr.Protein, &fr.Fat, &fr.Weight, &fr.Expiry, &fr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		reports = append(reports, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

// InsertBatch bulk-loads reports with COPY inside one transaction. Reports
// without an ID get a new UUID.
func (r *ReportRepository) InsertBatch(ctx context.Context, reports []FoodReport) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("FoodReports",
		"id", "lab_id", "protein", "fat", "weight", "expiry", "created_at"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for i := range reports {
		fr := &reports[i]
		if fr.ID == "" {
			fr.ID = uuid.New().String()
		}
		if _, err = stmt.ExecContext(ctx, fr.ID, fr.LabID, fr.Protein, fr.Fat, fr.Weight, fr.Expiry, fr.CreatedAt); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy report %s: %w", fr.ID, err)
		}
	}

	if _, err = stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reports: %w", err)
	}
	return nil
}

// Count returns the number of stored reports
func (r *ReportRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "FoodReports"`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return n, nil
}
