package history

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRecent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, lab := range []int64{3, 7, 3, 3} {
		require.NoError(t, store.Record(ctx, Entry{
			LabID:     lab,
			Prompt:    "q",
			Statement: "SELECT 1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := store.Recent(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, base.Add(3*time.Minute), entries[0].CreatedAt)
	assert.Equal(t, base.Add(2*time.Minute), entries[1].CreatedAt)
	for _, e := range entries {
		assert.Equal(t, int64(3), e.LabID)
		assert.NotEmpty(t, e.ID)
	}

	none, err := store.Recent(ctx, 99, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	for _, p := range []string{"first", "second", "third"} {
		require.NoError(t, store.Record(ctx, Entry{LabID: 1, Prompt: p}))
	}

	entries, err := store.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	prompts := []string{entries[0].Prompt, entries[1].Prompt}
	assert.ElementsMatch(t, []string{"second", "third"}, prompts)
}

func TestPostgresStoreRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO query_history`)).
		WithArgs(sqlmock.AnyArg(), int64(7), "u1", "average fat", "rules",
			`SELECT AVG(fat) AS value FROM "FoodReports" WHERE lab_id = 7;`,
			"AVG of fat for lab 7", 1, false, int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresStore(db).Record(context.Background(), Entry{
		LabID:      7,
		UserID:     "u1",
		Prompt:     "average fat",
		Mode:       "rules",
		Statement:  `SELECT AVG(fat) AS value FROM "FoodReports" WHERE lab_id = 7;`,
		Summary:    "AVG of fat for lab 7",
		RowCount:   1,
		DurationMs: 4,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "lab_id", "user_id", "prompt", "mode", "statement", "summary", "row_count", "cached", "duration_ms", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM query_history`)).
		WithArgs(int64(3), DefaultLimit).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("h1", int64(3), "", "protein greater than 10", "rules", "SELECT ...", "Selected rows for lab 3", int64(12), true, int64(2), created))

	entries, err := NewPostgresStore(db).Recent(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "h1", entries[0].ID)
	assert.Equal(t, 12, entries[0].RowCount)
	assert.True(t, entries[0].Cached)
	assert.Equal(t, created, entries[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
