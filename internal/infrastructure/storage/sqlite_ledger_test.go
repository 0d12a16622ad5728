package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScholarLoop/internal/domain"
)

func openTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestEnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t)

	inserted, err := ledger.Enqueue(ctx, "2401.00001", "First", "https://arxiv.org/abs/2401.00001", "")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = ledger.Enqueue(ctx, "2401.00001", "First again", "elsewhere", "")
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate id must not insert")

	stats, err := ledger.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.StatusPending])
}

func TestEnqueueRejectsEmptyID(t *testing.T) {
	ledger := openTestLedger(t)

	_, err := ledger.Enqueue(context.Background(), "", "No id", "", "")
	assert.Error(t, err)
}

func TestNextPendingIsFIFO(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := ledger.Enqueue(ctx, id, "Paper "+id, "", "")
		require.NoError(t, err)
	}

	for _, want := range []string{"a", "b", "c"} {
		record, err := ledger.NextPending(ctx)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, want, record.ID)
		require.NoError(t, ledger.MarkProcessing(ctx, record.ID))
	}

	record, err := ledger.NextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, record, "queue should be drained")
}

func TestNextPendingOrdersSubsecondInserts(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t)

	// A 100ms fraction must not sort after a 120ms one; the stored
	// timestamp text has to order the same way the instants do.
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := []struct {
		id      string
		addedAt time.Time
	}{
		{"first", base.Add(100 * time.Millisecond)},
		{"second", base.Add(120 * time.Millisecond)},
	}
	for _, row := range rows {
		_, err := ledger.db.ExecContext(ctx,
			`INSERT INTO documents (id, title, status, added_at) VALUES (?, ?, ?, ?)`,
			row.id, "Paper "+row.id, domain.StatusPending, row.addedAt.Format(ledgerTimeFormat))
		require.NoError(t, err)
	}

	record, err := ledger.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "first", record.ID)
	assert.True(t, record.AddedAt.Equal(base.Add(100*time.Millisecond)))
}

func TestNewRecordShape(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t)

	_, err := ledger.Enqueue(ctx, "root", "Root paper", "hint", "")
	require.NoError(t, err)

	record, err := ledger.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.StatusPending, record.Status)
	assert.Empty(t, record.ParentID)
	assert.Nil(t, record.Score, "score must stay unset until done")
	assert.False(t, record.AddedAt.IsZero())
	assert.True(t, record.ProcessedAt.IsZero())
}

func TestStatusTransitionsAreMonotone(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t)

	_, err := ledger.Enqueue(ctx, "doc", "Doc", "", "")
	require.NoError(t, err)

	require.NoError(t, ledger.MarkProcessing(ctx, "doc"))
	require.NoError(t, ledger.MarkDone(ctx, "doc", 7.5, "useful", "/tmp/doc.pdf"))

	assert.Error(t, ledger.MarkProcessing(ctx, "doc"), "done record must not reopen")
	assert.Error(t, ledger.MarkError(ctx, "doc"), "done record must not become error")
	assert.Error(t, ledger.MarkDone(ctx, "doc", 1.0, "again", ""), "done record must not be re-finalized")

	record, err := ledger.NextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, record, "done record must never be pending again")
}

func TestMarkErrorFromPending(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t)

	// Materialization failures happen before the processing mark.
	_, err := ledger.Enqueue(ctx, "doc", "Doc", "", "")
	require.NoError(t, err)
	require.NoError(t, ledger.MarkError(ctx, "doc"))

	stats, err := ledger.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.StatusError])
	assert.Zero(t, stats[domain.StatusPending])
}

func TestMarkDoneStampsResult(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t)

	_, err := ledger.Enqueue(ctx, "doc", "Doc", "", "")
	require.NoError(t, err)
	require.NoError(t, ledger.MarkProcessing(ctx, "doc"))
	require.NoError(t, ledger.MarkDone(ctx, "doc", 8.25, "a summary", "/tmp/doc.pdf"))

	findings, err := ledger.Findings(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 8.25, findings[0].Score)
	assert.Equal(t, "a summary", findings[0].Summary)
}

func TestFindingsOrderedByScore(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t)

	seed := map[string]float64{"low": 2.0, "high": 9.0, "mid": 5.5}
	for id, score := range seed {
		_, err := ledger.Enqueue(ctx, id, "Paper "+id, "", "")
		require.NoError(t, err)
		require.NoError(t, ledger.MarkProcessing(ctx, id))
		require.NoError(t, ledger.MarkDone(ctx, id, score, "s", ""))
	}

	findings, err := ledger.Findings(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 3)
	assert.Equal(t, "Paper high", findings[0].Title)
	assert.Equal(t, "Paper low", findings[2].Title)
}

func TestLineageSurvivesRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t)

	_, err := ledger.Enqueue(ctx, "parent", "Parent", "", "")
	require.NoError(t, err)
	require.NoError(t, ledger.MarkProcessing(ctx, "parent"))
	require.NoError(t, ledger.MarkDone(ctx, "parent", 6.0, "s", ""))

	_, err = ledger.Enqueue(ctx, "child", "Child", "", "parent")
	require.NoError(t, err)

	record, err := ledger.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "child", record.ID)
	assert.Equal(t, "parent", record.ParentID)
}

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	ledger, err := OpenLedger(path)
	require.NoError(t, err)
	_, err = ledger.Enqueue(ctx, "doc", "Doc", "", "")
	require.NoError(t, err)
	require.NoError(t, ledger.Close())

	reopened, err := OpenLedger(path)
	require.NoError(t, err)
	defer reopened.Close()

	inserted, err := reopened.Enqueue(ctx, "doc", "Doc", "", "")
	require.NoError(t, err)
	assert.False(t, inserted, "dedup must hold across restarts")

	record, err := reopened.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "doc", record.ID)
}
