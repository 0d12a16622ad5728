package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScholarLoop/internal/domain"
	"ScholarLoop/internal/infrastructure/storage"
)

type fakeCompiler struct {
	goal string
}

func (f *fakeCompiler) Compile(_ context.Context, goal string, findings []domain.Finding) (string, error) {
	f.goal = goal
	return fmt.Sprintf("# Report\n\n%d findings\n", len(findings)), nil
}

func TestReporterWritesReport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ledger, err := storage.OpenLedger(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()

	states := storage.NewFileStateStore(filepath.Join(dir, "state.json"), nil)
	require.NoError(t, states.Save(domain.NewSessionState("the persisted goal")))

	_, err = ledger.Enqueue(ctx, "doc", "Doc", "", "")
	require.NoError(t, err)
	require.NoError(t, ledger.MarkProcessing(ctx, "doc"))
	require.NoError(t, ledger.MarkDone(ctx, "doc", 7.0, "summary", ""))

	compiler := &fakeCompiler{}
	reporter := NewReporter(ledger, states, compiler, filepath.Join(dir, "out"), nil)

	path, err := reporter.Compile(ctx, "fallback goal")
	require.NoError(t, err)
	assert.Equal(t, "the persisted goal", compiler.goal, "goal comes from the snapshot when present")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "1 findings")
}

func TestReporterWithoutFindings(t *testing.T) {
	dir := t.TempDir()

	ledger, err := storage.OpenLedger(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()

	states := storage.NewFileStateStore(filepath.Join(dir, "state.json"), nil)
	reporter := NewReporter(ledger, states, &fakeCompiler{}, dir, nil)

	_, err = reporter.Compile(context.Background(), "goal")
	assert.Error(t, err)
}
