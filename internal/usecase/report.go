package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ScholarLoop/internal/ports"
)

// Reporter compiles everything the run has marked done into a single
// markdown report. It only reads the ledger, so it is safe to run
// while a loop is active.
type Reporter struct {
	ledger   ports.Ledger
	states   ports.StateStore
	compiler ports.Compiler
	outDir   string
	logger   *slog.Logger
}

// NewReporter wires the report use case.
func NewReporter(ledger ports.Ledger, states ports.StateStore, compiler ports.Compiler, outDir string, logger *slog.Logger) *Reporter {
	return &Reporter{
		ledger:   ledger,
		states:   states,
		compiler: compiler,
		outDir:   outDir,
		logger:   logger,
	}
}

// Compile gathers findings, asks the compiler collaborator for the
// report text, and writes it under the output directory. Returns the
// written path.
func (r *Reporter) Compile(ctx context.Context, fallbackGoal string) (string, error) {
	goal := fallbackGoal
	if state, err := r.states.Load(); err == nil && state != nil {
		goal = state.Goal
	}

	findings, err := r.ledger.Findings(ctx)
	if err != nil {
		return "", fmt.Errorf("load findings: %w", err)
	}
	if len(findings) == 0 {
		return "", fmt.Errorf("no evidence collected yet")
	}

	report, err := r.compiler.Compile(ctx, goal, findings)
	if err != nil {
		return "", fmt.Errorf("compile report: %w", err)
	}

	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	name := fmt.Sprintf("audit_report_%s.md", time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(r.outDir, name)
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	if r.logger != nil {
		r.logger.Info("report written", "path", path, "findings", len(findings))
	}
	return path, nil
}
