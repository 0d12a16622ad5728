package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"ScholarLoop/internal/config"
	"ScholarLoop/internal/domain"
	"ScholarLoop/internal/infrastructure/arxiv"
	"ScholarLoop/internal/infrastructure/llm"
	"ScholarLoop/internal/infrastructure/pdftext"
	"ScholarLoop/internal/infrastructure/storage"
	"ScholarLoop/internal/infrastructure/telegram"
	"ScholarLoop/internal/logging"
	"ScholarLoop/internal/ports"
	"ScholarLoop/internal/source"
	"ScholarLoop/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	ledger   *storage.SQLiteLedger
	states   ports.StateStore
	loop     *usecase.Loop
	reporter *usecase.Reporter
	logger   *slog.Logger
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	ledger, err := storage.OpenLedger(filepath.Join(cfg.Storage.DataDir, cfg.Storage.LedgerFile))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	states := storage.NewFileStateStore(
		filepath.Join(cfg.Storage.DataDir, cfg.Storage.StateFile),
		logging.Component(baseLogger, "state"),
	)

	registry := source.NewRegistry()
	registry.Register(arxiv.NewClient(nil, cfg.Arxiv.SearchURL, cfg.Arxiv.BaseURL,
		cfg.Storage.WorkspaceDir, logging.Component(baseLogger, "source.arxiv")))

	docSource, err := registry.Resolve(cfg.Arxiv.Provider)
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}

	oracle, err := llm.NewClient(cfg.LLM, logging.Component(baseLogger, "llm"))
	if err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("build llm client: %w", err)
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID,
			logging.Component(baseLogger, "telegram"))
	}

	dispatcher := usecase.NewDispatcher(ledger, docSource, states,
		cfg.Loop.SearchResultCap, logging.Component(baseLogger, "discovery"))

	loop := usecase.NewLoop(cfg.Goal, usecase.LoopDeps{
		Ledger:     ledger,
		States:     states,
		Source:     docSource,
		Evaluator:  oracle,
		Planner:    oracle,
		Refiner:    oracle,
		Extractor:  pdftext.NewExtractor(),
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Logger:     logging.Component(baseLogger, "loop"),
	}, usecase.Tuning{
		MaxSteps:            cfg.Loop.MaxSteps,
		CheckpointInterval:  cfg.Loop.CheckpointInterval,
		StarvationThreshold: cfg.Loop.StarvationThreshold,
		RelevanceThreshold:  cfg.Loop.RelevanceThreshold,
		RecentFactsWindow:   cfg.Loop.RecentFactsWindow,
		EvalExcerptBytes:    cfg.Loop.EvalExcerptBytes,
		TickDelay:           cfg.Loop.TickDelay(),
		StarvationPause:     cfg.Loop.StarvationPause(),
	})

	reporter := usecase.NewReporter(ledger, states, oracle,
		cfg.Storage.WorkspaceDir, logging.Component(baseLogger, "report"))

	return &Application{
		cfg:      cfg,
		ledger:   ledger,
		states:   states,
		loop:     loop,
		reporter: reporter,
		logger:   baseLogger,
	}, nil
}

// Run drives the research loop until the step limit or a stop signal.
// A canceled context is a normal operator stop, not a failure.
func (a *Application) Run(ctx context.Context) error {
	err := a.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Status prints ledger statistics and the session snapshot summary.
func (a *Application) Status(ctx context.Context) error {
	stats, err := a.ledger.Statistics(ctx)
	if err != nil {
		return fmt.Errorf("ledger statistics: %w", err)
	}

	fmt.Printf("pending=%d processing=%d done=%d error=%d\n",
		stats[domain.StatusPending], stats[domain.StatusProcessing],
		stats[domain.StatusDone], stats[domain.StatusError])

	state, err := a.states.Load()
	if err != nil || state == nil {
		fmt.Println("no session state yet")
		return nil
	}
	fmt.Printf("goal: %s\nstep: %d\nstrategy: %s\nfacts: %d\nhypothesis: %s\nnote: %s\n",
		state.Goal, state.StepCount, state.Strategy, len(state.KnownFacts),
		state.CurrentHypothesis, state.LastNote)
	return nil
}

// Report compiles the findings collected so far into a markdown file.
func (a *Application) Report(ctx context.Context) error {
	path, err := a.reporter.Compile(ctx, a.cfg.Goal)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// Override applies an operator note and optional strategy change.
func (a *Application) Override(command, strategy string) error {
	if command == "" {
		return fmt.Errorf("override requires a note")
	}
	return a.states.ApplyOperatorOverride(command, domain.Strategy(strategy))
}

// Close releases held resources.
func (a *Application) Close() error {
	return a.ledger.Close()
}
