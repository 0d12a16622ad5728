package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "SCHOLARLOOP_CONFIG"
	goalEnv           = "SCHOLARLOOP_GOAL"
	llmAPIKeyEnv      = "LLM_API_KEY"
	llmModelEnv       = "LLM_MODEL"
	llmEndpointEnv    = "LLM_ENDPOINT"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Goal          string             `yaml:"goal"`
	Storage       StorageConfig      `yaml:"storage"`
	Loop          LoopConfig         `yaml:"loop"`
	LLM           LLMConfig          `yaml:"llm"`
	Arxiv         ArxivConfig        `yaml:"arxiv"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// StorageConfig locates the durable ledger, state snapshot, and workspace.
type StorageConfig struct {
	DataDir      string `yaml:"dataDir"`
	LedgerFile   string `yaml:"ledgerFile"`
	StateFile    string `yaml:"stateFile"`
	WorkspaceDir string `yaml:"workspaceDir"`
}

// LoopConfig tunes the scheduler loop.
type LoopConfig struct {
	MaxSteps            int     `yaml:"maxSteps"`
	CheckpointInterval  int     `yaml:"checkpointInterval"`
	StarvationThreshold int     `yaml:"starvationThreshold"`
	RelevanceThreshold  float64 `yaml:"relevanceThreshold"`
	SearchResultCap     int     `yaml:"searchResultCap"`
	RecentFactsWindow   int     `yaml:"recentFactsWindow"`
	EvalExcerptBytes    int     `yaml:"evalExcerptBytes"`
	TickDelayMs         int     `yaml:"tickDelayMs"`
	StarvationPauseMs   int     `yaml:"starvationPauseMs"`
}

// TickDelay resolves the cooperative pacing delay between ticks.
func (l LoopConfig) TickDelay() time.Duration {
	return time.Duration(l.TickDelayMs) * time.Millisecond
}

// StarvationPause resolves the pause taken when refinement yields nothing.
func (l LoopConfig) StarvationPause() time.Duration {
	return time.Duration(l.StarvationPauseMs) * time.Millisecond
}

// LLMConfig defines how to contact the OpenAI-compatible oracle endpoint.
// ProxyURL, when set, is applied to the client transport explicitly;
// collaborators never read proxy settings from the process environment.
type LLMConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"apiKey"`
	ProxyURL       string `yaml:"proxyUrl"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// Timeout resolves the per-request deadline for oracle calls.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ArxivConfig describes the document source endpoints.
type ArxivConfig struct {
	Provider  string `yaml:"provider"`
	SearchURL string `yaml:"searchUrl"`
	BaseURL   string `yaml:"baseUrl"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(goalEnv); v != "" {
		c.Goal = v
	}

	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}

	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv(llmEndpointEnv); v != "" {
		c.LLM.Endpoint = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Goal != "" {
		base.Goal = override.Goal
	}

	if override.Storage.DataDir != "" {
		base.Storage.DataDir = override.Storage.DataDir
	}
	if override.Storage.LedgerFile != "" {
		base.Storage.LedgerFile = override.Storage.LedgerFile
	}
	if override.Storage.StateFile != "" {
		base.Storage.StateFile = override.Storage.StateFile
	}
	if override.Storage.WorkspaceDir != "" {
		base.Storage.WorkspaceDir = override.Storage.WorkspaceDir
	}

	if override.Loop.MaxSteps > 0 {
		base.Loop.MaxSteps = override.Loop.MaxSteps
	}
	if override.Loop.CheckpointInterval > 0 {
		base.Loop.CheckpointInterval = override.Loop.CheckpointInterval
	}
	if override.Loop.StarvationThreshold > 0 {
		base.Loop.StarvationThreshold = override.Loop.StarvationThreshold
	}
	if override.Loop.RelevanceThreshold > 0 {
		base.Loop.RelevanceThreshold = override.Loop.RelevanceThreshold
	}
	if override.Loop.SearchResultCap > 0 {
		base.Loop.SearchResultCap = override.Loop.SearchResultCap
	}
	if override.Loop.RecentFactsWindow > 0 {
		base.Loop.RecentFactsWindow = override.Loop.RecentFactsWindow
	}
	if override.Loop.EvalExcerptBytes > 0 {
		base.Loop.EvalExcerptBytes = override.Loop.EvalExcerptBytes
	}
	if override.Loop.TickDelayMs > 0 {
		base.Loop.TickDelayMs = override.Loop.TickDelayMs
	}
	if override.Loop.StarvationPauseMs > 0 {
		base.Loop.StarvationPauseMs = override.Loop.StarvationPauseMs
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.ProxyURL != "" {
		base.LLM.ProxyURL = override.LLM.ProxyURL
	}
	if override.LLM.TimeoutSeconds > 0 {
		base.LLM.TimeoutSeconds = override.LLM.TimeoutSeconds
	}

	if override.Arxiv.Provider != "" {
		base.Arxiv.Provider = override.Arxiv.Provider
	}
	if override.Arxiv.SearchURL != "" {
		base.Arxiv.SearchURL = override.Arxiv.SearchURL
	}
	if override.Arxiv.BaseURL != "" {
		base.Arxiv.BaseURL = override.Arxiv.BaseURL
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Goal: "Large language models often hallucinate and fail in simple reasoning",
		Storage: StorageConfig{
			DataDir:      "data",
			LedgerFile:   "scholar_memory.db",
			StateFile:    "agent_state.json",
			WorkspaceDir: "workspace",
		},
		Loop: LoopConfig{
			MaxSteps:            100,
			CheckpointInterval:  5,
			StarvationThreshold: 2,
			RelevanceThreshold:  5.0,
			SearchResultCap:     5,
			RecentFactsWindow:   3,
			EvalExcerptBytes:    5000,
			TickDelayMs:         100,
			StarvationPauseMs:   1000,
		},
		LLM: LLMConfig{
			Endpoint:       "https://api.openai.com/v1/chat/completions",
			Model:          "gpt-4o-mini",
			APIKey:         "",
			ProxyURL:       "",
			TimeoutSeconds: 90,
		},
		Arxiv: ArxivConfig{
			Provider:  "arxiv",
			SearchURL: "https://arxiv.org/search/",
			BaseURL:   "https://arxiv.org",
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
