package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ncastellan/deskwatch/internal/api"
	"github.com/ncastellan/deskwatch/internal/app"
	"github.com/ncastellan/deskwatch/internal/credential"
	"github.com/ncastellan/deskwatch/internal/logging"
	"github.com/ncastellan/deskwatch/internal/model"
	"github.com/ncastellan/deskwatch/internal/notify"
	"github.com/ncastellan/deskwatch/internal/poll"
	"github.com/ncastellan/deskwatch/internal/realtime"
	"github.com/ncastellan/deskwatch/internal/store"
	"github.com/ncastellan/deskwatch/internal/ui/setup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "deskwatch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := model.DefaultConfigPath()
	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	stateDir := model.DefaultStateDir()
	log, err := logging.New(logging.Config{
		Dir:   stateDir,
		Debug: os.Getenv("DESKWATCH_DEBUG") != "",
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer func() { _ = log.Sync() }()

	token := loadToken(log)

	// First run: collect the backend URL and token before anything else
	// is built, since the whole transport derives from them.
	if !cfg.Configured() || token == "" {
		cfg, token, err = runSetup(cfg, cfgPath, log)
		if err != nil {
			return err
		}
	}

	client := api.NewClient(cfg.Server.BaseURL, token, log)

	cache, err := store.NewSQLiteStore(filepath.Join(stateDir, "history.db"))
	if err != nil {
		return fmt.Errorf("opening history cache: %w", err)
	}
	defer cache.Close()

	pruneHistory(cache, cfg, log)

	center := notify.NewCenter(client, cache, log)

	sessionCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := uuid.NewString()
	wsURL, err := realtime.DialURL(
		cfg.Server.BaseURL, cfg.Server.RealtimePath, token, session,
	)
	if err != nil {
		return err
	}

	manager := realtime.NewManager(realtime.Config{
		URL:            wsURL,
		ReconnectDelay: time.Duration(cfg.Server.ReconnectDelaySec) * time.Second,
		MaxAttempts:    cfg.Server.MaxReconnectAttempts,
		OnNotification: center.OnPush,
		OnStatus:       center.SetConnectionStatus,
		Log:            log,
	})

	// Assume visible until the terminal reports otherwise.
	visible := &atomic.Bool{}
	visible.Store(true)

	poller := poll.New(
		client,
		center,
		poll.VisibleFunc(visible.Load),
		time.Duration(cfg.Poll.IntervalSec)*time.Second,
		log,
	)

	m := app.New(app.Deps{
		Config:     cfg,
		Center:     center,
		Poller:     poller,
		Manager:    manager,
		Cache:      cache,
		SessionCtx: sessionCtx,
		Visible:    visible,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}

	poller.Stop()
	manager.Close()
	return nil
}

// loadToken reads the API token from the environment or the system
// keyring. An empty result triggers the setup flow.
func loadToken(log *zap.SugaredLogger) string {
	if token := os.Getenv("DESKWATCH_TOKEN"); token != "" {
		return token
	}
	token, err := credential.Get(credential.TokenKey)
	if err != nil {
		log.Debugw("no stored token", "err", err)
		return ""
	}
	return token
}

// runSetup runs the first-run form as its own program, persists the
// result, and returns the updated config and token.
func runSetup(cfg *model.AppConfig, cfgPath string, log *zap.SugaredLogger) (*model.AppConfig, string, error) {
	form := setup.New(cfg.Server.BaseURL, 80, 24)

	var (
		done      setup.DoneMsg
		cancelled bool
	)
	wrapper := setupProgram{inner: form, done: &done, cancelled: &cancelled}

	if _, err := tea.NewProgram(wrapper, tea.WithAltScreen()).Run(); err != nil {
		return nil, "", fmt.Errorf("running setup: %w", err)
	}
	if cancelled {
		return nil, "", errors.New("setup cancelled")
	}

	cfg.Server.BaseURL = done.BaseURL
	if err := model.SaveConfig(cfgPath, cfg); err != nil {
		return nil, "", err
	}
	if err := credential.Set(credential.TokenKey, done.Token); err != nil {
		// A keyring-less environment can still run off the env var;
		// keep going but tell the user where the token went (nowhere).
		log.Warnw("could not store token in keyring", "err", err)
		fmt.Fprintln(os.Stderr,
			"warning: token not stored; set DESKWATCH_TOKEN to avoid re-entering it")
	}

	log.Infow("setup complete", "base_url", done.BaseURL)
	return cfg, done.Token, nil
}

// setupProgram adapts the setup form into a standalone tea.Model that
// records its outcome for the caller.
type setupProgram struct {
	inner     setup.Model
	done      *setup.DoneMsg
	cancelled *bool
}

func (s setupProgram) Init() tea.Cmd { return s.inner.Init() }

func (s setupProgram) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case setup.DoneMsg:
		*s.done = msg
		return s, tea.Quit
	case setup.CancelMsg:
		*s.cancelled = true
		return s, tea.Quit
	}

	var cmd tea.Cmd
	s.inner, cmd = s.inner.Update(msg)
	return s, cmd
}

func (s setupProgram) View() string { return s.inner.View() }

// pruneHistory drops cached notifications older than the retention
// window. Failures only cost disk space, so they are logged and ignored.
func pruneHistory(cache store.Store, cfg *model.AppConfig, log *zap.SugaredLogger) {
	if cfg.History.RetentionDays <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -cfg.History.RetentionDays)
	n, err := cache.Prune(ctx, cutoff)
	if err != nil {
		log.Warnw("history prune failed", "err", err)
		return
	}
	if n > 0 {
		log.Infow("pruned history cache", "removed", n)
	}
}
