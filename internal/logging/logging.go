// Package logging configures the process-wide zap logger. The TUI owns
// stdout/stderr, so all log output goes to a file in the state directory.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	instance *zap.SugaredLogger
	once     sync.Once
)

// Config controls logger construction.
type Config struct {
	// Dir is the directory the log file is written to.
	Dir string

	// Debug lowers the level to debug and enables caller annotations.
	Debug bool
}

// New builds (once) and returns the shared sugared logger. Subsequent
// calls return the same instance regardless of config.
func New(cfg Config) (*zap.SugaredLogger, error) {
	var err error
	once.Do(func() {
		instance, err = build(cfg)
	})
	if instance == nil && err == nil {
		return zap.NewNop().Sugar(), nil
	}
	return instance, err
}

func build(cfg Config) (*zap.SugaredLogger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(cfg.Dir, "deskwatch.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(f),
		level,
	)

	opts := []zap.Option{}
	if cfg.Debug {
		opts = append(opts, zap.AddCaller())
	}

	return zap.New(core, opts...).Sugar(), nil
}

// Nop returns a no-op sugared logger, useful as a default in tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
