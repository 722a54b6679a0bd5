// Package logging builds the zap logger and holds the canonical field helpers.
package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"prsheet/internal/structures"
)

// Canonical log field names.
const (
	KeyRunID      = "run_id"
	KeyPhase      = "phase"
	KeyRepository = "repository"
	KeySource     = "source"
	KeyDurationMS = "duration_ms"
	KeyRow        = "row"
)

func RunID(id string) zap.Field          { return zap.String(KeyRunID, id) }
func Phase(p string) zap.Field           { return zap.String(KeyPhase, p) }
func Repository(r string) zap.Field      { return zap.String(KeyRepository, r) }
func Source(s string) zap.Field          { return zap.String(KeySource, s) }
func Row(n int) zap.Field                { return zap.Int(KeyRow, n) }
func Duration(d time.Duration) zap.Field { return zap.Float64(KeyDurationMS, float64(d.Microseconds())/1000) }

// New builds a console logger on stderr and, when cfg.File is set, a JSON
// logger on a size-rotated file. verbose forces debug level.
func New(cfg structures.LoggingConfig, verbose bool) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
