package logx

import (
	"io"
	"os"

	"github.com/loan-orchestrator-poc/server/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var DefaultLoggerOpts = &LoggerOpts{
	Environment: core.Development,
}

type LoggerOpts struct {
	Environment core.Environment
	// File, when set, receives a copy of every log line in JSON and is rotated by size.
	File       string `envconfig:"LOG_FILE"`
	MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	MaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"14"`
}

func safe(otps ...LoggerOpts) *LoggerOpts {
	if len(otps) == 0 {
		return DefaultLoggerOpts
	}
	return &otps[0]
}

func Init(otps ...LoggerOpts) {
	opts := safe(otps...)

	var console io.Writer = os.Stderr
	level := zerolog.InfoLevel
	if !opts.Environment.IsProduction() {
		console = zerolog.NewConsoleWriter()
		level = zerolog.DebugLevel
	}

	out := console
	if opts.File != "" {
		out = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}

	ctx := zerolog.New(out).With().Timestamp()
	if !opts.Environment.IsProduction() {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger().Level(level)
}

// Disable silences all logging; used by tests that exercise noisy paths.
func Disable() {
	log.Logger = zerolog.Nop()
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Panic() *zerolog.Event {
	return log.Panic()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
