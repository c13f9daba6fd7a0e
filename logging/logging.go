package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide logger. It is a no-op until Init runs, so
// packages may log before (or without) configuration.
var Logger *zap.SugaredLogger

var level = zap.NewAtomicLevelAt(zap.InfoLevel)

func init() {
	Logger = zap.NewNop().Sugar()
}

// Config controls the global logger.
type Config struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Init replaces the global logger. Output goes to stderr and, when File is
// set, to a size-rotated file as JSON.
func Init(cfg Config) error {
	if err := SetLevel(cfg.Level); err != nil {
		return err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEncoder zapcore.Encoder
	if cfg.JSON {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		devConfig := encoderConfig
		devConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(devConfig)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}

	Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar()
	return nil
}

// SetLevel changes the level of every logger built by Init, including
// loggers already handed out. An empty name means info.
func SetLevel(name string) error {
	if strings.TrimSpace(name) == "" {
		name = "info"
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

func Level() string {
	return level.Level().String()
}

// ComponentLogger returns a named child of the global logger tagged with
// the component field. Call it after Init; the result does not follow later
// calls to Init.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name).With(FieldComponent, name)
}

func Sync() {
	_ = Logger.Sync()
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
