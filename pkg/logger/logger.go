package logger

import (
	"os"

	"reaction_timer_backend/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "reaction-timer"

// Log is a no-op logger until InitLogger runs, so packages can log safely in
// tests and tools that never initialize logging.
var Log = zap.NewNop()

func InitLogger(cfg *config.Config) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level, badLevel := resolveLevel(cfg)

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		),
	}
	if cfg.Log.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			fileWriter,
			level,
		))
	}

	Log = zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
		zap.Fields(zap.String("service", serviceName)),
	)

	if badLevel != "" {
		Log.Warn("Unknown log level, using default", zap.String("level", badLevel), zap.Stringer("using", level))
	}
}

// resolveLevel returns the configured level, or the server mode's default
// plus the rejected value when the configured one does not parse.
func resolveLevel(cfg *config.Config) (zapcore.Level, string) {
	level := zap.InfoLevel
	if cfg.Server.Mode == "debug" {
		level = zap.DebugLevel
	}
	if cfg.Log.Level == "" {
		return level, ""
	}
	parsed, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return level, cfg.Log.Level
	}
	return parsed, ""
}
