// Package logging builds the daemon's logr.Logger: human-readable console
// output teed with a JSON file log rotated by lumberjack. The library side
// only ever sees the logr.Logger interface.
package logging

import (
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func Initialize(console io.Writer, logfile string, debug bool) logr.Logger {
	consoleLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		consoleLevel = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.EncodeTime = zapcore.TimeEncoderOfLayout("02/01 15:04:05")

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(console), consoleLevel),
	}

	if logfile != "" {
		rotated := &lumberjack.Logger{
			Filename:   logfile,
			MaxSize:    10, // MB
			MaxBackups: 3,
		}
		fileConfig := zap.NewDevelopmentEncoderConfig()
		cores = append(cores,
			zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), zapcore.AddSync(rotated), zap.NewAtomicLevelAt(zapcore.DebugLevel)))
	}

	return zapr.NewLogger(zap.New(zapcore.NewTee(cores...)))
}
