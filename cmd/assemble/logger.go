package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger creates a logger based on global flags loggerMode (dev|plain) and debug.
// dev: console encoder with development config
// plain: minimal log format "LEVEL\tmessage"
func newLogger() *zap.Logger {
	enabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return debug || lvl != zapcore.DebugLevel })
	switch loggerMode {
	case "plain":
		encCfg := zapcore.EncoderConfig{LevelKey: "level", MessageKey: "msg", EncodeLevel: zapcore.CapitalLevelEncoder}
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), enabler)
		return zap.New(core)
	case "dev":
		fallthrough
	default:
		consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		core := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), enabler)
		return zap.New(core)
	}
}
