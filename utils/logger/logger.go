package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	initOnce sync.Once
	logger   *zap.Logger
	root     *zap.SugaredLogger
	atom     zap.AtomicLevel
)

// InitLogger builds the process-wide JSON logger. Safe to call more than once.
func InitLogger() {
	initOnce.Do(func() {
		atom = zap.NewAtomicLevel()
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.RFC3339TimeEncoder

		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(os.Stderr),
			atom,
		))
		root = logger.Sugar()
	})
}

func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// NewLogger returns a named child of the root logger.
func NewLogger(name string) *zap.SugaredLogger {
	InitLogger()
	return root.Named(name)
}

func SetDebug(enable bool) {
	InitLogger()
	if enable {
		atom.SetLevel(zap.DebugLevel)
		return
	}
	atom.SetLevel(zap.InfoLevel)
}

// SetLevel accepts zap level names ("debug", "info", "warn", "error"); unknown names keep info.
func SetLevel(level string) {
	InitLogger()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		lvl = zapcore.InfoLevel
	}
	atom.SetLevel(lvl)
}
