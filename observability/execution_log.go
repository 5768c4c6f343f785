package observability

import (
	"bytes"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ExecutionLog is the append-only text record of one task run. It is fed by a
// zap core and read back once at shutdown to be persisted.
type ExecutionLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewExecutionLog creates an empty log.
func NewExecutionLog() *ExecutionLog {
	return &ExecutionLog{}
}

// Write appends p. It never truncates or rewrites earlier content.
func (l *ExecutionLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

// Sync is a no-op; the buffer is always current.
func (l *ExecutionLog) Sync() error {
	return nil
}

// Bytes returns a copy of everything written so far.
func (l *ExecutionLog) Bytes() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.buf.Bytes()...)
}

// Len is the number of bytes written so far.
func (l *ExecutionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Len()
}

// Core returns a plain-text zap core writing into the log at the given level.
func (l *ExecutionLog) Core(level zapcore.LevelEnabler) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = "stacktrace"
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(l), level)
}

// Logger returns a logger that writes only into the execution log.
func (l *ExecutionLog) Logger() *zap.Logger {
	return zap.New(l.Core(zap.DebugLevel))
}
