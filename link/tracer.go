package link

import (
	"fmt"
	"log/slog"
)

// Tracer is the diagnostic sink the core reports to. It mirrors the
// three increasing verbosities of the original driver's trace sink:
// an unconditional error report, a trace line noting retryable
// faults, and a debug dump of raw frame bytes.
type Tracer interface {
	// Errorf reports a fault that defeated the retry budget.
	Errorf(format string, args ...any)

	// Tracef reports a recoverable fault or state transition worth
	// following without the byte-level detail of Debugf.
	Tracef(format string, args ...any)

	// Debugf reports byte-level detail, such as raw frame hexdumps.
	Debugf(format string, args ...any)
}

type nopTracer struct{}

func (nopTracer) Errorf(string, ...any) {}
func (nopTracer) Tracef(string, ...any) {}
func (nopTracer) Debugf(string, ...any) {}

// SlogTracer adapts a *slog.Logger to the Tracer interface, mapping
// the three verbosities onto slog.LevelError, slog.LevelInfo and
// slog.LevelDebug respectively. A nil Logger falls back to
// slog.Default().
type SlogTracer struct {
	Logger *slog.Logger
}

func (t SlogTracer) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func (t SlogTracer) Errorf(format string, args ...any) {
	t.logger().Error(fmt.Sprintf(format, args...))
}

func (t SlogTracer) Tracef(format string, args ...any) {
	t.logger().Info(fmt.Sprintf(format, args...))
}

func (t SlogTracer) Debugf(format string, args ...any) {
	t.logger().Debug(fmt.Sprintf(format, args...))
}
