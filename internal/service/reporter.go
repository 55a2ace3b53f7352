package service

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Outcome levels mirror zap levels.
const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

// Components emitting outcomes.
const (
	ComponentLedger    = "ledger"
	ComponentBroadcast = "broadcast"
	ComponentSync      = "sync"
)

// Outcome is a single observable result of a reconciliation step.
type Outcome struct {
	Level     zapcore.Level
	Component string
	Action    string
	Subject   string
	Message   string
	Err       error
}

// Reporter receives outcomes for one run. A reporter is created per run and discarded after.
type Reporter interface {
	Report(outcome Outcome)
}

type nopReporter struct{}

func (nopReporter) Report(Outcome) {}

// NopReporter discards every outcome.
func NopReporter() Reporter { return nopReporter{} }

type zapReporter struct {
	logger *zap.Logger
}

// NewZapReporter writes outcomes to the logger at their own level.
func NewZapReporter(logger *zap.Logger) Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapReporter{logger: logger}
}

func (r *zapReporter) Report(o Outcome) {
	fields := []zap.Field{
		zap.String("component", o.Component),
		zap.String("action", o.Action),
	}
	if o.Subject != "" {
		fields = append(fields, zap.String("subject", o.Subject))
	}
	if o.Err != nil {
		fields = append(fields, zap.Error(o.Err))
	}
	if ce := r.logger.Check(o.Level, o.Message); ce != nil {
		ce.Write(fields...)
	}
}

// RunRecorder keeps the outcomes of a run for its report.
type RunRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

// NewRunRecorder constructs an empty recorder.
func NewRunRecorder() *RunRecorder {
	return &RunRecorder{}
}

// Report stores the outcome.
func (r *RunRecorder) Report(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

// Outcomes returns a copy of everything recorded so far.
func (r *RunRecorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Warnings renders warning and error outcomes as messages.
func (r *RunRecorder) Warnings() []string {
	var out []string
	for _, o := range r.Outcomes() {
		if o.Level < LevelWarn {
			continue
		}
		msg := o.Component + " " + o.Action
		if o.Subject != "" {
			msg += " " + o.Subject
		}
		msg += ": " + o.Message
		if o.Err != nil {
			msg += ": " + o.Err.Error()
		}
		out = append(out, msg)
	}
	return out
}

// Count returns the number of outcomes matching the component, action and level.
func (r *RunRecorder) Count(component, action string, level zapcore.Level) int {
	n := 0
	for _, o := range r.Outcomes() {
		if o.Component == component && o.Action == action && o.Level == level {
			n++
		}
	}
	return n
}

type multiReporter []Reporter

// NewMultiReporter fans outcomes out to every non-nil reporter.
func NewMultiReporter(reporters ...Reporter) Reporter {
	out := make(multiReporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiReporter) Report(o Outcome) {
	for _, r := range m {
		r.Report(o)
	}
}

func reporterOrNop(r Reporter) Reporter {
	if r == nil {
		return NopReporter()
	}
	return r
}
