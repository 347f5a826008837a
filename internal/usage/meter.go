package usage

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tourcast/internal/domain"
	"tourcast/internal/infra"
	"tourcast/internal/sqlinline"
)

// Cost model: text generation is priced per 1k tokens with roughly four
// characters per token, speech per 1k input characters.
const (
	textCostPer1KTokens  = 0.002
	audioCostPer1KChars  = 0.015
	charsPerToken        = 4
	durableInsertTimeout = 5 * time.Second
)

// Window aggregates invocations over a rolling calendar period.
type Window struct {
	Start       time.Time `json:"start"`
	Calls       int       `json:"calls"`
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	InputChars  int       `json:"input_chars"`
	OutputChars int       `json:"output_chars"`
	CostUSD     float64   `json:"cost_usd"`
}

// Summary is the caller-facing usage report.
type Summary struct {
	Day              Window  `json:"day"`
	Month            Window  `json:"month"`
	MonthlyBudgetUSD float64 `json:"monthly_budget_usd"`
	Throttled        bool    `json:"throttled"`
}

// Meter tracks provider invocations in daily and monthly windows and
// optionally mirrors each record into the usage_events table. Metering never
// fails a generation: durable write errors are logged and dropped.
type Meter struct {
	mu     sync.Mutex
	day    Window
	month  Window
	runner infra.SQLExecutor
	logger infra.Logger
	now    func() time.Time
	budget float64
}

// Options configures the meter. Runner may be nil for in-memory metering.
type Options struct {
	Runner           infra.SQLExecutor
	Logger           *infra.Logger
	MonthlyBudgetUSD float64
}

func NewMeter(opts Options) *Meter {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Meter{
		runner: opts.Runner,
		logger: logger,
		now:    time.Now,
		budget: opts.MonthlyBudgetUSD,
	}
}

// Record ingests one provider invocation.
func (m *Meter) Record(rec domain.InvocationRecord) {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = m.now()
	}
	cost := invocationCost(rec)

	m.mu.Lock()
	m.roll(ts)
	for _, w := range []*Window{&m.day, &m.month} {
		w.Calls++
		if rec.Success {
			w.Successes++
		} else {
			w.Failures++
		}
		w.InputChars += rec.InputChars
		w.OutputChars += rec.OutputChars
		w.CostUSD += cost
	}
	m.mu.Unlock()

	if m.runner == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), durableInsertTimeout)
	defer cancel()
	_, err := m.runner.Exec(ctx, sqlinline.QInsertUsageEvent,
		rec.Provider, string(rec.Operation), rec.InputChars, rec.OutputChars,
		rec.Latency.Milliseconds(), rec.Success, cost, ts.UTC())
	if err != nil {
		m.logger.Warn().Err(err).Str("provider", rec.Provider).Msg("usage: durable record failed, dropping")
	}
}

// Hydrate seeds the windows from the usage_events table so budget enforcement
// survives restarts. Failures are logged and leave the windows empty.
func (m *Meter) Hydrate(ctx context.Context) {
	if m.runner == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roll(m.now())
	for _, w := range []*Window{&m.day, &m.month} {
		row := m.runner.QueryRow(ctx, sqlinline.QSelectUsageTotalsSince, w.Start)
		var successes, failures, inChars, outChars int
		var cost float64
		if err := row.Scan(&successes, &failures, &inChars, &outChars, &cost); err != nil {
			m.logger.Warn().Err(err).Msg("usage: window hydrate failed")
			return
		}
		w.Calls = successes + failures
		w.Successes = successes
		w.Failures = failures
		w.InputChars = inChars
		w.OutputChars = outChars
		w.CostUSD = cost
	}
}

// ShouldThrottle reports whether the month's accrued cost has reached the
// configured budget. Advisory: callers reject new work, in-flight jobs finish.
func (m *Meter) ShouldThrottle() bool {
	if m.budget <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roll(m.now())
	return m.month.CostUSD >= m.budget
}

// Summarize returns the current windows.
func (m *Meter) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roll(m.now())
	return Summary{
		Day:              m.day,
		Month:            m.month,
		MonthlyBudgetUSD: m.budget,
		Throttled:        m.budget > 0 && m.month.CostUSD >= m.budget,
	}
}

// roll resets a window when the timestamp has moved past its period.
// Callers hold the mutex.
func (m *Meter) roll(ts time.Time) {
	ts = ts.UTC()
	dayStart := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	if !m.day.Start.Equal(dayStart) {
		m.day = Window{Start: dayStart}
	}
	if !m.month.Start.Equal(monthStart) {
		m.month = Window{Start: monthStart}
	}
}

// invocationCost prices a successful call; failures cost nothing.
func invocationCost(rec domain.InvocationRecord) float64 {
	if !rec.Success {
		return 0
	}
	switch rec.Operation {
	case domain.OperationText:
		tokens := float64(rec.InputChars+rec.OutputChars) / charsPerToken
		return tokens / 1000 * textCostPer1KTokens
	case domain.OperationAudio:
		return float64(rec.InputChars) / 1000 * audioCostPer1KChars
	default:
		return 0
	}
}
