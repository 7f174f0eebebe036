package httpapi

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rpattn/trialnotes/internal/derive"
	"github.com/rpattn/trialnotes/internal/logger"
)

// LogNotifier reports derivation problems through the request logger, so
// they carry the request id of the call that surfaced them.
type LogNotifier struct {
	fallback *logger.Logger
}

// NewLogNotifier creates a notifier logging to the context logger, or to
// fallback when the context has none.
func NewLogNotifier(fallback *logger.Logger) *LogNotifier {
	if fallback == nil {
		fallback = logger.Nop()
	}
	return &LogNotifier{fallback: fallback}
}

// DerivationReport implements query.Notifier.
func (n *LogNotifier) DerivationReport(ctx context.Context, report derive.Report) {
	log := logger.FromContext(ctx)
	if log.GetLevel() == zerolog.Disabled {
		log = n.fallback
	}

	if len(report.Skipped) > 0 {
		log.Warn().
			Str("func", "LogNotifier.DerivationReport").
			Strs("rules", report.Skipped).
			Msg("derive rules skipped: unknown function")
	}
	for _, f := range report.Failures {
		log.Warn().
			Str("func", "LogNotifier.DerivationReport").
			Str("rule", f.Rule).
			Int("rows", f.Count).
			AnErr("first_error", f.First).
			Msg("derive rule failed on some rows")
	}
}
