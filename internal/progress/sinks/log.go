package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/sitelens/internal/progress"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// LogSink mirrors progress events into the process log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event with structured fields. Job log lines keep their
// severity; warnings and errors map to the matching zap levels.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageLog:
			fields = append(fields, zap.String("severity", string(evt.Severity)))
			s.logger.Check(levelFor(evt.Severity), evt.Message).Write(fields...)
			continue
		case progress.StageAcquisition:
			fields = append(fields, zap.String("strategy", evt.Strategy), zap.Bool("partial", evt.Partial))
		case progress.StageAssets:
			fields = append(fields, zap.Int("attempted", evt.Attempted), zap.Int("persisted", evt.Persisted))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(sev scrape.Severity) zapcore.Level {
	switch sev {
	case scrape.SeverityWarning:
		return zapcore.WarnLevel
	case scrape.SeverityError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
