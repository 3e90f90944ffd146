package repository

import (
	"context"

	"StratGov/internal/domain/models"
	"StratGov/pkg/logger"
)

// LogSink writes alerts to the structured log. Default sink for
// development and for deployments without a broker.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, a models.Alert) error {
	fields := []logger.Field{
		logger.String("alert_id", a.ID),
		logger.String("severity", string(a.Severity)),
		logger.String("title", a.Title),
		logger.String("message", a.Message),
	}
	if a.HypothesisID != "" {
		fields = append(fields, logger.String("hypothesis_id", a.HypothesisID))
	}
	if a.ConstraintID != "" {
		fields = append(fields, logger.String("constraint_id", a.ConstraintID))
	}
	if a.RecommendedAction != "" {
		fields = append(fields, logger.String("recommended_action", a.RecommendedAction))
	}

	switch a.Severity {
	case models.SeverityCritical:
		s.log.Error("alert", fields...)
	case models.SeverityWarning:
		s.log.Warn("alert", fields...)
	default:
		s.log.Info("alert", fields...)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
