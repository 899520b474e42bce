package service

import (
	"context"

	"go.uber.org/zap"

	"pinbar_scanner/internal/models"
)

// Log — запасной синк: сигналы только в лог.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("signals")}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Notify(_ context.Context, signals []models.Signal) error {
	for _, s := range signals {
		l.log.Info("signal",
			zap.String("symbol", s.Symbol),
			zap.String("direction", string(s.Direction)),
			zap.Float64("price", s.ReferencePrice),
			zap.String("volumeRatio", s.VolumeRatio.StringFixed(2)),
			zap.String("contractType", string(s.ContractType)),
			zap.Time("evaluatedAt", s.EvaluatedAt),
		)
	}
	return nil
}
