package service

import (
	"context"

	"github.com/pkg/errors"

	"pinbar_scanner/internal/models"
	"pinbar_scanner/internal/modules/metrics"
)

// ErrNotConfigured — у синка нет адреса или токена.
var ErrNotConfigured = errors.New("notification sink not configured")

// Notifier доставляет пачку сигналов одним сообщением. Пустая пачка — ничего не шлём.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, signals []models.Signal) error
}

// Instrumented считает доставки в notify_deliveries_total.
type Instrumented struct {
	next Notifier
	m    *metrics.Metrics
}

func NewInstrumented(next Notifier, m *metrics.Metrics) *Instrumented {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Instrumented{next: next, m: m}
}

func (i *Instrumented) Name() string { return i.next.Name() }

func (i *Instrumented) Notify(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	err := i.next.Notify(ctx, signals)
	result := "ok"
	switch {
	case errors.Is(err, ErrNotConfigured):
		result = "not_configured"
	case err != nil:
		result = "error"
	}
	i.m.NotifyDeliveries.WithLabelValues(i.next.Name(), result).Inc()
	return err
}
