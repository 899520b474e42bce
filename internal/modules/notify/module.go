package notify

import (
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"pinbar_scanner/internal/modules/config"
	"pinbar_scanner/internal/modules/metrics"
	"pinbar_scanner/internal/modules/notify/service"
)

// NewNotifier выбирает синк по notify.sink; пустое значение — первый настроенный
// (feishu, затем telegram), иначе лог.
func NewNotifier(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) (service.Notifier, error) {
	n := cfg.Notify
	sink := n.Sink
	if sink == "" {
		switch {
		case n.FeishuWebhook != "":
			sink = "feishu"
		case n.TelegramToken != "" && n.TelegramChatID != 0:
			sink = "telegram"
		default:
			sink = "log"
		}
	}

	var next service.Notifier
	switch sink {
	case "feishu":
		next = service.NewFeishu(n.FeishuWebhook, n.Timeout)
	case "telegram":
		tg, err := service.NewTelegram(n.TelegramToken, n.TelegramChatID, "", &http.Client{Timeout: n.Timeout})
		if err != nil {
			return nil, err
		}
		next = tg
	default:
		next = service.NewLog(log)
	}
	log.Info("notification sink selected", zap.String("sink", next.Name()))
	return service.NewInstrumented(next, m), nil
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			NewNotifier,
		),
	)
}
