package service

import (
	"sync"

	"go.uber.org/zap"

	"pinbar_scanner/internal/models"
	stream "pinbar_scanner/internal/modules/stream/service"
)

// Streamer — регистрация подписки на клиенте потока.
type Streamer interface {
	Subscribe(topic string, h stream.Handler) error
}

// KlineDecoder — формат kline-топиков конкретной биржи.
type KlineDecoder interface {
	Streams(d models.SymbolDescriptor) bool
	KlineTopic(symbol string, interval models.Interval) string
	DecodeKlines(symbol string, interval models.Interval, payload []byte) ([]models.Candle, error)
}

// Subscriber подписывает каждый активный символ на kline-топик и кладёт push в кэш.
type Subscriber struct {
	client   Streamer
	dec      KlineDecoder
	cache    *stream.Cache
	interval models.Interval
	log      *zap.Logger

	mu   sync.Mutex
	done bool
}

func NewSubscriber(client Streamer, dec KlineDecoder, cache *stream.Cache, interval models.Interval, log *zap.Logger) *Subscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{
		client:   client,
		dec:      dec,
		cache:    cache,
		interval: interval,
		log:      log.Named("subscriber"),
	}
}

// SubscribeAll выполняется один раз за жизнь процесса; повторные вызовы — no-op.
// Символы, которых поток не отдаёт, остаются на REST.
func (s *Subscriber) SubscribeAll(symbols []models.SymbolDescriptor) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || len(symbols) == 0 {
		return 0
	}

	n, skipped := 0, 0
	for _, d := range symbols {
		if !s.dec.Streams(d) {
			skipped++
			continue
		}
		topic := s.dec.KlineTopic(d.Symbol, s.interval)
		if err := s.client.Subscribe(topic, s.handler(d.Symbol)); err != nil {
			s.log.Warn("subscribe failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		n++
	}
	s.done = true
	s.log.Info("kline topics subscribed",
		zap.Int("topics", n),
		zap.Int("rest_only", skipped),
		zap.String("interval", s.interval.String()),
	)
	return n
}

func (s *Subscriber) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Subscriber) handler(symbol string) stream.Handler {
	return func(payload []byte) {
		candles, err := s.dec.DecodeKlines(symbol, s.interval, payload)
		if err != nil {
			s.log.Debug("bad kline push", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		s.cache.Replace(symbol, candles)
	}
}
