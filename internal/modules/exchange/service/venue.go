package service

import (
	"context"

	"github.com/pkg/errors"

	"pinbar_scanner/internal/models"
)

var (
	// ErrTransport — сеть, таймаут, не-2xx.
	ErrTransport = errors.New("exchange transport error")
	// ErrParse — битый ответ или ненулевой код биржи.
	ErrParse = errors.New("exchange payload error")
)

// Venue — REST и push-протокол одной биржи. Реализации независимы друг от друга.
type Venue interface {
	Name() string

	// Categories — категории каталога (bybit: linear/inverse, okx: SWAP/FUTURES).
	Categories() []string
	// Instruments — все инструменты категории; Active выставлен по статусу биржи.
	Instruments(ctx context.Context, category string) ([]models.SymbolDescriptor, error)
	// Klines — свечи по возрастанию времени.
	Klines(ctx context.Context, symbol string, interval models.Interval, limit int) ([]models.Candle, error)

	StreamURL() string
	// Ping — кадр keep-alive и его websocket message type.
	Ping() (messageType int, data []byte)
	// Route достаёт topic и payload из входящего кадра; ok=false для служебных кадров.
	Route(msg []byte) (topic string, payload []byte, ok bool)
	SubscribeRequest(topic string) ([]byte, error)
	// Streams — обслуживает ли настроенный поток kline этого символа.
	Streams(d models.SymbolDescriptor) bool
	KlineTopic(symbol string, interval models.Interval) string
	DecodeKlines(symbol string, interval models.Interval, payload []byte) ([]models.Candle, error)
}

func transportErr(format string, args ...any) error {
	return errors.Wrapf(ErrTransport, format, args...)
}

func parseErr(format string, args ...any) error {
	return errors.Wrapf(ErrParse, format, args...)
}
