package service

import (
	"github.com/shopspring/decimal"

	"pinbar_scanner/internal/models"
)

const (
	DefaultLookback        = 10
	DefaultWickRatio       = 1.5
	DefaultVolumeThreshold = 1.5
	DefaultBodyEpsilon     = 1e-4
)

type Config struct {
	Lookback        int     // сколько предыдущих свечей в среднем объёме
	WickRatio       float64 // (верхняя+нижняя тень)/тело
	VolumeThreshold float64 // объём последней / средний объём
	BodyEpsilon     float64 // тело меньше — считаем что тела нет
}

func DefaultConfig() Config {
	return Config{
		Lookback:        DefaultLookback,
		WickRatio:       DefaultWickRatio,
		VolumeThreshold: DefaultVolumeThreshold,
		BodyEpsilon:     DefaultBodyEpsilon,
	}
}

// PinBar — пин-бар + всплеск объёма на последней свече. Без состояния, без I/O.
type PinBar struct {
	cfg Config
}

func NewPinBar(cfg Config) *PinBar {
	def := DefaultConfig()
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.WickRatio <= 0 {
		cfg.WickRatio = def.WickRatio
	}
	if cfg.VolumeThreshold <= 0 {
		cfg.VolumeThreshold = def.VolumeThreshold
	}
	if cfg.BodyEpsilon <= 0 {
		cfg.BodyEpsilon = def.BodyEpsilon
	}
	return &PinBar{cfg: cfg}
}

func (p *PinBar) Name() string { return "pinbar" }

func (p *PinBar) Config() Config { return p.cfg }

// Evaluate проверяет последнюю свечу последовательности (по возрастанию времени).
// ok==false — сигнала нет, в том числе при недостаточной истории (len <= Lookback).
func (p *PinBar) Evaluate(candles []models.Candle) (sig models.Signal, ok bool) {
	if len(candles) <= p.cfg.Lookback {
		return models.Signal{}, false
	}

	last := candles[len(candles)-1]
	if !p.wickDominant(last) {
		return models.Signal{}, false
	}

	avg := averageVolume(candles[len(candles)-1-p.cfg.Lookback : len(candles)-1])
	if avg <= 0 || last.Volume < avg*p.cfg.VolumeThreshold {
		return models.Signal{}, false
	}

	dir := models.DirectionBearish
	if last.Bullish() {
		dir = models.DirectionBullish
	}

	return models.Signal{
		Direction:      dir,
		EvaluatedAt:    last.CloseTime,
		Symbol:         last.Symbol,
		ReferencePrice: last.Close,
		Volume:         last.Volume,
		VolumeRatio:    decimal.NewFromFloat(last.Volume / avg).Round(2),
	}, true
}

// IsPinBar — тест доминирования теней. Почти нулевое тело (доджи) тест не проходит.
func (p *PinBar) IsPinBar(c models.Candle) bool { return p.wickDominant(c) }

func (p *PinBar) wickDominant(c models.Candle) bool {
	body := c.Body()
	if body < p.cfg.BodyEpsilon {
		return false
	}
	return (c.UpperWick()+c.LowerWick())/body >= p.cfg.WickRatio
}

func averageVolume(xs []models.Candle) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, c := range xs {
		sum += c.Volume
	}
	return sum / float64(len(xs))
}
