package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction — направление сигнала.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// Signal — найденный пин-бар с объёмом. Создаётся детектором, дополняется оркестратором
// метаданными контракта и уходит в нотификатор ровно один раз.
type Signal struct {
	Direction      Direction       `json:"direction"`
	EvaluatedAt    time.Time       `json:"evaluatedAt"`
	Symbol         string          `json:"symbol"`
	Interval       Interval        `json:"interval,omitempty"`
	ReferencePrice float64         `json:"price"`
	Volume         float64         `json:"volume"`
	VolumeRatio    decimal.Decimal `json:"volumeRatio"`

	ContractType ContractType `json:"contractType,omitempty"`
	Underlying   string       `json:"underlying,omitempty"`
	QuoteAsset   string       `json:"quoteAsset,omitempty"`
}

// Enrich копирует метаданные контракта из дескриптора.
func (s Signal) Enrich(d SymbolDescriptor) Signal {
	s.ContractType = d.ContractType
	s.Underlying = d.Underlying
	s.QuoteAsset = d.QuoteAsset
	return s
}
