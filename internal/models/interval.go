package models

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Interval — канонический таймфрейм ("1m", "15m", "1h", "1d").
type Interval string

var intervals = map[Interval]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// ParseInterval нормализует строку таймфрейма. "60m" и "1H" приводятся к "1h".
func ParseInterval(raw string) (Interval, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	switch s {
	case "60m", "60":
		s = "1h"
	case "240m", "240":
		s = "4h"
	case "d", "1440m":
		s = "1d"
	}
	iv := Interval(s)
	if _, ok := intervals[iv]; !ok {
		return "", errors.Errorf("unsupported interval %q", raw)
	}
	return iv, nil
}

// Duration — длительность свечи; 0 для неизвестного таймфрейма.
func (i Interval) Duration() time.Duration { return intervals[i] }

func (i Interval) String() string { return string(i) }
