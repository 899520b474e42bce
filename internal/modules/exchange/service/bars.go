package service

import (
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"pinbar_scanner/internal/models"
)

// okxBar: "1h" -> "1H", "1d" -> "1D"; минуты как есть.
func okxBar(iv models.Interval) (string, error) {
	switch iv {
	case "1m", "3m", "5m", "15m", "30m":
		return string(iv), nil
	case "1h":
		return "1H", nil
	case "2h":
		return "2H", nil
	case "4h":
		return "4H", nil
	case "6h":
		return "6H", nil
	case "12h":
		return "12H", nil
	case "1d":
		return "1D", nil
	}
	return "", errors.Errorf("unsupported timeframe for OKX bar: %q", iv)
}

// bybitInterval: минуты числом, день — "D".
func bybitInterval(iv models.Interval) (string, error) {
	d := iv.Duration()
	switch {
	case d == 0:
		return "", errors.Errorf("unsupported timeframe for Bybit: %q", iv)
	case d == 24*time.Hour:
		return "D", nil
	default:
		return strconv.Itoa(int(d / time.Minute)), nil
	}
}

func parseFloats(ss ...string) ([]float64, error) {
	out := make([]float64, len(ss))
	for i, s := range ss {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// candleFromRow: [ts, o, h, l, c, vol, ...] строками, ts в мс.
func candleFromRow(symbol string, tf time.Duration, row []string) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, errors.Errorf("short row: %d fields", len(row))
	}
	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Candle{}, errors.Wrap(err, "ts")
	}
	v, err := parseFloats(row[1], row[2], row[3], row[4], row[5])
	if err != nil {
		return models.Candle{}, errors.Wrap(err, "ohlcv")
	}
	start := time.UnixMilli(tsMs).UTC()
	c := models.Candle{
		Symbol:    symbol,
		OpenTime:  start,
		CloseTime: start.Add(tf),
		Open:      v[0],
		High:      v[1],
		Low:       v[2],
		Close:     v[3],
		Volume:    v[4],
	}
	return c, c.Validate()
}

// reverseRows — биржи отдают newest-first, разворачиваем в хронологию.
func reverseRows(symbol string, tf time.Duration, rows [][]string) ([]models.Candle, int) {
	out := make([]models.Candle, 0, len(rows))
	skipped := 0
	for i := len(rows) - 1; i >= 0; i-- {
		c, err := candleFromRow(symbol, tf, rows[i])
		if err != nil {
			skipped++
			continue
		}
		if n := len(out); n > 0 && !c.OpenTime.After(out[n-1].OpenTime) {
			skipped++
			continue
		}
		out = append(out, c)
	}
	return out, skipped
}

func sortCandles(cs []models.Candle) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].OpenTime.Before(cs[j].OpenTime) })
}
