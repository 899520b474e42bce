package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pinbar_scanner/internal/models"
)

func title(signals []models.Signal) string {
	if len(signals) == 1 {
		return fmt.Sprintf("%s - %s", signals[0].Direction, signals[0].Symbol)
	}
	return fmt.Sprintf("%d signals", len(signals))
}

// details — строки карточки по одному сигналу.
func details(s models.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Symbol**: %s\n", s.Symbol)
	fmt.Fprintf(&b, "**Price**: %s\n", strconv.FormatFloat(s.ReferencePrice, 'f', -1, 64))
	fmt.Fprintf(&b, "**Volume ratio**: %s\n", s.VolumeRatio.StringFixed(2))
	fmt.Fprintf(&b, "**Contract type**: %s\n", orDash(string(s.ContractType)))
	fmt.Fprintf(&b, "**Underlying**: %s\n", orDash(s.Underlying))
	fmt.Fprintf(&b, "**Interval**: %s", orDash(s.Interval.String()))
	return b.String()
}

func signalTime(signals []models.Signal) string {
	latest := signals[0].EvaluatedAt
	for _, s := range signals[1:] {
		if s.EvaluatedAt.After(latest) {
			latest = s.EvaluatedAt
		}
	}
	return latest.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func emoji(d models.Direction) string {
	if d == models.DirectionBullish {
		return "🟢"
	}
	return "🔴"
}
