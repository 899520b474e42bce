package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"pinbar_scanner/internal/models"
)

const (
	bybitInstrumentsPath = "/v5/market/instruments-info"
	bybitKlinePath       = "/v5/market/kline"
	bybitPageLimit       = "1000"
	bybitMaxPages        = 20
)

type BybitConfig struct {
	RestURL    string
	StreamURL  string
	Categories []string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
}

// Bybit — v5 REST + public stream одной категории (linear по умолчанию).
type Bybit struct {
	cfg  BybitConfig
	http *Transport

	mu       sync.RWMutex
	category map[string]string // symbol -> category из последнего каталога
}

func NewBybit(cfg BybitConfig) *Bybit {
	if len(cfg.Categories) == 0 {
		cfg.Categories = []string{"linear", "inverse"}
	}
	var auth Authenticator
	if cfg.APIKey != "" && cfg.APISecret != "" {
		auth = BybitSigner{APIKey: cfg.APIKey, APISecret: cfg.APISecret}
	}
	return &Bybit{
		cfg:      cfg,
		http:     NewTransport(cfg.RestURL, cfg.Timeout, auth),
		category: make(map[string]string),
	}
}

func (b *Bybit) Name() string { return "bybit" }

func (b *Bybit) Categories() []string { return b.cfg.Categories }

type bybitInstrumentsResp struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category       string `json:"category"`
		NextPageCursor string `json:"nextPageCursor"`
		List           []struct {
			Symbol       string `json:"symbol"`
			ContractType string `json:"contractType"`
			Status       string `json:"status"`
			BaseCoin     string `json:"baseCoin"`
			QuoteCoin    string `json:"quoteCoin"`
			PriceFilter  struct {
				MinPrice string `json:"minPrice"`
				MaxPrice string `json:"maxPrice"`
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
		} `json:"list"`
	} `json:"result"`
}

// Instruments — постранично по курсору; Active = status "Trading".
func (b *Bybit) Instruments(ctx context.Context, category string) ([]models.SymbolDescriptor, error) {
	var out []models.SymbolDescriptor
	cursor := ""
	for page := 0; page < bybitMaxPages; page++ {
		q := url.Values{}
		q.Set("category", category)
		q.Set("limit", bybitPageLimit)
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		body, err := b.http.Get(ctx, bybitInstrumentsPath, q)
		if err != nil {
			return nil, err
		}
		var r bybitInstrumentsResp
		if err := sonic.Unmarshal(body, &r); err != nil {
			return nil, parseErr("bybit instruments %s: %v", category, err)
		}
		if r.RetCode != 0 {
			return nil, parseErr("bybit instruments %s: retCode=%d msg=%s", category, r.RetCode, r.RetMsg)
		}

		b.mu.Lock()
		for _, it := range r.Result.List {
			b.category[it.Symbol] = category
		}
		b.mu.Unlock()

		for _, it := range r.Result.List {
			tick, _ := strconv.ParseFloat(it.PriceFilter.TickSize, 64)
			minPx, _ := strconv.ParseFloat(it.PriceFilter.MinPrice, 64)
			maxPx, _ := strconv.ParseFloat(it.PriceFilter.MaxPrice, 64)
			out = append(out, models.SymbolDescriptor{
				Symbol:       it.Symbol,
				ContractType: models.ContractType(category),
				Underlying:   it.BaseCoin,
				QuoteAsset:   it.QuoteCoin,
				Active:       it.Status == "Trading",
				TickSize:     tick,
				MinPrice:     minPx,
				MaxPrice:     maxPx,
			})
		}

		cursor = r.Result.NextPageCursor
		if cursor == "" {
			break
		}
	}
	return out, nil
}

// Klines: result.list — newest-first [start, o, h, l, c, volume, turnover].
func (b *Bybit) Klines(ctx context.Context, symbol string, interval models.Interval, limit int) ([]models.Candle, error) {
	iv, err := bybitInterval(interval)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("category", b.categoryOf(symbol))
	q.Set("symbol", symbol)
	q.Set("interval", iv)
	q.Set("limit", strconv.Itoa(limit))

	body, err := b.http.Get(ctx, bybitKlinePath, q)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	if code := res.Get("retCode"); !code.Exists() || code.Int() != 0 {
		return nil, parseErr("bybit kline %s: retCode=%s msg=%s", symbol, code.Raw, res.Get("retMsg").String())
	}
	list := res.Get("result.list")
	if !list.IsArray() {
		return nil, parseErr("bybit kline %s: no result.list", symbol)
	}

	rows := make([][]string, 0, len(list.Array()))
	list.ForEach(func(_, row gjson.Result) bool {
		fields := make([]string, 0, 7)
		row.ForEach(func(_, v gjson.Result) bool {
			fields = append(fields, v.String())
			return true
		})
		rows = append(rows, fields)
		return true
	})

	candles, _ := reverseRows(symbol, interval.Duration(), rows)
	if len(rows) > 0 && len(candles) == 0 {
		return nil, parseErr("bybit kline %s: no valid rows", symbol)
	}
	return candles, nil
}

// categoryOf: категория из каталога; символ вне каталога — по суффиксу (BTCUSD — inverse).
func (b *Bybit) categoryOf(symbol string) string {
	b.mu.RLock()
	cat, ok := b.category[symbol]
	b.mu.RUnlock()
	if ok {
		return cat
	}
	if strings.HasSuffix(symbol, "USD") {
		return string(models.ContractInverse)
	}
	return string(models.ContractLinear)
}

func (b *Bybit) StreamURL() string { return b.cfg.StreamURL }

// Streams: публичный поток Bybit обслуживает одну категорию, она — последний сегмент пути
// (/v5/public/linear). URL без категории не фильтрует.
func (b *Bybit) Streams(d models.SymbolDescriptor) bool {
	u, err := url.Parse(b.cfg.StreamURL)
	if err != nil {
		return true
	}
	seg := u.Path[strings.LastIndex(u.Path, "/")+1:]
	switch seg {
	case "linear", "inverse", "spot", "option":
		cat := string(d.ContractType)
		if cat == "" {
			cat = b.categoryOf(d.Symbol)
		}
		return seg == cat
	default:
		return true
	}
}

func (b *Bybit) Ping() (int, []byte) {
	return websocket.TextMessage, []byte(`{"op":"ping"}`)
}

// Route: push-кадры несут "topic"; ответы на ping/subscribe — нет.
func (b *Bybit) Route(msg []byte) (string, []byte, bool) {
	if !gjson.ValidBytes(msg) {
		return "", nil, false
	}
	topic := gjson.GetBytes(msg, "topic")
	if !topic.Exists() || topic.String() == "" {
		return "", nil, false
	}
	return topic.String(), []byte(gjson.GetBytes(msg, "data").Raw), true
}

func (b *Bybit) SubscribeRequest(topic string) ([]byte, error) {
	return sonic.Marshal(map[string]any{
		"op":   "subscribe",
		"args": []string{topic},
	})
}

// KlineTopic: "kline.15.BTCUSDT".
func (b *Bybit) KlineTopic(symbol string, interval models.Interval) string {
	iv, err := bybitInterval(interval)
	if err != nil {
		iv = strings.TrimSuffix(string(interval), "m")
	}
	return "kline." + iv + "." + symbol
}

type bybitKlinePush struct {
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"`
}

// DecodeKlines — payload из push-кадра (массив объектов), по возрастанию start.
func (b *Bybit) DecodeKlines(symbol string, interval models.Interval, payload []byte) ([]models.Candle, error) {
	var items []bybitKlinePush
	if err := sonic.Unmarshal(payload, &items); err != nil {
		return nil, parseErr("bybit push %s: %v", symbol, err)
	}
	tf := interval.Duration()

	out := make([]models.Candle, 0, len(items))
	for _, it := range items {
		v, err := parseFloats(it.Open, it.High, it.Low, it.Close, it.Volume)
		if err != nil {
			return nil, parseErr("bybit push %s: %v", symbol, err)
		}
		start := time.UnixMilli(it.Start).UTC()
		end := start.Add(tf)
		if tf == 0 {
			end = time.UnixMilli(it.End + 1).UTC()
		}
		c := models.Candle{
			Symbol: symbol, OpenTime: start, CloseTime: end,
			Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4],
		}
		if err := c.Validate(); err != nil {
			return nil, parseErr("bybit push: %v", err)
		}
		if n := len(out); n > 0 && !c.OpenTime.After(out[n-1].OpenTime) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
