package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"pinbar_scanner/internal/models"
)

const (
	okxInstrumentsPath = "/api/v5/public/instruments"
	okxCandlesPath     = "/api/v5/market/candles"
	okxMaxCandles      = 300
)

type OKXConfig struct {
	RestURL    string
	StreamURL  string
	InstTypes  []string
	APIKey     string
	APISecret  string
	Passphrase string
	Timeout    time.Duration
}

// OKX — v5 REST + business stream (свечные каналы).
type OKX struct {
	cfg  OKXConfig
	http *Transport
}

func NewOKX(cfg OKXConfig) *OKX {
	if len(cfg.InstTypes) == 0 {
		cfg.InstTypes = []string{"SWAP", "FUTURES"}
	}
	var auth Authenticator
	if cfg.APIKey != "" && cfg.APISecret != "" {
		auth = OKXSigner{APIKey: cfg.APIKey, APISecret: cfg.APISecret, Passphrase: cfg.Passphrase}
	}
	return &OKX{
		cfg:  cfg,
		http: NewTransport(cfg.RestURL, cfg.Timeout, auth),
	}
}

func (o *OKX) Name() string { return "okx" }

func (o *OKX) Categories() []string { return o.cfg.InstTypes }

type okxInstrument struct {
	InstType  string `json:"instType"`
	InstID    string `json:"instId"`
	Uly       string `json:"uly"`
	SettleCcy string `json:"settleCcy"`
	CtValCcy  string `json:"ctValCcy"`
	CtType    string `json:"ctType"`
	State     string `json:"state"`
	TickSz    string `json:"tickSz"`
}

type okxInstrumentsResp struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data []okxInstrument `json:"data"`
}

func (o *OKX) Instruments(ctx context.Context, instType string) ([]models.SymbolDescriptor, error) {
	q := url.Values{}
	q.Set("instType", instType)

	body, err := o.http.Get(ctx, okxInstrumentsPath, q)
	if err != nil {
		return nil, err
	}
	var r okxInstrumentsResp
	if err := sonic.Unmarshal(body, &r); err != nil {
		return nil, parseErr("okx instruments %s: %v", instType, err)
	}
	if r.Code != "0" {
		return nil, parseErr("okx instruments %s: code=%s msg=%s", instType, r.Code, r.Msg)
	}

	out := make([]models.SymbolDescriptor, 0, len(r.Data))
	for _, inst := range r.Data {
		base, quote := okxPair(inst)
		tick, _ := strconv.ParseFloat(inst.TickSz, 64)
		out = append(out, models.SymbolDescriptor{
			Symbol:       inst.InstID,
			ContractType: okxContractType(inst),
			Underlying:   base,
			QuoteAsset:   quote,
			Active:       inst.State == "live",
			TickSize:     tick,
		})
	}
	return out, nil
}

// okxContractType: ctType (linear/inverse) задаёт вид маржи; без него — по instType.
func okxContractType(inst okxInstrument) models.ContractType {
	switch {
	case strings.EqualFold(inst.CtType, "inverse"):
		return models.ContractInverse
	case strings.EqualFold(inst.CtType, "linear"):
		return models.ContractLinear
	case inst.InstType == "FUTURES":
		return models.ContractFutures
	default:
		return models.ContractPerpetual
	}
}

// okxPair: базовый и котируемый актив из uly (BTC-USDT). Без uly — из ctValCcy и settleCcy:
// у linear контракт номинирован в базовом активе, расчёт в котируемом; у inverse наоборот.
func okxPair(inst okxInstrument) (string, string) {
	if parts := strings.SplitN(inst.Uly, "-", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	if strings.EqualFold(inst.CtType, "inverse") {
		return inst.SettleCcy, inst.CtValCcy
	}
	return inst.CtValCcy, inst.SettleCcy
}

// Klines: data — newest-first [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
func (o *OKX) Klines(ctx context.Context, instID string, interval models.Interval, limit int) ([]models.Candle, error) {
	bar, err := okxBar(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > okxMaxCandles {
		limit = okxMaxCandles
	}
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("bar", bar)
	q.Set("limit", strconv.Itoa(limit))

	body, err := o.http.Get(ctx, okxCandlesPath, q)
	if err != nil {
		return nil, err
	}

	var r struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	if err := sonic.Unmarshal(body, &r); err != nil {
		return nil, parseErr("okx candles %s: %v", instID, err)
	}
	if r.Code != "0" {
		return nil, parseErr("okx candles error: code=%s msg=%s", r.Code, r.Msg)
	}

	candles, _ := reverseRows(instID, interval.Duration(), r.Data)
	if len(r.Data) > 0 && len(candles) == 0 {
		return nil, parseErr("okx candles %s: no valid rows", instID)
	}
	return candles, nil
}

func (o *OKX) StreamURL() string { return o.cfg.StreamURL }

// Streams: business-канал отдаёт candle* по любому instId.
func (o *OKX) Streams(models.SymbolDescriptor) bool { return true }

// Ping — OKX ждёт текстовый "ping" и рвёт соединение с 4004 через 30s тишины.
func (o *OKX) Ping() (int, []byte) {
	return websocket.TextMessage, []byte("ping")
}

// Route: topic = "<channel>:<instId>"; события subscribe/error и "pong" пропускаем.
func (o *OKX) Route(msg []byte) (string, []byte, bool) {
	if !gjson.ValidBytes(msg) {
		return "", nil, false
	}
	res := gjson.ParseBytes(msg)
	if res.Get("event").Exists() {
		return "", nil, false
	}
	channel, instID := res.Get("arg.channel").String(), res.Get("arg.instId").String()
	data := res.Get("data")
	if channel == "" || instID == "" || !data.Exists() {
		return "", nil, false
	}
	return channel + ":" + instID, []byte(data.Raw), true
}

func (o *OKX) SubscribeRequest(topic string) ([]byte, error) {
	channel, instID, ok := strings.Cut(topic, ":")
	if !ok {
		return nil, parseErr("okx topic %q: want channel:instId", topic)
	}
	return sonic.Marshal(map[string]any{
		"op": "subscribe",
		"args": []map[string]string{
			{"channel": channel, "instId": instID},
		},
	})
}

// KlineTopic: "candle15m:BTC-USDT-SWAP".
func (o *OKX) KlineTopic(instID string, interval models.Interval) string {
	bar, err := okxBar(interval)
	if err != nil {
		bar = string(interval)
	}
	return "candle" + bar + ":" + instID
}

// DecodeKlines — у OKX в одном кадре может прийти несколько строк; приводим к хронологии.
func (o *OKX) DecodeKlines(instID string, interval models.Interval, payload []byte) ([]models.Candle, error) {
	var rows [][]string
	if err := sonic.Unmarshal(payload, &rows); err != nil {
		return nil, parseErr("okx push %s: %v", instID, err)
	}
	tf := interval.Duration()

	out := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := candleFromRow(instID, tf, row)
		if err != nil {
			return nil, parseErr("okx push %s: %v", instID, err)
		}
		out = append(out, c)
	}
	// строки могут прийти в любом порядке
	sortCandles(out)
	return out, nil
}
