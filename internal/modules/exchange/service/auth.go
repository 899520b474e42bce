package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Authenticator подписывает запрос к бирже. Публичные эндпоинты работают и без него.
type Authenticator interface {
	Sign(req *fasthttp.Request, method, path, query string, body []byte)
}

const bybitRecvWindow = "5000"

// BybitSigner — v5: hex(HMAC-SHA256(timestamp + apiKey + recvWindow + query|body)).
type BybitSigner struct {
	APIKey    string
	APISecret string
	Now       func() time.Time
}

func (s BybitSigner) Sign(req *fasthttp.Request, method, _ string, query string, body []byte) {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	payload := query
	if strings.ToUpper(method) != fasthttp.MethodGet {
		payload = string(body)
	}
	req.Header.Set("X-BAPI-API-KEY", s.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
	req.Header.Set("X-BAPI-SIGN", s.signature(ts, payload))
}

func (s BybitSigner) signature(ts, payload string) string {
	h := hmac.New(sha256.New, []byte(s.APISecret))
	h.Write([]byte(ts + s.APIKey + bybitRecvWindow + payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (s BybitSigner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// OKXSigner — base64(HMAC-SHA256(ts + METHOD + requestPath + body)), ts в ISO с миллисекундами.
type OKXSigner struct {
	APIKey     string
	APISecret  string
	Passphrase string
	Now        func() time.Time
}

func (s OKXSigner) Sign(req *fasthttp.Request, method, path, query string, body []byte) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ts := now().UTC().Format("2006-01-02T15:04:05.000Z")
	requestPath := path
	if query != "" {
		requestPath += "?" + query
	}
	req.Header.Set("OK-ACCESS-KEY", s.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", s.signature(ts, method, requestPath, string(body)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", s.Passphrase)
}

func (s OKXSigner) signature(ts, method, requestPath, body string) string {
	h := hmac.New(sha256.New, []byte(s.APISecret))
	h.Write([]byte(ts + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
