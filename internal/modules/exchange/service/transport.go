package service

import (
	"context"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
)

// Transport — GET к REST API биржи поверх fasthttp с общим таймаутом.
type Transport struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
	auth    Authenticator
}

func NewTransport(baseURL string, timeout time.Duration, auth Authenticator) *Transport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Transport{
		client: &fasthttp.Client{
			Name:                "pinbar-scanner",
			MaxConnsPerHost:     64,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		baseURL: baseURL,
		timeout: timeout,
		auth:    auth,
	}
}

// Get возвращает тело 2xx-ответа. Ошибки сети и статуса — ErrTransport.
func (t *Transport) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportErr("GET %s: %v", path, err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	qs := query.Encode() // ключи отсортированы — нужно для подписи
	uri := t.baseURL + path
	if qs != "" {
		uri += "?" + qs
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	if t.auth != nil {
		t.auth.Sign(req, fasthttp.MethodGet, path, qs, nil)
	}

	timeout := t.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := t.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, transportErr("GET %s: %v", path, err)
	}
	if code := resp.StatusCode(); code/100 != 2 {
		return nil, transportErr("GET %s: http %d: %s", path, code, truncate(resp.Body(), 256))
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
