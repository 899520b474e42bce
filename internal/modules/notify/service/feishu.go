package service

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"

	"pinbar_scanner/internal/models"
)

// Feishu — interactive-карточка в групповой бот через webhook.
type Feishu struct {
	webhook string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewFeishu(webhook string, timeout time.Duration) *Feishu {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Feishu{
		webhook: webhook,
		timeout: timeout,
		client:  &fasthttp.Client{Name: "pinbar-scanner"},
	}
}

func (f *Feishu) Name() string { return "feishu" }

type larkText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type larkElement struct {
	Tag      string     `json:"tag"`
	Text     *larkText  `json:"text,omitempty"`
	Elements []larkText `json:"elements,omitempty"`
}

type larkCard struct {
	MsgType string `json:"msg_type"`
	Card    struct {
		Header struct {
			Template string   `json:"template"`
			Title    larkText `json:"title"`
		} `json:"header"`
		Elements []larkElement `json:"elements"`
	} `json:"card"`
}

// cardTemplate: зелёный — все бычьи, красный — все медвежьи, смешанная пачка — синий.
func cardTemplate(signals []models.Signal) string {
	bull, bear := 0, 0
	for _, s := range signals {
		if s.Direction == models.DirectionBullish {
			bull++
		} else {
			bear++
		}
	}
	switch {
	case bear == 0:
		return "green"
	case bull == 0:
		return "red"
	default:
		return "blue"
	}
}

func buildCard(signals []models.Signal) larkCard {
	var c larkCard
	c.MsgType = "interactive"
	c.Card.Header.Template = cardTemplate(signals)
	c.Card.Header.Title = larkText{Tag: "plain_text", Content: title(signals)}

	for i, s := range signals {
		if i > 0 {
			c.Card.Elements = append(c.Card.Elements, larkElement{Tag: "hr"})
		}
		c.Card.Elements = append(c.Card.Elements, larkElement{
			Tag:  "div",
			Text: &larkText{Tag: "lark_md", Content: details(s)},
		})
	}
	c.Card.Elements = append(c.Card.Elements,
		larkElement{Tag: "hr"},
		larkElement{Tag: "note", Elements: []larkText{
			{Tag: "plain_text", Content: "Signal time: " + signalTime(signals)},
		}},
	)
	return c
}

func (f *Feishu) Notify(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	if f.webhook == "" {
		return errors.Wrap(ErrNotConfigured, "feishu webhook url is empty")
	}

	body, err := sonic.Marshal(buildCard(signals))
	if err != nil {
		return errors.Wrap(err, "feishu: marshal card")
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(f.webhook)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	timeout := f.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := f.client.DoTimeout(req, resp, timeout); err != nil {
		return errors.Wrap(err, "feishu: post")
	}
	if code := resp.StatusCode(); code/100 != 2 {
		return errors.Errorf("feishu: http %d", code)
	}
	// бот отвечает 200 даже на ошибку, код в теле
	if code := gjson.GetBytes(resp.Body(), "code"); code.Exists() && code.Int() != 0 {
		return errors.Errorf("feishu: code=%d msg=%s", code.Int(), gjson.GetBytes(resp.Body(), "msg").String())
	}
	return nil
}
