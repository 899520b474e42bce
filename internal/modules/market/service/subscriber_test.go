package service

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinbar_scanner/internal/models"
	stream "pinbar_scanner/internal/modules/stream/service"
)

type fakeStreamer struct {
	handlers map[string]stream.Handler
	fail     map[string]bool
}

func (f *fakeStreamer) Subscribe(topic string, h stream.Handler) error {
	if f.fail[topic] {
		return errors.New("rejected")
	}
	f.handlers[topic] = h
	return nil
}

type fakeDecoder struct{}

func (fakeDecoder) Streams(d models.SymbolDescriptor) bool {
	return d.ContractType != models.ContractInverse
}

func (fakeDecoder) KlineTopic(symbol string, interval models.Interval) string {
	return "kline." + interval.String() + "." + symbol
}

func (fakeDecoder) DecodeKlines(symbol string, _ models.Interval, payload []byte) ([]models.Candle, error) {
	if string(payload) == "bad" {
		return nil, errors.New("bad payload")
	}
	return series(symbol, len(payload)), nil
}

func TestSubscriber_SubscribeAllOnce(t *testing.T) {
	st := &fakeStreamer{handlers: map[string]stream.Handler{}, fail: map[string]bool{"kline.15m.BAD": true}}
	cache := stream.NewCache(10)
	s := NewSubscriber(st, fakeDecoder{}, cache, "15m", nil)

	n := s.SubscribeAll([]models.SymbolDescriptor{desc("BTCUSDT", true), desc("ETHUSDT", true), desc("BAD", true)})
	assert.Equal(t, 2, n)
	assert.True(t, s.Subscribed())
	assert.Len(t, st.handlers, 2)

	assert.Equal(t, 0, s.SubscribeAll([]models.SymbolDescriptor{desc("XRPUSDT", true)}))
	assert.Len(t, st.handlers, 2)
}

func TestSubscriber_EmptyCatalogDoesNotMarkDone(t *testing.T) {
	st := &fakeStreamer{handlers: map[string]stream.Handler{}}
	s := NewSubscriber(st, fakeDecoder{}, stream.NewCache(10), "15m", nil)

	assert.Equal(t, 0, s.SubscribeAll(nil))
	assert.False(t, s.Subscribed())
}

func TestSubscriber_PushReplacesCacheEntry(t *testing.T) {
	st := &fakeStreamer{handlers: map[string]stream.Handler{}}
	cache := stream.NewCache(10)
	s := NewSubscriber(st, fakeDecoder{}, cache, "15m", nil)
	s.SubscribeAll([]models.SymbolDescriptor{desc("BTCUSDT", true)})

	h := st.handlers["kline.15m.BTCUSDT"]
	require.NotNil(t, h)

	h([]byte("xxxx"))
	_, ok := cache.Last("BTCUSDT", 4)
	assert.True(t, ok)

	h([]byte("xx"))
	_, ok = cache.Last("BTCUSDT", 3)
	assert.False(t, ok, "push overwrites, never merges")

	h([]byte("bad"))
	_, ok = cache.Last("BTCUSDT", 2)
	assert.True(t, ok, "undecodable push leaves the entry alone")
}

func TestSubscriber_SkipsSymbolsOutsideStream(t *testing.T) {
	st := &fakeStreamer{handlers: map[string]stream.Handler{}}
	s := NewSubscriber(st, fakeDecoder{}, stream.NewCache(10), "15m", nil)

	inverse := models.SymbolDescriptor{Symbol: "BTCUSD", ContractType: models.ContractInverse, Active: true}
	n := s.SubscribeAll([]models.SymbolDescriptor{desc("BTCUSDT", true), inverse})
	assert.Equal(t, 1, n)
	assert.Contains(t, st.handlers, "kline.15m.BTCUSDT")
	assert.NotContains(t, st.handlers, "kline.15m.BTCUSD")
	assert.True(t, s.Subscribed())
}
