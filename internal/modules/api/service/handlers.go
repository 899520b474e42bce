package service

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"pinbar_scanner/internal/models"
	scanner "pinbar_scanner/internal/modules/scanner/service"
	"pinbar_scanner/pkg/logger"
)

type Scanner interface {
	ScanMarket(ctx context.Context) (scanner.Result, error)
	LastRun() (scanner.Result, bool)
}

// Handlers — тонкие HTTP-адаптеры вокруг скана, health и логов.
type Handlers struct {
	state   *State
	scanner Scanner
	ring    *logger.Ring
	reg     *prometheus.Registry
	log     *zap.Logger
	now     func() time.Time
}

func NewHandlers(state *State, s Scanner, ring *logger.Ring, reg *prometheus.Registry, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		state:   state,
		scanner: s,
		ring:    ring,
		reg:     reg,
		log:     log.Named("api"),
		now:     time.Now,
	}
}

func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", h.livez)
	mux.HandleFunc("/readyz", h.readyz)
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/scan", h.scan)
	mux.HandleFunc("/logs", h.logs)
	if h.reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.reg, promhttp.HandlerOpts{Registry: h.reg}))
	}
	return mux
}

func (h *Handlers) livez(w http.ResponseWriter, _ *http.Request) {
	// liveness: процесс жив
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) readyz(w http.ResponseWriter, _ *http.Request) {
	// readiness: каталог уже получен хотя бы раз
	if !h.state.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type healthResp struct {
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp"`
	Ready           bool   `json:"ready"`
	WSConnected     bool   `json:"wsConnected"`
	UptimeSec       int64  `json:"uptimeSec"`
	LastScanUnix    int64  `json:"lastScanUnix"`
	LastScanSignals int    `json:"lastScanSignals"`
}

func (h *Handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResp{
		Status:      "ok",
		Timestamp:   h.now().UTC().Format(time.RFC3339),
		Ready:       h.state.Ready(),
		WSConnected: h.state.WSConnected(),
		UptimeSec:   int64(h.state.Uptime().Seconds()),
	}
	if last, ok := h.scanner.LastRun(); ok {
		resp.LastScanUnix = last.FinishedAt.Unix()
		resp.LastScanSignals = len(last.Signals)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type scanResp struct {
	Status       string          `json:"status"`
	RunID        string          `json:"runId,omitempty"`
	TotalSymbols int             `json:"totalSymbols"`
	Signals      []models.Signal `json:"signals"`
	NotifyError  string          `json:"notifyError,omitempty"`
}

type errorResp struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// scan: GET или POST {"action":"scan"} запускает проход; OPTIONS — CORS preflight.
func (h *Handlers) scan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil || gjson.GetBytes(body, "action").String() != "scan" {
			h.writeJSON(w, http.StatusBadRequest, errorResp{Status: "error", Message: "invalid request: expected {\"action\":\"scan\"}"})
			return
		}
	default:
		h.writeJSON(w, http.StatusBadRequest, errorResp{Status: "error", Message: "invalid request method"})
		return
	}

	// скан доводим до конца, даже если клиент отвалился
	res, err := h.scanner.ScanMarket(context.WithoutCancel(r.Context()))
	if err != nil {
		h.log.Error("manual scan failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResp{Status: "error", Error: err.Error(), Message: "scan failed"})
		return
	}

	out := scanResp{
		Status:       "success",
		RunID:        res.RunID.String(),
		TotalSymbols: res.TotalSymbols,
		Signals:      res.Signals,
	}
	if out.Signals == nil {
		out.Signals = []models.Signal{}
	}
	if res.NotifyErr != nil {
		out.NotifyError = res.NotifyErr.Error()
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) logs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeJSON(w, http.StatusBadRequest, errorResp{Status: "error", Message: "invalid request method"})
		return
	}
	var entries []logger.Entry
	if h.ring != nil {
		entries = h.ring.Entries()
	}
	if entries == nil {
		entries = []logger.Entry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"count": len(entries), "entries": entries})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		h.log.Error("encode response", zap.Error(err))
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}
