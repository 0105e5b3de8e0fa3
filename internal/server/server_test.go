package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/config"
	"github.com/dgnsrekt/options-screener/internal/data"
	"github.com/dgnsrekt/options-screener/internal/screener"
	statesync "github.com/dgnsrekt/options-screener/internal/sync"
	"github.com/dgnsrekt/options-screener/internal/ws"
)

const (
	olderDate = "2025-11-14"
	newerDate = "2025-11-17"
)

func optionLine(ticker, symbol, typ string, strike, iv, oi float64) string {
	return fmt.Sprintf(`{"ticker":%q,"contract_symbol":%q,"underlying_type":"stock","option_type":%q,`+
		`"strike":%g,"expiration":"2025-12-19","quote_date":"2025-11-14","last_price":1.5,"bid":1.4,"ask":1.6,`+
		`"volume":50,"open_interest":%g,"iv":%g,"underlying_price":25}`, ticker, symbol, typ, strike, oi, iv)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

type fixture struct {
	server  *Server
	reload  *ReloadManager
	hub     *ws.Hub
	handler http.Handler
	cfg     *config.ServerConfig
}

func newFixture(t *testing.T, load bool) *fixture {
	t.Helper()
	dataDir := t.TempDir()
	presetDir := t.TempDir()

	writeFile(t, filepath.Join(dataDir, olderDate, "GME.jsonl"),
		optionLine("GME", "GME251219C00020000", "call", 20, 0.5, 100)+"\n"+
			optionLine("GME", "GME251219P00030000", "put", 30, 0.3, 10)+"\n")
	writeFile(t, filepath.Join(dataDir, olderDate, "AMC.jsonl"),
		optionLine("AMC", "AMC251219C00005000", "call", 5, 0.1, 400)+"\n")
	writeFile(t, filepath.Join(dataDir, newerDate, "AMC.jsonl"),
		optionLine("AMC", "AMC251219C00006000", "call", 6, 0.2, 400)+"\n")

	writeFile(t, filepath.Join(presetDir, "amc_only.ini"), "[FILTER]\ntickers = AMC\n")
	writeFile(t, filepath.Join(presetDir, "gme_calls.yaml"), "filter:\n  tickers: [GME]\n  calls: true\n")

	cfg := &config.ServerConfig{
		Port:        "0",
		DataDir:     dataDir,
		DataDate:    olderDate,
		PresetDir:   presetDir,
		CORSOrigins: "*",
	}

	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	engine := screener.NewEngine(2, screener.NewMetrics(reg), logger)
	hub := ws.NewHub(IsPresetGroup(presetDir), logger)
	rm := NewReloadManager(data.NewFileLoader(dataDir, logger), engine, hub, cfg, logger)
	if load {
		_, err := rm.Reload(context.Background(), olderDate)
		require.NoError(t, err)
	}

	srv := NewServer(rm, engine, hub, cfg, logger)
	return &fixture{
		server:  srv,
		reload:  rm,
		hub:     hub,
		handler: NewRouter(srv, reg, logger),
		cfg:     cfg,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

type screenBody struct {
	RunID     string `json:"run_id"`
	Date      string `json:"date"`
	Preset    string `json:"preset"`
	OrderBy   string `json:"order_by"`
	Evaluated int    `json:"evaluated"`
	Passed    int    `json:"passed"`
	Returned  int    `json:"returned"`
	Matches   []struct {
		Rank           int      `json:"rank"`
		Ticker         string   `json:"ticker"`
		ContractSymbol string   `json:"contract_symbol"`
		IV             *float64 `json:"iv"`
	} `json:"matches"`
	Rejections []screener.RejectionCount `json:"rejections"`
	Explain    []ExplainEntry            `json:"explain"`
}

func (b screenBody) symbols() []string {
	out := make([]string, 0, len(b.Matches))
	for _, m := range b.Matches {
		out = append(out, m.ContractSymbol)
	}
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, olderDate, body.DataDate)
	assert.Equal(t, 3, body.Records)
}

func TestHealth_BeforeFirstLoad(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "loading", decode[HealthResponse](t, rec).Status)
}

func TestScreen_OrdersMatches(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/screen", `{"filter":{"order-by":"iv_desc"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[screenBody](t, rec)
	assert.NotEmpty(t, body.RunID)
	assert.Equal(t, olderDate, body.Date)
	assert.Equal(t, "iv_desc", body.OrderBy)
	assert.Equal(t, 3, body.Evaluated)
	assert.Equal(t, 3, body.Passed)
	assert.Equal(t, []string{"GME251219C00020000", "GME251219P00030000", "AMC251219C00005000"}, body.symbols())
	for i, m := range body.Matches {
		assert.Equal(t, i+1, m.Rank)
	}
}

func TestScreen_AcceptsAnyJSONValueType(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/screen", `{"filter":{"tickers":["gme"],"calls":true,"min-oi":50,"limit":null}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[screenBody](t, rec)
	assert.Equal(t, []string{"GME251219C00020000"}, body.symbols())
	assert.Len(t, body.Rejections, 3)
}

func TestScreen_InvalidFilterReturnsEveryError(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/screen", `{"filter":{"min-delta":"0.8","max-delta":0.2,"bogus":1,"calls":"maybe"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Error   string `json:"error"`
		Details struct {
			UnknownKeys []string `json:"unknown_keys"`
			Malformed   []struct {
				Key string `json:"key"`
			} `json:"malformed"`
			Inverted []struct {
				Field string `json:"field"`
			} `json:"inverted"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"bogus"}, body.Details.UnknownKeys)
	require.Len(t, body.Details.Malformed, 1)
	assert.Equal(t, "calls", body.Details.Malformed[0].Key)
	require.Len(t, body.Details.Inverted, 1)
	assert.Equal(t, "delta", body.Details.Inverted[0].Field)
}

func TestScreen_RequestValidation(t *testing.T) {
	f := newFixture(t, true)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad date", `{"date":"yesterday"}`, "date"},
		{"bad preset name", `{"preset":"../etc/passwd"}`, "preset"},
		{"bad explain limit", `{"explain":"GME","explain_limit":-1}`, "explain_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/screen", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[ErrorResponse](t, rec)
			require.Len(t, body.Fields, 1)
			assert.True(t, strings.HasPrefix(body.Fields[0], tt.field+":"), body.Fields[0])
		})
	}

	rec := f.do(t, http.MethodPost, "/screen", `{"filter":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScreen_EmptyBodyScreensLatest(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/screen", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[screenBody](t, rec).Returned)
}

func TestScreen_OtherDateAndMissingDate(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/screen", `{"date":"`+newerDate+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[screenBody](t, rec)
	assert.Equal(t, newerDate, body.Date)
	assert.Equal(t, []string{"AMC251219C00006000"}, body.symbols())
	assert.Equal(t, olderDate, f.reload.Current().Date, "screening another date must not replace the snapshot")

	rec = f.do(t, http.MethodPost, "/screen", `{"date":"2020-01-02"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScreen_PresetWithOverrides(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/screen", `{"preset":"amc_only"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[screenBody](t, rec)
	assert.Equal(t, "amc_only", body.Preset)
	assert.Equal(t, []string{"AMC251219C00005000"}, body.symbols())

	rec = f.do(t, http.MethodPost, "/screen", `{"preset":"gme_calls","filter":{"calls":"","puts":true}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"GME251219P00030000"}, decode[screenBody](t, rec).symbols())

	rec = f.do(t, http.MethodPost, "/screen", `{"preset":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScreen_PresetIgnoresWorkingDirectory(t *testing.T) {
	f := newFixture(t, true)

	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "everything"), "[FILTER]\nlimit = 50\n")
	t.Chdir(cwd)

	rec := f.do(t, http.MethodPost, "/screen", `{"preset":"everything"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, IsPresetGroup(f.cfg.PresetDir)("everything"))
	assert.True(t, IsPresetGroup(f.cfg.PresetDir)("amc_only"))
}

func TestScreen_Explain(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/screen", `{"filter":{"tickers":"AMC","min-iv":0.4},"explain":"gme","explain_limit":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[screenBody](t, rec)
	assert.Empty(t, body.Matches)
	require.Len(t, body.Explain, 1)
	assert.Equal(t, "GME251219C00020000", body.Explain[0].ContractSymbol)
	require.Len(t, body.Explain[0].Failures, 1)
	assert.Equal(t, "tickers", body.Explain[0].Failures[0].Key)
}

func TestFields(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodGet, "/fields", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[FieldsResponse](t, rec)
	assert.Equal(t, "e_desc", body.DefaultSort)
	assert.Contains(t, body.SortTokens, "iv_desc")

	byKey := map[string]FieldInfo{}
	for _, k := range body.Keys {
		byKey[k.Key] = k
	}
	assert.Equal(t, FieldInfo{Key: "min-iv-20d", Field: "iv-20d", Kind: "range", Type: "float", Window: "20d", Doc: byKey["min-iv-20d"].Doc}, byKey["min-iv-20d"])
	assert.Equal(t, "boolean", byKey["exclude"].Type)
	assert.Equal(t, "option-type", byKey["calls"].Group)
}

func TestPresets(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodGet, "/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"presets":["amc_only","gme_calls"]}`, rec.Body.String())

	f.cfg.PresetDir = filepath.Join(t.TempDir(), "none")
	rec = f.do(t, http.MethodGet, "/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"presets":[]}`, rec.Body.String())
}

func TestReload(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/reload?date=latest", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[ReloadResult](t, rec)
	assert.Equal(t, olderDate, result.PreviousDate)
	assert.Equal(t, newerDate, result.NewDate)
	assert.Equal(t, 1, result.Records)
	assert.Equal(t, newerDate, f.reload.Current().Date)

	rec = f.do(t, http.MethodPost, "/reload?date=11-14-2025", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/reload?date=2020-01-02", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, newerDate, f.reload.Current().Date, "failed reload keeps the previous snapshot")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodPost, "/screen", `{}`)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `screener_runs_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "screener_records_evaluated_total 3")
}

func TestCORS(t *testing.T) {
	f := newFixture(t, true)
	f.cfg.CORSOrigins = "https://a.example, https://b.example"
	handler := NewRouter(f.server, prometheus.NewRegistry(), zap.NewNop())

	req := httptest.NewRequest(http.MethodOptions, "/screen", nil)
	req.Header.Set("Origin", "https://b.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://b.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPresetFeed(t *testing.T) {
	f := newFixture(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.hub.Run(ctx)

	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() ws.DownstreamMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg ws.DownstreamMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	}

	connected := read()
	assert.Equal(t, "system", connected.Type)
	assert.NotEmpty(t, connected.ConnectionID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"joinGroup","group":"nope","ackId":1}`)))
	ack := read()
	require.Equal(t, "ack", ack.Type)
	assert.False(t, *ack.Success)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"joinGroup","group":"amc_only","ackId":2}`)))
	ack = read()
	require.Equal(t, uint64(2), *ack.AckID)
	assert.True(t, *ack.Success)
	assert.Equal(t, []string{"amc_only"}, f.hub.ActiveGroups())

	result, err := f.reload.Reload(context.Background(), newerDate)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Broadcasts)

	msg := read()
	assert.Equal(t, "message", msg.Type)
	assert.Equal(t, "amc_only", msg.Group)
	var body screenBody
	require.NoError(t, json.NewDecoder(bytes.NewReader(msg.Data)).Decode(&body))
	assert.Equal(t, newerDate, body.Date)
	assert.Equal(t, []string{"AMC251219C00006000"}, body.symbols())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", read().Type)
}

func TestEventsStreamReloads(t *testing.T) {
	f := newFixture(t, true)
	f.server.AttachEvents(statesync.NewBroadcaster("test", 0, f.server.State, zap.NewNop()))

	ts := httptest.NewServer(NewRouter(f.server, prometheus.NewRegistry(), zap.NewNop()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	next := func() (string, statesync.Event) {
		t.Helper()
		var (
			typ string
			ev  statesync.Event
		)
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return typ, ev
			case strings.HasPrefix(line, "event: "):
				typ = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			}
		}
	}

	typ, ev := next()
	assert.Equal(t, statesync.EventSnapshot, typ)
	assert.Equal(t, olderDate, ev.State.DataDate)
	assert.Equal(t, 3, ev.State.Records)

	_, err = f.reload.Reload(context.Background(), newerDate)
	require.NoError(t, err)

	typ, ev = next()
	assert.Equal(t, statesync.EventReload, typ)
	assert.Equal(t, newerDate, ev.State.DataDate)
	assert.Equal(t, 1, ev.State.Records)
}
