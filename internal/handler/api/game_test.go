package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"QuotaGame/internal/domain/models"
	"QuotaGame/internal/services/barrier"
	"QuotaGame/internal/services/gbm"
	"QuotaGame/internal/usecase"
	xlogger "QuotaGame/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordTick(float64)                          {}
func (nopMetrics) RecordEstimate(float64, float64, bool)       {}
func (nopMetrics) RecordSettlement(bool, float64)              {}
func (nopMetrics) RecordTransition(models.Phase, models.Phase) {}
func (nopMetrics) RecordRealizedVol(float64)                   {}
func (nopMetrics) RecordError(string)                          {}
func (nopMetrics) RecordLatency(string, float64)               {}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*echo.Echo, *usecase.Session) {
	t.Helper()
	proc := gbm.New(100, gbm.Params{Volatility: 0, DT: 1e-9})
	engine := barrier.NewEngine(barrier.WithWorkers(2), barrier.WithSeed(3, 4), barrier.WithMaxWork(1000000))
	quoter := usecase.NewQuoter(usecase.QuoteConfig{DT: 1e-9, NumPaths: 100, MaxSteps: 1000}, engine, nil, nopMetrics{})
	machine := usecase.NewRoundMachine(usecase.RoundConfig{MinOffset: 200, MinDrag: 5}, models.Ledger{
		Budget: decimal.NewFromInt(10000), Stake: 1000, StakeMin: 100, StakeMax: 5000, StakeStep: 1000,
	})
	view := models.Viewport{AnchorX: 200, AnchorY: 300, SpacingX: 1, ScaleY: 50000, ScaleMin: 1000, ScaleMax: 200000}
	s := usecase.NewSession(usecase.SessionConfig{TickPeriod: 10 * time.Millisecond, Window: 200, StatsWindow: 50},
		proc, machine, quoter, view, nopMetrics{}, xlogger.NewNop())
	t.Cleanup(s.Close)

	e := echo.New()
	NewGameHandler(xlogger.NewNop(), s, 10*time.Millisecond).RegisterRoutes(e)
	return e, s
}

func do(t *testing.T, e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusNoContent {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestGameHandler_State(t *testing.T) {
	e, _ := newTestServer(t)

	rec, env := do(t, e, http.MethodGet, "/api/state?n=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Round.Phase != models.PhaseIdle || snap.Price != 100 || len(snap.Window) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestGameHandler_ProposeAndConfirm(t *testing.T) {
	e, s := newTestServer(t)

	if rec, _ := do(t, e, http.MethodPost, "/api/drag/start", `{"x":450,"y":250}`); rec.Code != http.StatusOK {
		t.Fatalf("drag start: %d", rec.Code)
	}
	if rec, _ := do(t, e, http.MethodPost, "/api/drag/move", `{"x":500,"y":300}`); rec.Code != http.StatusNoContent {
		t.Fatalf("drag move: %d", rec.Code)
	}
	rec, env := do(t, e, http.MethodPost, "/api/drag/end", `{"x":550,"y":350}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("drag end: %d", rec.Code)
	}
	var end dragEndResponse
	_ = json.Unmarshal(env.Data, &end)
	if end.Discarded || end.Rectangle == nil || end.Rectangle.StepLeft != 250 {
		t.Fatalf("drag end = %+v", end)
	}
	s.Wait()

	rec, env = do(t, e, http.MethodPost, "/api/confirm", `{"x":10,"y":10}`)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(string(env.Data), "ERR_OUTSIDE_RECTANGLE") {
		t.Fatalf("confirm outside: %d %s", rec.Code, env.Data)
	}

	rec, env = do(t, e, http.MethodPost, "/api/confirm", `{"x":500,"y":300}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, env.Data)
	}
	var round models.Round
	_ = json.Unmarshal(env.Data, &round)
	if round.Phase != models.PhaseMonitoring || round.Estimate == nil || round.Estimate.Multiplier != 1 {
		t.Fatalf("round = %+v", round)
	}

	rec, env = do(t, e, http.MethodPost, "/api/drag/start", `{"x":450,"y":250}`)
	if rec.Code != http.StatusConflict || !strings.Contains(string(env.Data), "ERR_ROUND_LOCKED") {
		t.Fatalf("drag while monitoring: %d %s", rec.Code, env.Data)
	}
}

func TestGameHandler_Errors(t *testing.T) {
	e, _ := newTestServer(t)

	if rec, _ := do(t, e, http.MethodPost, "/api/resume", ""); rec.Code != http.StatusConflict {
		t.Fatalf("resume in idle: %d", rec.Code)
	}
	if rec, _ := do(t, e, http.MethodPost, "/api/zoom", `{"factor":20}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("zoom out of range: %d", rec.Code)
	}
	if rec, _ := do(t, e, http.MethodPost, "/api/drag/start", `{"x":-1,"y":0}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative point: %d", rec.Code)
	}
	if rec, _ := do(t, e, http.MethodPost, "/api/stake", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing delta: %d", rec.Code)
	}
}

func TestGameHandler_StakeAndZoom(t *testing.T) {
	e, _ := newTestServer(t)

	_, env := do(t, e, http.MethodPost, "/api/stake", `{"delta":100000}`)
	var stake map[string]int64
	_ = json.Unmarshal(env.Data, &stake)
	if stake["stake"] != 5000 {
		t.Fatalf("stake = %v", stake)
	}

	_, env = do(t, e, http.MethodPost, "/api/zoom", `{}`)
	var zoom map[string]float64
	_ = json.Unmarshal(env.Data, &zoom)
	if zoom["scale_y"] < 54999 || zoom["scale_y"] > 55001 {
		t.Fatalf("zoom = %v", zoom)
	}
}

func TestGameHandler_Estimate(t *testing.T) {
	e, _ := newTestServer(t)

	rec, env := do(t, e, http.MethodPost, "/api/estimate",
		`{"start_value":100,"volatility":0,"dt":0.001,"num_paths":50,"num_steps":10,"step_left":2,"step_right":5,"price_low":99,"price_high":101}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("estimate: %d %s", rec.Code, env.Data)
	}
	var est models.BarrierEstimate
	_ = json.Unmarshal(env.Data, &est)
	if est.Probability != 1 || est.Multiplier != 1 || est.Paths != 50 {
		t.Fatalf("estimate = %+v", est)
	}

	rec, env = do(t, e, http.MethodPost, "/api/estimate",
		`{"start_value":100,"volatility":0.1,"dt":0.001,"num_steps":10,"step_left":5,"step_right":2,"price_low":99,"price_high":101}`)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(string(env.Data), "ERR_INVALID_REGION") {
		t.Fatalf("inverted span: %d %s", rec.Code, env.Data)
	}

	rec, env = do(t, e, http.MethodPost, "/api/estimate",
		`{"start_value":100,"volatility":0.1,"dt":0.001,"num_paths":100000,"num_steps":100,"step_left":0,"step_right":100,"price_low":99,"price_high":101}`)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(string(env.Data), "ERR_WORK_LIMIT") {
		t.Fatalf("oversized estimate: %d %s", rec.Code, env.Data)
	}
}

func TestGameHandler_Stream(t *testing.T) {
	e, _ := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream?n=5"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(models.Command{Type: models.CmdZoom, Factor: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame.Kind == "snapshot" && frame.Snapshot.Viewport.ScaleY == 100000 {
			return
		}
	}
	t.Fatal("zoom command never reflected in a snapshot")
}

func TestGameHandler_StreamRejectsForeignOrigin(t *testing.T) {
	e, _ := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	hdr := http.Header{}
	hdr.Set("Origin", "https://evil.example.com")
	conn, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	if err == nil {
		conn.Close()
		t.Fatal("handshake from a foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %v, want 403", resp)
	}
}
