package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"MarketScreener/internal/model"
	"MarketScreener/internal/recorder"
	"MarketScreener/internal/scheduler"
)

type fakeRunner struct {
	last     *model.Run
	lastErr  error
	startErr error
	started  int
}

func (f *fakeRunner) RunPass(context.Context) (*model.Run, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.last = &model.Run{ID: "sync"}
	return f.last, nil
}

func (f *fakeRunner) StartPass(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return nil
}

func (f *fakeRunner) LatestRun(context.Context) (*model.Run, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	if f.last == nil {
		return nil, recorder.ErrNoRuns
	}
	return f.last, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestRoutes(t *testing.T) {
	sel := model.SelectionResult{Symbol: "AAA", Matched: true, Outcome: model.OutcomeSelected}
	runner := &fakeRunner{}
	h := New(context.Background(), ":0", runner).Routes()

	if code, env := do(t, h, http.MethodGet, "/healthz"); code != http.StatusOK || !env.Success {
		t.Errorf("healthz: %d %+v", code, env)
	}
	if code, env := do(t, h, http.MethodGet, "/api/runs/latest"); code != http.StatusNotFound || env.Success {
		t.Errorf("latest before any run: %d %+v", code, env)
	}

	runner.last = &model.Run{ID: "r1", Selected: []model.SelectionResult{sel}, Outcomes: []model.SelectionResult{sel}}
	code, env := do(t, h, http.MethodGet, "/api/runs/latest")
	if code != http.StatusOK {
		t.Fatalf("latest: %d", code)
	}
	var run model.Run
	if err := json.Unmarshal(env.Data, &run); err != nil || run.ID != "r1" {
		t.Errorf("unexpected run %s: %v", env.Data, err)
	}

	code, env = do(t, h, http.MethodGet, "/api/runs/latest/selections")
	var sels []model.SelectionResult
	if err := json.Unmarshal(env.Data, &sels); code != http.StatusOK || err != nil || len(sels) != 1 || sels[0].Symbol != "AAA" {
		t.Errorf("selections: %d %s %v", code, env.Data, err)
	}

	if code, _ := do(t, h, http.MethodPost, "/api/screen"); code != http.StatusAccepted || runner.started != 1 {
		t.Errorf("screen: %d started=%d", code, runner.started)
	}
	code, env = do(t, h, http.MethodPost, "/api/screen?wait=true")
	if code != http.StatusOK || !json.Valid(env.Data) {
		t.Errorf("screen wait: %d %s", code, env.Data)
	}
}

func TestRoutes_Errors(t *testing.T) {
	runner := &fakeRunner{startErr: scheduler.ErrPassRunning, lastErr: errors.New("db locked")}
	h := New(context.Background(), ":0", runner).Routes()

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/api/screen", http.StatusConflict},
		{http.MethodPost, "/api/screen?wait=true", http.StatusConflict},
		{http.MethodGet, "/api/runs/latest", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, env := do(t, h, tt.method, tt.path)
		if code != tt.want || env.Success || env.Error == "" {
			t.Errorf("%s %s: got %d %+v, want %d", tt.method, tt.path, code, env, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/screen", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/screen: expected 405, got %d", rec.Code)
	}
}
