package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeBackend struct{ ok bool }

func (f fakeBackend) HealthCheck(context.Context) bool { return f.ok }

type fakeMic struct{ ok bool }

func (f fakeMic) Available() bool { return f.ok }

func readyz(t *testing.T, h *Handler) (int, Report) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body Report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New(Backend(fakeBackend{ok: false}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body Report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != StatusOK {
		t.Errorf("status = %q, want %q", body.Status, StatusOK)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name:       "all pass",
			checkers:   []Checker{Backend(fakeBackend{ok: true}), Microphone(fakeMic{ok: true})},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{"backend": "ok", "microphone": "ok"},
		},
		{
			name:       "backend down",
			checkers:   []Checker{Backend(fakeBackend{ok: false}), Microphone(fakeMic{ok: true})},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"backend": "fail: simulation service unreachable", "microphone": "ok"},
		},
		{
			name:       "microphone missing degrades",
			checkers:   []Checker{Backend(fakeBackend{ok: true}), Microphone(fakeMic{ok: false})},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"backend": "ok", "microphone": "degraded: no input device"},
		},
		{
			name:       "required failure wins over degraded",
			checkers:   []Checker{Microphone(fakeMic{ok: false}), Backend(fakeBackend{ok: false})},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
		},
		{
			name: "custom checker error",
			checkers: []Checker{{Name: "player", Check: func(context.Context) error {
				return errors.New("device busy")
			}}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"player": "fail: device busy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := readyz(t, New(tt.checkers...))
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestEvaluate_CheckersRunInOrder(t *testing.T) {
	var order []string
	mk := func(name string) Checker {
		return Checker{Name: name, Check: func(context.Context) error {
			order = append(order, name)
			return nil
		}}
	}
	New(mk("a"), mk("b"), mk("c")).Evaluate(context.Background())
	if len(order) != 3 || order[0] != "a" || order[2] != "c" {
		t.Errorf("order = %v", order)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	h := New(Backend(fakeBackend{ok: true}))

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest("GET", path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(
		Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
