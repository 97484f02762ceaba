package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cfgpkg "github.com/appirio-tech/arena-farm-client/internal/config"
	"github.com/appirio-tech/arena-farm-client/internal/runtime"
	logpkg "github.com/appirio-tech/arena-farm-client/pkg/log"
)

type submitResp struct {
	Key       string `json:"key"`
	RequestID string `json:"requestId"`
}

type countResp struct {
	Count int `json:"count"`
}

type listResp struct {
	Requests []struct {
		ClientID  string `json:"clientId"`
		RequestID string `json:"requestId"`
	} `json:"requests"`
}

type cancelResp struct {
	Cancelled int `json:"cancelled"`
}

type assignmentResp struct {
	Token     string `json:"token"`
	Key       string `json:"key"`
	ClientID  string `json:"clientId"`
	RequestID string `json:"requestId"`
}

type syncResp struct {
	RequestID   string `json:"requestId"`
	Value       any    `json:"value"`
	ProcessorID string `json:"processorId"`
}

type clientResp struct {
	Priority          *int `json:"priority"`
	EffectivePriority int  `json:"effectivePriority"`
}

func newTestServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.InMemory = true
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return New(rt, logger), rt
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestSubmitCountListCancel(t *testing.T) {
	s, _ := newTestServer(t)
	for _, id := range []string{"I-1-1;", "I-1-2;", "I-2-1;"} {
		w := do(t, s, http.MethodPost, "/v1/clients/CL1/invocations", `{"id":"`+id+`","attachment":"a"}`)
		if w.Code != http.StatusAccepted {
			t.Fatalf("submit %s status: %d %s", id, w.Code, w.Body.String())
		}
	}
	var sub submitResp
	w := do(t, s, http.MethodPost, "/v1/clients/CL2/invocations", `{"id":"I-1-1;"}`)
	decode(t, w, &sub)
	if sub.Key != "CCL2.II-1-1;.." {
		t.Fatalf("key: %q", sub.Key)
	}

	var cnt countResp
	decode(t, do(t, s, http.MethodGet, "/v1/clients/CL1/pending/count?prefix=I-1-", ""), &cnt)
	if cnt.Count != 2 {
		t.Fatalf("count: %d", cnt.Count)
	}
	decode(t, do(t, s, http.MethodGet, "/v1/pending/count", ""), &cnt)
	if cnt.Count != 4 {
		t.Fatalf("total: %d", cnt.Count)
	}

	var list listResp
	decode(t, do(t, s, http.MethodGet, "/v1/clients/CL1/pending", ""), &list)
	if len(list.Requests) != 3 || list.Requests[0].RequestID != "I-1-1;" || list.Requests[2].RequestID != "I-2-1;" {
		t.Fatalf("list: %+v", list.Requests)
	}

	var c cancelResp
	decode(t, do(t, s, http.MethodPost, "/v1/clients/CL1/pending/cancel?prefix=I-1-", ""), &c)
	if c.Cancelled != 2 {
		t.Fatalf("cancelled: %d", c.Cancelled)
	}
	decode(t, do(t, s, http.MethodGet, "/v1/clients/CL1/pending/count", ""), &cnt)
	if cnt.Count != 1 {
		t.Fatalf("count after cancel: %d", cnt.Count)
	}
}

func TestSubmitErrors(t *testing.T) {
	s, _ := newTestServer(t)
	if w := do(t, s, http.MethodPost, "/v1/clients/CL1/invocations", `{"id":"x"}`); w.Code != http.StatusAccepted {
		t.Fatalf("first: %d", w.Code)
	}
	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"duplicate", "/v1/clients/CL1/invocations", `{"id":"x"}`, http.StatusConflict},
		{"empty id", "/v1/clients/CL1/invocations", `{"id":""}`, http.StatusBadRequest},
		{"delimiter in id", "/v1/clients/CL1/invocations", `{"id":"a.b"}`, http.StatusBadRequest},
		{"bad requirements", "/v1/clients/CL1/invocations", `{"id":"y","requirements":"attrs.gpu +"}`, http.StatusBadRequest},
		{"non-bool requirements", "/v1/clients/CL1/invocations", `{"id":"y","requirements":"1 + 2"}`, http.StatusBadRequest},
		{"malformed body", "/v1/clients/CL1/invocations", `{"id":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, tc.path, tc.body)
			if w.Code != tc.want {
				t.Fatalf("status: got %d want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestPollCompleteRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"id":"job-1","attachment":7,"invocation":{"op":"sum"},"requirements":"attrs.zone == 'eu'"}`
	if w := do(t, s, http.MethodPost, "/v1/clients/CL1/invocations", body); w.Code != http.StatusAccepted {
		t.Fatalf("submit: %d", w.Code)
	}

	// Wrong zone: nothing eligible.
	if w := do(t, s, http.MethodPost, "/v1/processors/p1/poll", `{"attributes":{"zone":"us"},"wait_ms":10}`); w.Code != http.StatusNoContent {
		t.Fatalf("ineligible poll: %d", w.Code)
	}

	w := do(t, s, http.MethodPost, "/v1/processors/p2/poll", `{"attributes":{"zone":"eu"},"wait_ms":10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("poll: %d %s", w.Code, w.Body.String())
	}
	var a assignmentResp
	decode(t, w, &a)
	if a.RequestID != "job-1" || a.ClientID != "CL1" || a.Token == "" {
		t.Fatalf("assignment: %+v", a)
	}

	if w := do(t, s, http.MethodPost, "/v1/processors/p2/complete", `{"token":"`+a.Token+`","value":42}`); w.Code != http.StatusNoContent {
		t.Fatalf("complete: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodPost, "/v1/processors/p2/complete", `{"token":"`+a.Token+`","value":42}`); w.Code != http.StatusNotFound {
		t.Fatalf("second complete: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/v1/processors/p2/complete", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing token: %d", w.Code)
	}

	var out struct {
		Entries []struct {
			RequestID   string `json:"requestId"`
			State       string `json:"state"`
			ProcessorID string `json:"processorId"`
		} `json:"entries"`
	}
	decode(t, do(t, s, http.MethodGet, "/v1/clients/CL1/completed?prefix=job-", ""), &out)
	if len(out.Entries) != 1 || out.Entries[0].RequestID != "job-1" || out.Entries[0].ProcessorID != "p2" {
		t.Fatalf("completed: %+v", out.Entries)
	}
}

func TestPollWithGoneCallerLeavesWorkQueued(t *testing.T) {
	s, rt := newTestServer(t)
	if w := do(t, s, http.MethodPost, "/v1/clients/CL1/invocations", `{"id":"keep"}`); w.Code != http.StatusAccepted {
		t.Fatalf("submit: %d", w.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/processors/p1/poll", strings.NewReader(`{"wait_ms":50}`)).WithContext(ctx)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancelled poll: %d %s", w.Code, w.Body.String())
	}

	st := rt.Scheduler().Stats()
	if st.Pending != 1 || st.Inflight != 0 {
		t.Fatalf("stats after cancelled poll: %+v", st)
	}
	w = do(t, s, http.MethodPost, "/v1/processors/p2/poll", `{"wait_ms":50}`)
	if w.Code != http.StatusOK {
		t.Fatalf("poll: %d", w.Code)
	}
	var a assignmentResp
	decode(t, w, &a)
	if a.RequestID != "keep" {
		t.Fatalf("assignment: %+v", a)
	}
}

func TestSyncSubmit(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/clients/CL1/invocations", `{"id":"slow","sync":true,"timeout_ms":20}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("timeout status: %d", w.Code)
	}

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/clients/CL1/invocations",
			strings.NewReader(`{"id":"fast","sync":true,"timeout_ms":5000}`))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		done <- rec
	}()

	// "slow" is still pending and older, so it is dispatched first.
	for _, want := range []string{"slow", "fast"} {
		w := do(t, s, http.MethodPost, "/v1/processors/p1/poll", `{"wait_ms":2000}`)
		if w.Code != http.StatusOK {
			t.Fatalf("poll %s: %d", want, w.Code)
		}
		var a assignmentResp
		decode(t, w, &a)
		if a.RequestID != want {
			t.Fatalf("got %s want %s", a.RequestID, want)
		}
		if w := do(t, s, http.MethodPost, "/v1/processors/p1/complete", `{"token":"`+a.Token+`","value":"ok-`+want+`"}`); w.Code != http.StatusNoContent {
			t.Fatalf("complete %s: %d", want, w.Code)
		}
	}

	rec := <-done
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status: %d %s", rec.Code, rec.Body.String())
	}
	var resp syncResp
	decode(t, rec, &resp)
	if resp.RequestID != "fast" || resp.Value != "ok-fast" || resp.ProcessorID != "p1" {
		t.Fatalf("response: %+v", resp)
	}
}

func TestClientPriority(t *testing.T) {
	s, rt := newTestServer(t)
	w := do(t, s, http.MethodPut, "/v1/clients/HIGH", `{"priority":0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put: %d %s", w.Code, w.Body.String())
	}
	if got := rt.Scheduler().Priority("HIGH"); got != 0 {
		t.Fatalf("priority: %d", got)
	}
	if w := do(t, s, http.MethodPut, "/v1/clients/HIGH", `{"priority":99}`); w.Code != http.StatusBadRequest {
		t.Fatalf("out of range: %d", w.Code)
	}

	var c clientResp
	decode(t, do(t, s, http.MethodGet, "/v1/clients/HIGH", ""), &c)
	if c.Priority == nil || *c.Priority != 0 || c.EffectivePriority != 0 {
		t.Fatalf("client: %+v", c)
	}

	var reset clientResp
	decode(t, do(t, s, http.MethodPut, "/v1/clients/HIGH", `{"priority":null}`), &reset)
	if reset.Priority != nil || reset.EffectivePriority != rt.Config().Scheduler.DefaultPriority {
		t.Fatalf("reset: %+v", reset)
	}
}

func TestMetricsAndStats(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/clients/CL1/invocations", `{"id":"m1"}`)

	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "farm_scheduler_submitted_total") {
		t.Fatalf("metrics: %d", w.Code)
	}

	var st struct {
		Pending int      `json:"pending"`
		Clients []string `json:"clients"`
	}
	decode(t, do(t, s, http.MethodGet, "/v1/stats", ""), &st)
	if st.Pending != 1 || len(st.Clients) != 1 || st.Clients[0] != "CL1" {
		t.Fatalf("stats: %+v", st)
	}
}
