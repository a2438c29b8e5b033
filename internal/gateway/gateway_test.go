package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attune/internal/converge"
	"attune/internal/llm"
	"attune/internal/profile"
	"attune/internal/provenance"
	"attune/internal/score"
)

type fixture struct {
	handler http.Handler
	svc     *Service
	hub     *Hub
	fake    *llm.FakeClient
}

// newFixture builds the full HTTP surface on top of an offline oracle.
// scores scripts the evaluator per attempt, sticky on the last value;
// without scores the real evaluator runs.
func newFixture(t *testing.T, scores ...float64) *fixture {
	t.Helper()

	profiles, err := profile.NewCatalogStore("", zap.NewNop())
	require.NoError(t, err)

	fake := llm.NewFakeClient()
	ledger := llm.NewUsageLedger("")
	transport := llm.NewTransport(fake, llm.TransportOptions{
		Retry: llm.RetryPolicy{
			MaxTries:  1,
			BaseDelay: time.Millisecond,
			Sleep:     func(time.Duration) {},
		},
		Ledger: ledger,
	})
	t.Cleanup(func() { _ = transport.Close() })

	ctrl, err := converge.New(converge.Deps{
		Profiles: profiles,
		Oracle:   transport,
		Sink:     provenance.NewFlowSink(t.TempDir(), zap.NewNop()),
		Log:      zap.NewNop(),
		Evaluate: scriptedEval(scores...),
	}, converge.Options{MaxAttempts: 3, Threshold: 0.85})
	require.NoError(t, err)

	hub := NewHub(zap.NewNop())
	svc := NewService(ctrl, profiles, ledger, hub, 2, zap.NewNop())
	t.Cleanup(svc.Close)

	h := NewHandler(svc, hub, zap.NewNop())
	return &fixture{handler: NewMux(h, zap.NewNop()), svc: svc, hub: hub, fake: fake}
}

func scriptedEval(scores ...float64) func(string, score.Target) score.Breakdown {
	if len(scores) == 0 {
		return nil
	}
	var mu sync.Mutex
	pos := 0
	return func(string, score.Target) score.Breakdown {
		mu.Lock()
		defer mu.Unlock()
		v := scores[len(scores)-1]
		if pos < len(scores) {
			v = scores[pos]
			pos++
		}
		return score.Breakdown{
			Tone: v, Approach: v, Cadence: v, Lexical: v, Structure: v,
			Overall: v, Weakest: score.DimTone,
		}
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestRunEndpointConverges(t *testing.T) {
	f := newFixture(t, 0.9)

	rec := f.do(t, http.MethodPost, "/v1/runs", RunRequest{
		ProfileID: "aurora",
		Scenario:  "A neighbor asks for help after a flood.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res converge.Result
	decodeInto(t, rec, &res)
	assert.Equal(t, converge.StatusSuccess, res.Status)
	assert.Equal(t, "aurora", res.ProfileID)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.BestAttempt)
	assert.True(t, res.Persisted)
}

func TestRunEndpointRejectsBadInput(t *testing.T) {
	f := newFixture(t, 0.9)

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("missing profile", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/runs", RunRequest{Scenario: "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("missing scenario", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/runs", RunRequest{ProfileID: "aurora"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRunEndpointUnknownProfileIsRunError(t *testing.T) {
	f := newFixture(t, 0.9)

	rec := f.do(t, http.MethodPost, "/v1/runs", RunRequest{ProfileID: "nobody", Scenario: "x"})
	require.Equal(t, http.StatusOK, rec.Code, "an unknown profile is a run outcome, not a request error")

	var res converge.Result
	decodeInto(t, rec, &res)
	assert.Equal(t, converge.StatusError, res.Status)
	assert.Contains(t, res.Reason, "unknown profile")
	assert.EqualValues(t, 0, res.Calls)
}

func TestScoreEndpoint(t *testing.T) {
	f := newFixture(t)

	content := "I hear you, and together we can rebuild trust in this community. " +
		"Take a breath; you are not alone, and we will protect those who need the most care."
	rec := f.do(t, http.MethodPost, "/v1/score", map[string]string{
		"profile_id": "aurora",
		"content":    content,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var b score.Breakdown
	decodeInto(t, rec, &b)
	assert.Greater(t, b.Overall, 0.0)
	assert.Greater(t, b.Approach, 0.0)
	assert.NotEmpty(t, b.Evidence)

	rec = f.do(t, http.MethodPost, "/v1/score", map[string]string{
		"profile_id": "nobody",
		"content":    content,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Profiles []*profile.Profile `json:"profiles"`
	}
	decodeInto(t, rec, &list)
	ids := make([]string, 0, len(list.Profiles))
	for _, p := range list.Profiles {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"aurora", "companion", "phoenix", "sage"}, ids)

	rec = f.do(t, http.MethodGet, "/v1/profiles/aurora", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p profile.Profile
	decodeInto(t, rec, &p)
	assert.Equal(t, "Aurora", p.Name)

	rec = f.do(t, http.MethodGet, "/v1/profiles/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchEndpointLifecycle(t *testing.T) {
	f := newFixture(t, 0.9)

	rec := f.do(t, http.MethodPost, "/v1/batches", BatchRequest{
		Pairs: []converge.Pair{
			{ProfileID: "aurora", Scenario: "first"},
			{ProfileID: "sage", Scenario: "second"},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started BatchView
	decodeInto(t, rec, &started)
	require.NotEmpty(t, started.ID)
	assert.Equal(t, 2, started.Requested)

	var final BatchView
	require.Eventually(t, func() bool {
		r := f.do(t, http.MethodGet, "/v1/batches/"+started.ID, nil)
		if r.Code != http.StatusOK {
			return false
		}
		decodeInto(t, r, &final)
		return final.State == BatchDone
	}, 3*time.Second, 20*time.Millisecond)

	require.Len(t, final.Results, 2)
	assert.Equal(t, 2, final.Succeeded)
	assert.Equal(t, "aurora", final.Results[0].ProfileID)
	assert.Equal(t, "sage", final.Results[1].ProfileID)
	require.NotNil(t, final.FinishedAt)

	rec = f.do(t, http.MethodGet, "/v1/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Batches []*BatchView `json:"batches"`
	}
	decodeInto(t, rec, &listed)
	require.Len(t, listed.Batches, 1)
	assert.Equal(t, started.ID, listed.Batches[0].ID)
	assert.Empty(t, listed.Batches[0].Results, "the list view must stay lightweight")
}

func TestBatchEndpointValidation(t *testing.T) {
	f := newFixture(t, 0.9)

	rec := f.do(t, http.MethodPost, "/v1/batches", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/batches", BatchRequest{
		Pairs: []converge.Pair{{ProfileID: "aurora"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/batches/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsageEndpointCountsCalls(t *testing.T) {
	f := newFixture(t, 0.9)

	rec := f.do(t, http.MethodPost, "/v1/runs", RunRequest{ProfileID: "aurora", Scenario: "x"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap llm.UsageSnapshot
	decodeInto(t, rec, &snap)
	assert.GreaterOrEqual(t, snap.Calls, int64(1))
	assert.Greater(t, snap.TotalTokens, 0)
}

func TestEventsEndpointStreamsRun(t *testing.T) {
	f := newFixture(t, 0.9)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		// Give the subscriber a moment to register before the run fires.
		time.Sleep(50 * time.Millisecond)
		_, _ = f.svc.Run(context.Background(), RunRequest{ProfileID: "aurora", Scenario: "x"})
	}()

	var kinds []converge.EventKind
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev converge.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil || ev.Kind == "" {
			continue
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == converge.EventRunFinished {
			break
		}
	}

	require.NotEmpty(t, kinds, "no events arrived before the deadline")
	assert.Equal(t, converge.EventRunStarted, kinds[0])
	assert.Equal(t, converge.EventRunFinished, kinds[len(kinds)-1])
}
