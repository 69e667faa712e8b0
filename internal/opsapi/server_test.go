package opsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pricebot/internal/engagement"
	"pricebot/internal/metrics"
	"pricebot/internal/notifier/broadcast"
	"pricebot/internal/storage"
	logx "pricebot/pkg/logx"
)

type noUnsub struct{}

func (noUnsub) Unsubscribe(context.Context, int64) bool { return false }

type fixedJobs map[int64]broadcast.JobStatus

func (f fixedJobs) Status(id int64) (broadcast.JobStatus, bool) {
	st, ok := f[id]
	return st, ok
}

func (f fixedJobs) Jobs() []broadcast.JobStatus {
	out := make([]broadcast.JobStatus, 0, len(f))
	for _, st := range f {
		out = append(out, st)
	}
	return out
}

func newTestServer(t *testing.T) (*Server, int64) {
	t.Helper()
	ctx := context.Background()
	st := storage.New(ctx, storage.NewMemoryBackend(), logx.Nop())
	st.UpsertSubscriber(ctx, 10, "ann", "Ann", "")
	st.UpsertSubscriber(ctx, 11, "bob", "Bob", "")
	pl := st.AddPriceList(ctx, "file-1", "april.pdf", 1)
	cid := st.CreateCampaign(ctx, pl, 1)
	for _, uid := range []int64{10, 11} {
		st.RecordDeliveryAttempt(ctx, cid, uid)
		st.MarkDelivered(ctx, cid, uid)
	}
	st.CompleteCampaign(ctx, cid, 2, 0)
	st.RecordOpen(ctx, cid, 10, "button")

	m := metrics.New()
	tr := engagement.New(st, noUnsub{}, m, logx.Nop())
	jobs := fixedJobs{cid: {ID: "job-1", CampaignID: cid, Total: 2, Processed: 2, Sent: 2}}
	return New(Deps{Reports: tr, Jobs: jobs, Metrics: m}), cid
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestHealthzNotReady(t *testing.T) {
	s := New(Deps{Ready: func() bool { return false }})
	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestStats(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var got storage.OverallStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 2, got.Subscribers.Total)
	require.Equal(t, 1, got.TotalCampaigns)
	require.Equal(t, 2, got.TotalSent)
	require.Equal(t, 1, got.TotalOpened)
	require.Equal(t, 50.0, got.AvgOpenRate)
}

func TestCampaignList(t *testing.T) {
	s, cid := newTestServer(t)
	rec := get(t, s, "/api/campaigns?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Count   int                         `json:"count"`
		Results []engagement.CampaignReport `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 1, got.Count)
	require.Equal(t, cid, got.Results[0].Campaign.ID)
	require.Equal(t, "april.pdf", got.Results[0].FileName)
}

func TestCampaignDetail(t *testing.T) {
	s, cid := newTestServer(t)
	rec := get(t, s, fmt.Sprintf("/api/campaigns/%d", cid))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Stats storage.CampaignStats `json:"stats"`
		Job   *broadcast.JobStatus  `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 2, got.Stats.Delivered)
	require.Equal(t, 1, got.Stats.Opened)
	require.NotNil(t, got.Job)
	require.Equal(t, cid, got.Job.CampaignID)
}

func TestCampaignDetailErrors(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusNotFound, get(t, s, "/api/campaigns/99").Code)
	require.Equal(t, http.StatusBadRequest, get(t, s, "/api/campaigns/abc").Code)
}

func TestPprofRequiresToken(t *testing.T) {
	s := New(Deps{Pprof: PprofConfig{Enabled: true, Token: "s3cret", Addr: "127.0.0.1:9000"}})

	require.Equal(t, http.StatusBadRequest, get(t, s, "/debug/pprof/cmdline").Code)
	require.Equal(t, http.StatusUnauthorized, get(t, s, "/debug/pprof/cmdline?token=nope").Code)
	require.Equal(t, http.StatusOK, get(t, s, "/debug/pprof/cmdline?token=s3cret").Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPprofRefusedOnPublicAddrWithoutToken(t *testing.T) {
	s := New(Deps{Pprof: PprofConfig{Enabled: true, Addr: "0.0.0.0:9000"}})
	require.Equal(t, http.StatusNotFound, get(t, s, "/debug/pprof/cmdline").Code)
}

func TestIsLoopbackAddr(t *testing.T) {
	require.True(t, isLoopbackAddr("127.0.0.1:8080"))
	require.True(t, isLoopbackAddr("localhost:8080"))
	require.True(t, isLoopbackAddr("[::1]:8080"))
	require.False(t, isLoopbackAddr(":8080"))
	require.False(t, isLoopbackAddr("10.0.0.5:8080"))
}
