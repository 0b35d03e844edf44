package health_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-triage/internal/health"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newChecker(live *health.Liveness) *health.Checker {
	return health.NewChecker(live, "imap.example.com", "ollama").WithClock(func() time.Time { return now })
}

func TestCheck(t *testing.T) {
	cases := []struct {
		name        string
		lastSuccess *time.Time
		processing  bool
		wantStatus  health.Status
		wantDesc    string
	}{
		{
			name:       "never succeeded",
			processing: true,
			wantStatus: health.StatusDegraded,
			wantDesc:   "No successful processing runs yet",
		},
		{
			name:        "recent success",
			lastSuccess: ptr(now.Add(-5 * time.Minute)),
			wantStatus:  health.StatusHealthy,
			wantDesc:    "Last successful run 5 minutes ago",
		},
		{
			name:        "exactly one hour",
			lastSuccess: ptr(now.Add(-time.Hour)),
			wantStatus:  health.StatusHealthy,
			wantDesc:    "Last successful run 60 minutes ago",
		},
		{
			name:        "stale",
			lastSuccess: ptr(now.Add(-90 * time.Minute)),
			wantStatus:  health.StatusUnhealthy,
			wantDesc:    "Last successful run was 90 minutes ago",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			live := health.NewLiveness()
			live.SetProcessing(tc.processing)
			if tc.lastSuccess != nil {
				live.ReportSuccess(*tc.lastSuccess)
			}

			r := newChecker(live).Check()
			assert.Equal(t, tc.wantStatus, r.Status)
			assert.Equal(t, tc.wantDesc, r.Description)
			assert.Equal(t, tc.processing, r.Data["isProcessing"])
			assert.Equal(t, "imap.example.com", r.Data["emailHost"])
			assert.Equal(t, "ollama", r.Data["aiProvider"])

			if tc.lastSuccess == nil {
				assert.Equal(t, "never", r.Data["lastSuccessfulRun"])
			} else {
				assert.Equal(t, tc.lastSuccess.Format(time.RFC3339), r.Data["lastSuccessfulRun"])
			}
		})
	}
}

func TestLiveness(t *testing.T) {
	live := health.NewLiveness()
	_, ok := live.LastSuccess()
	assert.False(t, ok)
	assert.False(t, live.Processing())

	live.SetProcessing(true)
	live.ReportSuccess(now)
	got, ok := live.LastSuccess()
	require.True(t, ok)
	assert.True(t, now.Equal(got))
	assert.True(t, live.Processing())
}

type refresherMock struct {
	calls int
}

func (r *refresherMock) RefreshNow() { r.calls++ }

func TestHandlerRoutes(t *testing.T) {
	live := health.NewLiveness()
	refresher := &refresherMock{}
	app := health.NewApp(health.NewHandler(newChecker(live), refresher))

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	var report health.Report
	decode(t, resp.Body, &report)
	assert.Equal(t, health.StatusDegraded, report.Status)

	resp, err = app.Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)

	live.ReportSuccess(now.Add(-2 * time.Minute))

	resp, err = app.Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	live.ReportSuccess(now.Add(-2 * time.Hour))
	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
	decode(t, resp.Body, &report)
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Equal(t, "Last successful run was 120 minutes ago", report.Description)

	resp, err = app.Test(httptest.NewRequest("POST", "/refresh", nil))
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, 1, refresher.calls)
}

func TestRefreshRouteNeedsRefresher(t *testing.T) {
	app := health.NewApp(health.NewHandler(newChecker(health.NewLiveness()), nil))

	resp, err := app.Test(httptest.NewRequest("POST", "/refresh", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func decode(t *testing.T, r io.Reader, v any) {
	t.Helper()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, v))
}

func ptr(t time.Time) *time.Time { return &t }
