package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-processor/internal/dataset"
	"github.com/jonathan/contract-processor/internal/rendering"
	"github.com/jonathan/contract-processor/internal/server/ratelimit"
	"github.com/jonathan/contract-processor/internal/storage"
	"github.com/jonathan/contract-processor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDataset = `
defaultTemplate: standard
tagTemplates:
  cardiology: cardio
providers:
  - id: p1
    name: Jane Doe
    fte: 0.8
    baseSalary: 250000
  - id: p2
    name: John Roe
    templateTag: cardiology
  - id: p3
    name: Ann Poe
templates:
  - id: standard
    name: Standard
    contractYear: "2026"
    content: "<p>FTE: {{FTE}}, Pay: {{Salary}}</p>"
  - id: cardio
    name: Cardiology
    content: "<p>{{ProviderName}}</p>"
  - id: addendum
    name: Addendum
    content: "<p>{{FTE}} {{Bonus}}</p>"
mappings:
  addendum:
    - placeholder: FTE
      mappingType: field
      mappedColumn: fte
  standard:
    - placeholder: FTE
      mappingType: field
      mappedColumn: fte
    - placeholder: Salary
      mappingType: field
      mappedColumn: baseSalary
dynamicBlocks:
  - id: prod
    name: Productivity
`

type testEnv struct {
	server *Server
	router http.Handler
	token  string
	logs   *dataset.LogBook
	blobs  *storage.FileStore
}

func newTestEnv(t *testing.T, mutate ...func(*Config, *Dependencies)) *testEnv {
	t.Helper()

	ds, err := dataset.Parse([]byte(testDataset), true)
	require.NoError(t, err)

	signer, err := storage.NewSigner(testSecret, time.Minute, "http://localhost/files")
	require.NoError(t, err)
	blobs, err := storage.NewFileStore(t.TempDir(), signer)
	require.NoError(t, err)

	auth := setupTestJWTService(t, 1)
	logs := dataset.NewLogBook()

	cfg := Config{DefaultTemplate: ds.DefaultTemplate, BatchSize: 2, StatusRetryDelay: time.Millisecond}
	deps := Dependencies{
		Records:   ds,
		Logs:      logs,
		Blobs:     blobs,
		Converter: rendering.HTMLConverter{},
		Auth:      auth,
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}

	s, err := New(cfg, deps)
	require.NoError(t, err)

	token, err := auth.GenerateToken("test-client")
	require.NoError(t, err)

	return &testEnv{server: s, router: s.Handler(), token: token, logs: logs, blobs: blobs}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// waitForRun blocks until the run finishes.
func (e *testEnv) waitForRun(t *testing.T, id uuid.UUID) {
	t.Helper()
	state, ok := e.server.runs.get(id)
	require.True(t, ok)
	select {
	case <-state.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run %s did not finish", id)
	}
}

func TestNew_RequiresRecords(t *testing.T) {
	_, err := New(Config{}, Dependencies{})
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

// unreachableRecords is a dataset whose backing connection is down.
type unreachableRecords struct {
	*dataset.Dataset
}

func (unreachableRecords) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthEndpoint_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t, func(_ *Config, d *Dependencies) {
		d.Records = unreachableRecords{d.Records.(*dataset.Dataset)}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decode[map[string]string](t, w)["status"])
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Preflight requests pass without credentials
	req = httptest.NewRequest(http.MethodOptions, "/generations", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestAPI_AuthDisabled(t *testing.T) {
	env := newTestEnv(t, func(_ *Config, d *Dependencies) { d.Auth = nil })

	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name         string
		req          types.PreviewRequest
		wantStatus   int
		wantTemplate string
		wantStrategy string
		wantContent  string
	}{
		{
			name:         "default template with mappings",
			req:          types.PreviewRequest{ProviderID: "p1"},
			wantStatus:   http.StatusOK,
			wantTemplate: "standard",
			wantStrategy: "mapping",
			wantContent:  "<p>FTE: 0.80, Pay: $250,000</p>",
		},
		{
			name:         "tag template without mappings uses legacy",
			req:          types.PreviewRequest{ProviderID: "p2"},
			wantStatus:   http.StatusOK,
			wantTemplate: "cardio",
			wantStrategy: "legacy",
		},
		{
			name:         "explicit template and legacy flag",
			req:          types.PreviewRequest{ProviderID: "p1", TemplateID: "standard", Legacy: true},
			wantStatus:   http.StatusOK,
			wantTemplate: "standard",
			wantStrategy: "legacy",
		},
		{name: "missing provider id", req: types.PreviewRequest{}, wantStatus: http.StatusBadRequest},
		{name: "unknown provider", req: types.PreviewRequest{ProviderID: "ghost"}, wantStatus: http.StatusNotFound},
		{name: "unknown template", req: types.PreviewRequest{ProviderID: "p1", TemplateID: "ghost"}, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/preview", tt.req)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			resp := decode[PreviewResponse](t, w)
			assert.Equal(t, tt.wantTemplate, resp.TemplateID)
			assert.Equal(t, tt.wantStrategy, resp.Strategy)
			assert.NotContains(t, resp.Content, "{{")
			assert.NotNil(t, resp.Warnings)
			if tt.wantContent != "" {
				assert.Equal(t, tt.wantContent, resp.Content)
				assert.Equal(t, "FTE: 0.80, Pay: $250,000", resp.Text)
			}
		})
	}
}

func TestPreview_ReportsUnmappedPlaceholders(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/preview", types.PreviewRequest{ProviderID: "p1", TemplateID: "addendum"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[PreviewResponse](t, w)
	assert.Equal(t, []string{"FTE", "Bonus"}, resp.Placeholders)
	assert.Equal(t, []string{"Bonus"}, resp.Unmapped)
	assert.Equal(t, "<p>0.80 N/A</p>", resp.Content)

	w = env.do(t, http.MethodPost, "/preview", types.PreviewRequest{ProviderID: "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[PreviewResponse](t, w)
	assert.Equal(t, []string{"FTE", "Salary"}, resp.Placeholders)
	assert.Empty(t, resp.Unmapped)
}

func TestUnmappedPlaceholders(t *testing.T) {
	placeholders := []string{"Name", "FTE"}
	assert.Equal(t, []string{}, unmappedPlaceholders(placeholders, nil))
	assert.Equal(t, []string{"Name", "FTE"}, unmappedPlaceholders(placeholders, []types.FieldMapping{}))
	assert.Equal(t, []string{"Name"}, unmappedPlaceholders(placeholders, []types.FieldMapping{{Placeholder: "{{FTE}}"}}))
}

func TestPreview_NoTemplateAssigned(t *testing.T) {
	env := newTestEnv(t, func(c *Config, _ *Dependencies) { c.DefaultTemplate = "" })

	w := env.do(t, http.MethodPost, "/preview", types.PreviewRequest{ProviderID: "p3"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "No template assigned")
}

func TestGeneration_AsyncRunLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/generations", map[string]any{
		"provider_ids": []string{"p1", "p2", "p3", "ghost"},
		"run_date":     "2026-07-01",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	created := decode[GenerationResponse](t, w)
	assert.Equal(t, 3, created.Total)
	assert.Equal(t, []string{"ghost"}, created.UnknownProviderIDs)

	env.waitForRun(t, created.RunID)

	w = env.do(t, http.MethodGet, "/generations/"+created.RunID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[RunView](t, w)
	assert.Equal(t, "completed", view.Status)
	require.NotNil(t, view.Result)
	assert.Len(t, view.Result.Successful, 3)
	assert.Equal(t, 3, view.Progress.Processed)
	assert.Equal(t, "Complete", view.Progress.CurrentOperation)
	assert.Equal(t, "2026_Jane_Doe_2026-07-01.html", view.Result.Successful[0].FileName)

	// Listing includes the run
	w = env.do(t, http.MethodGet, "/generations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.RunID.String())

	// Finished runs cannot be cancelled
	w = env.do(t, http.MethodPost, "/generations/"+created.RunID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Logs were written for every provider
	w = env.do(t, http.MethodGet, "/logs?run_id="+created.RunID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[types.GenerationLogPage](t, w)
	assert.Len(t, page.Logs, 3)

	// Archive as JSON, then fetched through the signed URL
	w = env.do(t, http.MethodGet, "/generations/"+created.RunID.String()+"/archive?redirect=false", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	signed := decode[storage.SignedURL](t, w)
	assert.True(t, strings.HasPrefix(signed.URL, "http://localhost/files/"))

	req := httptest.NewRequest(http.MethodGet, "/files/"+signed.Token, nil)
	fw := httptest.NewRecorder()
	env.router.ServeHTTP(fw, req)
	require.Equal(t, http.StatusOK, fw.Code)
	assert.Equal(t, "application/zip", fw.Header().Get("Content-Type"))
	assert.Contains(t, fw.Header().Get("Content-Disposition"), "contracts_2026-07-01.zip")
	assert.True(t, bytes.HasPrefix(fw.Body.Bytes(), []byte("PK")))

	// Default archive response redirects
	w = env.do(t, http.MethodGet, "/generations/"+created.RunID.String()+"/archive", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "http://localhost/files/"))
}

func TestGeneration_InvalidRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"no providers", map[string]any{"provider_ids": []string{}}, http.StatusBadRequest},
		{"bad run date", map[string]any{"provider_ids": []string{"p1"}, "run_date": "07/01/2026"}, http.StatusBadRequest},
		{"bad batch size", map[string]any{"provider_ids": []string{"p1"}, "batch_size": -1}, http.StatusBadRequest},
		{"only unknown providers", map[string]any{"provider_ids": []string{"ghost"}}, http.StatusNotFound},
		{"not JSON", "nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/generations", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestGeneration_UnknownRun(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New().String()

	for _, target := range []string{"/generations/" + id, "/generations/" + id + "/archive"} {
		w := env.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, target)
	}
	w := env.do(t, http.MethodPost, "/generations/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/generations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGeneration_Stream(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/generations/stream", map[string]any{
		"provider_ids": []string{"p1", "p2", "p3"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	// Batch size 2: two batch events plus archive and final
	assert.GreaterOrEqual(t, strings.Count(body, "event: progress"), 2)
	assert.Contains(t, body, "event: result")
	assert.Contains(t, body, "event: complete")
	assert.Contains(t, body, `"status":"completed"`)
	assert.Less(t, strings.Index(body, "event: result"), strings.Index(body, "event: complete"))
}

func TestLogs_ListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	runID := uuid.New()
	for i, status := range []string{types.GenerationStatusSuccess, types.GenerationStatusSkipped, types.GenerationStatusError} {
		require.NoError(t, env.logs.CreateGenerationLog(ctx, &types.GenerationLog{
			RunID:      runID,
			ProviderID: string(rune('a' + i)),
			Status:     status,
		}))
	}

	w := env.do(t, http.MethodGet, "/logs?status=skipped", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[types.GenerationLogPage](t, w)
	require.Len(t, page.Logs, 1)
	skipped := page.Logs[0]

	w = env.do(t, http.MethodGet, "/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[types.GenerationLogPage](t, w)
	assert.Len(t, page.Logs, 2)
	require.NotEmpty(t, page.NextPageToken)

	w = env.do(t, http.MethodGet, "/logs?limit=2&page_token="+page.NextPageToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[types.GenerationLogPage](t, w).Logs, 1)

	w = env.do(t, http.MethodDelete, "/logs/"+skipped.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, "/logs/"+skipped.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogs_InvalidQuery(t *testing.T) {
	env := newTestEnv(t)

	for _, query := range []string{"run_id=abc", "status=done", "limit=0", "limit=x", "page_token=***"} {
		w := env.do(t, http.MethodGet, "/logs?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
	w := env.do(t, http.MethodDelete, "/logs/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFiles_ExpiredAndInvalid(t *testing.T) {
	env := newTestEnv(t)

	// A nanosecond TTL makes every URL expire immediately
	signer, err := storage.NewSigner(testSecret, time.Nanosecond, "http://localhost/files")
	require.NoError(t, err)
	expired, err := signer.Sign("runs/r1/archive.zip")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/files/"+expired.Token, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusGone, w.Code)
	resp := decode[map[string]any](t, w)
	assert.True(t, strings.HasPrefix(resp["url"].(string), "http://localhost/files/"))

	req = httptest.NewRequest(http.MethodGet, "/files/not-a-token", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Authentic token for a blob that was never written
	missing, err := env.blobs.URL("runs/r1/missing.zip")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/files/"+missing.Token, nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClearBlockCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.server.cache.Load(ctx, "prod", env.server.records)
	require.NoError(t, err)
	require.Equal(t, 1, env.server.cache.Len())

	w := env.do(t, http.MethodPost, "/dynamic-blocks/cache/clear?id=prod", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.server.cache.Len())

	_, err = env.server.cache.Load(ctx, "prod", env.server.records)
	require.NoError(t, err)
	w = env.do(t, http.MethodPost, "/dynamic-blocks/cache/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["cleared"])
	assert.Equal(t, 0, env.server.cache.Len())
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		CleanupInterval: time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{
			{Path: "/preview", Method: "POST", Limit: 1, Window: time.Hour, Burst: 1},
		},
	})
	t.Cleanup(limiter.Stop)
	env := newTestEnv(t, func(_ *Config, d *Dependencies) { d.RateLimiter = limiter })

	w := env.do(t, http.MethodPost, "/preview", types.PreviewRequest{ProviderID: "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = env.do(t, http.MethodPost, "/preview", types.PreviewRequest{ProviderID: "p1"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode[map[string]any](t, w)["error"])

	// Health is never limited
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		hw := httptest.NewRecorder()
		env.router.ServeHTTP(hw, req)
		assert.Equal(t, http.StatusOK, hw.Code)
	}
}

func TestRunRegistry_PrunesFinishedRuns(t *testing.T) {
	reg := newRunRegistry()
	running := reg.start(1)
	for range maxFinishedRuns + 5 {
		reg.start(1).finish(nil, nil)
	}
	// Pruning happens on the next start
	reg.start(1)

	_, ok := reg.get(running.id)
	assert.True(t, ok, "running runs are kept")
	assert.LessOrEqual(t, len(reg.list()), maxFinishedRuns+2)
}

func TestMissingIDs(t *testing.T) {
	found := []types.Provider{{ID: "a"}, {ID: "c"}}
	assert.Equal(t, []string{"b", "d"}, missingIDs([]string{"a", "b", "c", "d"}, found))
	assert.Nil(t, missingIDs([]string{"a"}, found))
}
