package callerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dfmap/dfmap/internal/api"
	"github.com/dfmap/dfmap/internal/config"
	"github.com/dfmap/dfmap/internal/storage"
	"github.com/dfmap/dfmap/internal/storage/memory"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, store storage.Backend) (*httptest.Server, *api.Client) {
	t.Helper()
	srv := httptest.NewServer(New(store, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv, api.New(srv.URL, 5*time.Second)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t, memory.New(config.MemoryConfig{}, zerolog.Nop()))

	require.NoError(t, client.Healthcheck(ctx))

	created, err := client.CreateSignal(ctx, core.CallerRecord{
		Channel:   "16",
		RFF1:      "RFF-1",
		Bearing1:  core.Float(45),
		Fix:       core.Placeholder,
		StartTime: "2025-03-01T12:00:00Z",
		StopTime:  core.Placeholder,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	_, err = client.CreateSignal(ctx, core.CallerRecord{RFF1: "RFF-2", StartTime: "2025-03-01T10:00:00Z"})
	require.NoError(t, err)

	all, err := client.FetchCallers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	recent, err := client.FetchCallersSince(ctx, time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, created.ID, recent[0].ID)

	fix := "confirmed"
	require.NoError(t, client.UpdateSignal(ctx, created.ID, core.SignalUpdate{Fix: &fix}))
	recent, err = client.FetchCallersSince(ctx, time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "confirmed", recent[0].Fix)

	require.NoError(t, client.DeleteSignal(ctx, created.ID))
	err = client.DeleteSignal(ctx, created.ID)
	assert.ErrorIs(t, err, api.ErrStatus)

	all, err = client.FetchCallers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRFFs(t *testing.T) {
	ctx := context.Background()
	srv, client := newTestServer(t, memory.New(config.MemoryConfig{}, zerolog.Nop()))

	sites, err := client.FetchRFFs(ctx)
	require.NoError(t, err)
	assert.Empty(t, sites)

	body := `{"id":"RFF-1","name":"Alpha","lat":1.5,"lng":-2}`
	resp, err := http.Post(srv.URL+"/caller/RFFs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sites, err = client.FetchRFFs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.RFFSite{{ID: "RFF-1", Name: "Alpha", Lat: 1.5, Lng: -2}}, sites)
}

func TestEnvelopeShape(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(config.MemoryConfig{}, zerolog.Nop()))

	resp, err := http.Get(srv.URL + "/caller/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.EqualValues(t, 200, envelope["code"])
	assert.Equal(t, "Callers retrieved", envelope["message"])
	data, ok := envelope["data"].([]any)
	require.True(t, ok)
	assert.Len(t, data, 1)
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

func TestBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(config.MemoryConfig{}, zerolog.Nop()))

	resp, err := http.Get(srv.URL + "/caller/?starttime=yesterday")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid starttime", decodeError(t, resp).Message)

	resp, err = http.Post(srv.URL+"/caller/", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 400, decodeError(t, resp).Code)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/caller/abc", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp).Error, "no fields")

	req, err = http.NewRequest(http.MethodPut, srv.URL+"/caller/abc", bytes.NewReader([]byte(`{"fix":"x"}`)))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingStore struct {
	storage.Backend
}

func (failingStore) ListCallers(context.Context) ([]core.CallerRecord, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailure(t *testing.T) {
	var buf lockedBuffer
	srv := httptest.NewServer(New(failingStore{}, zerolog.New(&buf)).Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/caller/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	e := decodeError(t, resp)
	assert.Equal(t, "disk on fire", e.Error)

	_, err = api.New(srv.URL, time.Second).FetchCallers(context.Background())
	assert.ErrorIs(t, err, api.ErrStatus)
	assert.Contains(t, buf.String(), "failed to list callers")
}
