package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIClientDefaults(t *testing.T) {
	client := newAPIClient("", 0)
	assert.Equal(t, defaultAddr, client.addr)
	require.NotNil(t, client.httpClient)
}

func TestAPIClientWithTimeout(t *testing.T) {
	ctx := context.Background()
	var nilClient *apiClient
	ctxNoTimeout, cancel := nilClient.withTimeout(ctx)
	defer cancel()
	assert.Equal(t, ctx, ctxNoTimeout)

	client := &apiClient{timeout: 25 * time.Millisecond}
	ctxWithTimeout, cancelWithTimeout := client.withTimeout(ctx)
	defer cancelWithTimeout()
	_, ok := ctxWithTimeout.Deadline()
	assert.True(t, ok)
}

func TestDoJSONSetsHeadersAndDecodes(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"run-1","simulation_id":"sim-1","status":"QUEUED","start_time":"2026-01-02T15:04:05Z"}`))
	}))
	defer srv.Close()

	client := newAPIClient(strings.TrimPrefix(srv.URL, "http://"), time.Second)
	payload, err := client.doJSON(context.Background(), http.MethodPost, "/v1/simulations/sim-1/runs", runStartRequest{AdminUsername: "admin", AdminPassword: "secret"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/simulations/sim-1/runs", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "admin", gotBody["admin_username"])

	var run runResponse
	require.NoError(t, json.Unmarshal(payload, &run))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "QUEUED", run.Status)
}

func TestDoJSONOmitsBodyForNilPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		_, _ = w.Write([]byte(`{"simulations":[]}`))
	}))
	defer srv.Close()

	client := newAPIClient(strings.TrimPrefix(srv.URL, "http://"), time.Second)
	_, err := client.doJSON(context.Background(), http.MethodGet, "/v1/simulations", nil)
	require.NoError(t, err)
}

func TestDoJSONParsesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"simulation sim-x not found","code":"v1/simulation/not_found"}`))
	}))
	defer srv.Close()

	client := newAPIClient(strings.TrimPrefix(srv.URL, "http://"), time.Second)
	_, err := client.doJSON(context.Background(), http.MethodGet, "/v1/simulations/sim-x", nil)
	require.Error(t, err)
	assert.Equal(t, "simulation sim-x not found", err.Error())
}

func TestParseAPIErrorFallsBackToStatus(t *testing.T) {
	err := parseAPIError(http.StatusBadGateway, []byte("upstream exploded"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")

	err = parseAPIError(http.StatusServiceUnavailable, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestPrettyPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, prettyPrintJSON(&buf, []byte(`{"id":"abc","status":"QUEUED"}`)))
	assert.Equal(t, "{\n  \"id\": \"abc\",\n  \"status\": \"QUEUED\"\n}\n", buf.String())
}
