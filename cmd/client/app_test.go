package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		level   string
		wantErr bool
	}{
		{name: "stderr", level: "info"},
		{name: "debug level", level: "debug"},
		{name: "rotated file", file: "client.log", level: "warn"},
		{name: "invalid level", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := tt.file
			if file != "" {
				file = filepath.Join(t.TempDir(), file)
			}
			logger, closeLog, err := newLogger(file, tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Error("test message")
			closeLog()

			if file != "" {
				data, err := os.ReadFile(file)
				require.NoError(t, err)
				assert.Contains(t, string(data), "test message")
			}
		})
	}
}

func TestOpenDatabase(t *testing.T) {
	for _, backend := range []string{backendBolt, backendSQLite} {
		db, err := openDatabase(backend, filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		assert.NotNil(t, db)
	}

	_, err := openDatabase("redis", "x")
	assert.Error(t, err)
}

const testConfig = `
sync:
  full_sync_workers: 1
collections:
  - name: tasks
    version: 1.0.0
    indices:
      - name: by_owner
        path: owner
`

func TestApp_SyncAndStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/sync/check":
			_, _ = w.Write([]byte(`{"results":{"tasks":{"strategy":"full","timestamp":9}},"timestamp":9}`))
		case "/api/v1/collections/tasks/records":
			_, _ = w.Write([]byte(`{"records":[{"_id":"t1","__created":1,"__updated":5,"owner":"ann"}],"timestamp":9}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "collections.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o600))

	ctx := context.Background()
	a, err := newApp(ctx, options{
		configPath: configPath,
		dbPath:     filepath.Join(dir, "client.db"),
		backend:    backendBolt,
		serverURL:  server.URL,
		registerer: prometheus.NewRegistry(),
	}, slog.Default())
	require.NoError(t, err)
	defer a.close()

	var status bytes.Buffer
	require.NoError(t, a.printStatus(ctx, &status))
	assert.Contains(t, status.String(), "no-data")

	var out bytes.Buffer
	require.NoError(t, a.syncOnce(ctx, &out))
	assert.Contains(t, out.String(), "Full: tasks")

	status.Reset()
	require.NoError(t, a.printStatus(ctx, &status))
	assert.Contains(t, status.String(), "contains-data")
	assert.Contains(t, status.String(), "5")
}

func TestNewApp_Errors(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "collections.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o600))

	tests := []struct {
		name string
		opts options
	}{
		{
			name: "missing config",
			opts: options{configPath: filepath.Join(dir, "missing.yaml"), serverURL: "http://localhost"},
		},
		{
			name: "no server",
			opts: options{configPath: configPath, backend: backendBolt, dbPath: filepath.Join(dir, "a.db")},
		},
		{
			name: "unknown backend",
			opts: options{configPath: configPath, backend: "redis", serverURL: "http://localhost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.registerer = prometheus.NewRegistry()
			_, err := newApp(context.Background(), tt.opts, slog.Default())
			assert.Error(t, err)
		})
	}
}
