package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guiagents/harness/internal/config"
	"github.com/guiagents/harness/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func writeSampleParquet(t *testing.T, path string) {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "image", Type: arrow.BinaryTypes.Binary, Nullable: true},
		{Name: "instruction", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "gt_bbox", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64), Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.BinaryBuilder).Append([]byte{0x89})
	b.Field(1).(*array.StringBuilder).Append("tap the back button")
	lb := b.Field(2).(*array.ListBuilder)
	lb.Append(true)
	vb := lb.ValueBuilder().(*array.Float64Builder)
	for _, v := range []float64{4, 8, 15, 16} {
		vb.Append(v)
	}

	rec := b.NewRecord()
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, pqarrow.WriteTable(tbl, f, 1024,
		parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()))
}

func fakeTrainer(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trainer.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func testServer(t *testing.T) (*Server, *gin.Engine, *config.Config) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dataDir := t.TempDir()
	writeSampleParquet(t, filepath.Join(dataDir, "android_low.parquet"))

	cfg := config.Default()
	cfg.Model.Path = "/models/qwen2.5-vl-3b"
	cfg.Data.Dir = dataDir
	cfg.Data.TrainFiles = []string{filepath.Join(dataDir, "android_low.parquet")}
	cfg.Trainer.ExperimentName = "exp"
	cfg.Trainer.LogDir = t.TempDir()

	srv := NewServer(cfg, st)
	srv.launcher.Output = &bytes.Buffer{}
	return srv, srv.SetupRouter(), cfg
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	_, r, _ := testServer(t)
	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLaunchStopFlow(t *testing.T) {
	srv, r, cfg := testServer(t)
	cfg.Trainer.Python = fakeTrainer(t, "exec sleep 30")

	w := doJSON(t, r, http.MethodPost, "/runs", map[string]string{"experiment_name": "api_exp"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var launched struct {
		ID         string `json:"id"`
		Experiment string `json:"experiment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &launched))
	assert.Equal(t, "api_exp", launched.Experiment)

	// Second launch while active conflicts.
	w = doJSON(t, r, http.MethodPost, "/runs", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Stop it and wait for the reaper to record the terminal state.
	w = doJSON(t, r, http.MethodPost, "/runs/"+launched.ID+"/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, srv.active)
	require.NoError(t, srv.active.Wait())

	w = doJSON(t, r, http.MethodGet, "/runs/"+launched.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec store.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, store.StatusStopped, rec.Status)

	// Stopping again is a conflict; the run is gone.
	w = doJSON(t, r, http.MethodPost, "/runs/"+launched.ID+"/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLaunch_InvalidConfig(t *testing.T) {
	_, r, cfg := testServer(t)
	cfg.Model.Path = ""

	w := doJSON(t, r, http.MethodPost, "/runs", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRun_NotFound(t *testing.T) {
	_, r, _ := testServer(t)
	w := doJSON(t, r, http.MethodGet, "/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRuns(t *testing.T) {
	srv, r, _ := testServer(t)
	require.NoError(t, srv.store.SaveRun(context.Background(), &store.Run{
		ID: "r1", Experiment: "e", ConfigJSON: "{}", Status: store.StatusSucceeded,
		StartedAt: time.Now().UTC(),
	}))

	w := doJSON(t, r, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"r1"`)
}

func TestDatasetEndpoints(t *testing.T) {
	_, r, _ := testServer(t)

	w := doJSON(t, r, http.MethodGet, "/datasets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "android_low")

	w = doJSON(t, r, http.MethodGet, "/datasets/android_low", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rows":1`)

	w = doJSON(t, r, http.MethodGet, "/datasets/android_low/sample?index=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<binary data>")
	assert.Contains(t, w.Body.String(), "tap the back button")

	w = doJSON(t, r, http.MethodGet, "/datasets/android_low/sample?index=9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/datasets/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The loader's directory wildcard is not addressable as a dataset.
	for _, path := range []string{"/datasets/all", "/datasets/all/sample"} {
		w = doJSON(t, r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, w.Body.String(), "No such dataset")
	}
}
