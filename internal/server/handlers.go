package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/guiagents/harness/internal/dataset"
	"github.com/guiagents/harness/internal/store"
)

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type LaunchRequest struct {
	ExperimentName string `json:"experiment_name"`
	ModelPath      string `json:"model_path"`
	SystemPrompt   string `json:"system_prompt"`
}

func (s *Server) LaunchRun(c *gin.Context) {
	var req LaunchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.Status() == store.StatusRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "A run is already active", "run_id": s.active.ID})
		return
	}

	// Copy the base config, then apply per-request overrides.
	cfg := *s.cfg
	if req.ExperimentName != "" {
		cfg.Trainer.ExperimentName = req.ExperimentName
	}
	if req.ModelPath != "" {
		cfg.Model.Path = req.ModelPath
	}
	if req.SystemPrompt != "" {
		cfg.Data.SystemPrompt = req.SystemPrompt
	}

	// The run must outlive this request, so it does not inherit the
	// request context.
	run, err := s.launcher.Start(context.Background(), &cfg)
	if err != nil {
		log.Printf("Failed to launch run: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.active = run

	c.JSON(http.StatusAccepted, gin.H{
		"id":         run.ID,
		"experiment": run.Experiment,
		"pid":        run.PID,
		"log_path":   run.LogPath,
	})
}

func (s *Server) ListRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(c.Request.Context())
	if err != nil {
		log.Printf("Failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) GetRun(c *gin.Context) {
	run, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	if err != nil {
		log.Printf("Failed to get run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) StopRun(c *gin.Context) {
	id := c.Param("id")
	active := s.activeRun()
	if active == nil || active.ID != id {
		c.JSON(http.StatusConflict, gin.H{"error": "Run is not active"})
		return
	}
	active.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopping", "id": id})
}

func (s *Server) ListDatasets(c *gin.Context) {
	if s.cfg.Data.Dir == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No data.dir configured"})
		return
	}
	datasets, loadErrs, err := dataset.LoadDir(c.Request.Context(), s.cfg.Data.Dir, "all")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, gin.H{"name": ds.Name, "rows": ds.Len(), "columns": ds.Columns})
	}
	failed := gin.H{}
	for stem, lerr := range loadErrs {
		failed[stem] = lerr.Error()
	}
	c.JSON(http.StatusOK, gin.H{"datasets": out, "failed": failed})
}

func (s *Server) DatasetStats(c *gin.Context) {
	ds, ok := s.loadDataset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": ds.Name, "stats": dataset.Analyze(ds)})
}

func (s *Server) DatasetSample(c *gin.Context) {
	ds, ok := s.loadDataset(c)
	if !ok {
		return
	}
	index := 0
	if v := c.Query("index"); v != "" {
		var err error
		if index, err = strconv.Atoi(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid index"})
			return
		}
	}
	sample := ds.Sample(index)
	if sample == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sample index out of range", "rows": ds.Len()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": ds.Name, "index": index, "sample": sample})
}

func (s *Server) loadDataset(c *gin.Context) (*dataset.Dataset, bool) {
	if s.cfg.Data.Dir == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No data.dir configured"})
		return nil, false
	}
	name := c.Param("name")
	// "all" is LoadDir's wildcard, not a dataset; letting it through would
	// answer with the first file's data under the wrong name.
	if name == "all" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No such dataset: all"})
		return nil, false
	}
	datasets, _, err := dataset.LoadDir(c.Request.Context(), s.cfg.Data.Dir, name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	if len(datasets) == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Dataset failed to load"})
		return nil, false
	}
	return datasets[0], true
}
