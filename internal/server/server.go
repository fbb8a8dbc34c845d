package server

import (
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/guiagents/harness/internal/config"
	"github.com/guiagents/harness/internal/launcher"
	"github.com/guiagents/harness/internal/store"
)

// Server exposes the harness over HTTP: launching and stopping trainer runs,
// browsing the run registry, and inspecting the parquet datasets the runs
// consume. One active run per process; the wrapped trainer owns every GPU on
// the node, so overlapping runs would only deadlock on memory.
type Server struct {
	cfg      *config.Config
	store    store.RunStore
	launcher *launcher.Launcher

	mu     sync.Mutex
	active *launcher.Run
}

func NewServer(cfg *config.Config, st store.RunStore) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		launcher: &launcher.Launcher{Store: st},
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", s.Health)
	r.POST("/runs", s.LaunchRun)
	r.GET("/runs", s.ListRuns)
	r.GET("/runs/:id", s.GetRun)
	r.POST("/runs/:id/stop", s.StopRun)
	r.GET("/datasets", s.ListDatasets)
	r.GET("/datasets/:name", s.DatasetStats)
	r.GET("/datasets/:name/sample", s.DatasetSample)

	return r
}

// activeRun returns the live run, clearing it first if it already finished.
func (s *Server) activeRun() *launcher.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.Status() != store.StatusRunning {
		s.active = nil
	}
	return s.active
}
