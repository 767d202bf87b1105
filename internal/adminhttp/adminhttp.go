// Copyright 2025 James Ross

// Package adminhttp serves the worker's admin HTTP surface: a liveness
// ping, a demo enqueue endpoint, and a storage file-server (spec.md 6
// "HTTP admin"). None of these routes are part of the core processing
// contract.
package adminhttp

import (
	"net/http"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/obs"
	"github.com/dclexplorer/consumer-processor/internal/queue"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the admin HTTP surface.
type Server struct {
	router   *mux.Router
	q        queue.Port
	storage  http.Handler
	log      *zap.Logger
	ready    func() bool
}

// New builds the admin router. storageDir is served read-only under
// /storage/ (spec.md 6 "GET /storage/*").
func New(q queue.Port, storageDir string, ready func() bool, log *zap.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		q:       q,
		storage: http.StripPrefix("/storage/", http.FileServer(http.Dir(storageDir))),
		log:     log,
		ready:   ready,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handlePing).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	s.router.HandleFunc("/add-queue", s.handleAddQueue).Methods(http.MethodPost)
	s.router.PathPrefix("/storage/").Handler(s.storage)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleAddQueue enqueues a hard-coded demo scene job to the in-memory
// queue (spec.md 6 "POST /add-queue"), useful for local smoke-testing
// without a real content deployment.
func (s *Server) handleAddQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job := queue.Job{
		EntityID:          "demo-" + time.Now().Format("150405"),
		EntityType:        queue.EntityScene,
		ContentServerUrls: []string{"https://peer.decentraland.org/content"},
	}
	if err := s.q.Publish(ctx, job, false); err != nil {
		s.log.Warn("add-queue publish failed", obs.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(job.EntityID))
}
