// Package server provides the preview server: a REST and WebSocket
// JSON-RPC surface that builds toolpaths from G-code fed chunk by chunk.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"gcode-toolpath/pkg/config"
	"gcode-toolpath/pkg/errors"
	"gcode-toolpath/pkg/gcode"
	"gcode-toolpath/pkg/log"
	"gcode-toolpath/pkg/metrics"
	"gcode-toolpath/pkg/pool"
	"gcode-toolpath/pkg/toolpath"
)

// DefaultChunkLines is the number of lines handed to a job per Execute
// when a request body is streamed.
const DefaultChunkLines = 5000

// Server holds toolpath jobs and serves them over HTTP and WebSocket.
type Server struct {
	cfg        config.ToolpathConfig
	chunkLines int

	jobs    *jobStore
	metrics *metrics.ToolpathMetrics
	logger  *log.Logger

	// HTTP server
	httpServer *http.Server
	addr       string

	// WebSocket management
	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*WSClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	running atomic.Bool
}

// Config holds server configuration.
type Config struct {
	// HTTP address to listen on (e.g., ":7130"). Defaults to
	// Toolpath.ServerAddress.
	Addr string

	// Toolpath supplies job defaults and the mesh resolution.
	Toolpath config.ToolpathConfig

	// ChunkLines bounds the lines executed per call when streaming a body.
	ChunkLines int

	Metrics *metrics.ToolpathMetrics
	Logger  *log.Logger
}

// New creates a preview server.
func New(cfg Config) *Server {
	s := &Server{
		cfg:        cfg.Toolpath,
		chunkLines: cfg.ChunkLines,
		jobs:       newJobStore(),
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		addr:       cfg.Addr,
		wsClients:  make(map[int64]*WSClient),
	}
	if s.chunkLines <= 0 {
		s.chunkLines = DefaultChunkLines
	}
	if s.addr == "" {
		s.addr = cfg.Toolpath.ServerAddress
	}
	if s.metrics == nil {
		s.metrics = metrics.NewToolpathMetrics()
	}
	if s.logger == nil {
		s.logger = log.GetLogger("server")
	}

	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // previews are opened from local files
		},
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST /api/jobs", s.handleCreateJob)
	s.route(mux, "GET /api/jobs", s.handleListJobs)
	s.route(mux, "GET /api/jobs/{id}", s.handleGetJob)
	s.route(mux, "DELETE /api/jobs/{id}", s.handleDeleteJob)
	s.route(mux, "GET /api/jobs/{id}/layers", s.handleLayers)
	s.route(mux, "GET /api/jobs/{id}/layers/{n}/mesh.stl", s.handleLayerMesh)

	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.Handle("/metrics", metrics.Handler(s.metrics))

	return s.corsMiddleware(mux)
}

// route registers h under pattern and counts requests against it.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RecordRequest(pattern)
		h(w, r)
	})
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	s.running.Store(true)
	s.logger.Info("preview server listening on %s", s.addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes every WebSocket client and the listener.
func (s *Server) Stop() error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.Close()
	}
	s.wsClients = make(map[int64]*WSClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Metrics returns the server's metric set.
func (s *Server) Metrics() *metrics.ToolpathMetrics {
	return s.metrics
}

func (s *Server) newJob(id string) *toolpath.Job {
	return toolpath.NewJob(
		toolpath.WithName(id),
		toolpath.WithLayerTolerance(s.cfg.LayerTolerance),
		toolpath.WithWidth(s.cfg.Width),
		toolpath.WithHeight(s.cfg.Height),
		toolpath.WithLogger(s.logger.WithPrefix("job "+id)),
		toolpath.WithMetrics(s.metrics),
	)
}

func (s *Server) createJob() *jobEntry {
	e := s.jobs.add(s.newJob)
	s.metrics.SetJobsActive(s.jobs.len())
	s.logger.WithField("job", e.id).Debug("job created")
	return e
}

func (s *Server) deleteJob(id string) error {
	if err := s.jobs.remove(id); err != nil {
		return err
	}
	s.metrics.ForgetJob(id)
	s.metrics.SetJobsActive(s.jobs.len())
	s.logger.WithField("job", id).Debug("job deleted")
	return nil
}

// REST endpoint handlers

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	e := s.createJob()

	e.mu.Lock()
	err := gcode.ScanChunks(r.Body, s.chunkLines, e.feedLines)
	if ferr := e.finish(); err == nil {
		err = ferr
	}
	info := e.info()
	e.mu.Unlock()

	if err != nil {
		s.deleteJob(e.id)
		s.writeJSONError(w, err)
		return
	}
	s.broadcastJob(info)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"result": map[string]any{"id": info.ID, "summary": info.Summary},
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	entries := s.jobs.list()
	infos := make([]JobInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		infos = append(infos, e.info())
		e.mu.Unlock()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"jobs": infos}})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodJobSummary(r.PathValue("id"))
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deleteJob(id); err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"id": id}})
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodJobLayers(r.PathValue("id"))
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handleLayerMesh(w http.ResponseWriter, r *http.Request) {
	e, err := s.jobs.get(r.PathValue("id"))
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		s.writeJSONError(w, errors.RequestError("layer must be a non-negative integer"))
		return
	}

	e.mu.Lock()
	m, err := e.stream.Job().Mesh(n, s.cfg.RadialSegments)
	e.mu.Unlock()
	if err != nil {
		s.writeJSONError(w, err)
		return
	}

	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	if err := m.WriteSTL(buf, "job "+e.id+" layer "+strconv.Itoa(n)); err != nil {
		s.writeJSONError(w, err)
		return
	}
	w.Header().Set("Content-Type", "model/stl")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w)
}

// Shared by REST and JSON-RPC

func (s *Server) methodJobSummary(id string) (any, error) {
	e, err := s.jobs.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info(), nil
}

func (s *Server) methodJobLayers(id string) (any, error) {
	e, err := s.jobs.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	job := e.stream.Job()
	return map[string]any{
		"id":      id,
		"layered": job.Layered(),
		"layers":  job.Layers(),
	}, nil
}

// CORS middleware so a preview page opened from disk can call the API
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// JSON response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		s.logger.WithError(err).Error("encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, errors.ErrServerNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// errorCode returns the ToolpathError code of err, or SERVER_REQUEST.
func errorCode(err error) errors.ErrorCode {
	for _, code := range []errors.ErrorCode{
		errors.ErrServerNotFound, errors.ErrMeshExport, errors.ErrRuntime,
	} {
		if errors.Is(err, code) {
			return code
		}
	}
	return errors.ErrServerRequest
}

func (s *Server) writeJSONError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), map[string]any{
		"error": map[string]any{
			"code":    errorCode(err),
			"message": err.Error(),
		},
	})
}
