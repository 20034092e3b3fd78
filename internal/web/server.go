package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"image-optimizer-go/internal/codec"
	"image-optimizer-go/internal/config"
	"image-optimizer-go/internal/manifest"
	"image-optimizer-go/internal/pipeline"
	"image-optimizer-go/internal/report"
	"image-optimizer-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type builderFactory func(stats *statistics.Statistics) *pipeline.Builder

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	newBuilder   builderFactory
	builds       sync.WaitGroup
	buildCtx     context.Context
	cancelBuilds context.CancelFunc

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	currentStats   *statistics.Statistics
	lastReport     *report.Report
	lastError      string
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewServer returns a preview server that builds with the imaging codec.
func NewServer(cfg *config.Config, log *logrus.Logger, meta codec.Metadata) *Server {
	return newServer(cfg, log, func(stats *statistics.Statistics) *pipeline.Builder {
		return pipeline.New(cfg, log, meta, stats)
	})
}

// NewServerWithCodec returns a preview server that builds with c.
func NewServerWithCodec(cfg *config.Config, log *logrus.Logger, c codec.Codec) *Server {
	return newServer(cfg, log, func(stats *statistics.Statistics) *pipeline.Builder {
		return pipeline.NewBuilder(cfg, c, log, stats)
	})
}

func newServer(cfg *config.Config, log *logrus.Logger, factory builderFactory) *Server {
	buildCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:          cfg,
		log:          log,
		router:       mux.NewRouter(),
		wsClients:    make(map[*websocket.Conn]bool),
		newBuilder:   factory,
		buildCtx:     buildCtx,
		cancelBuilds: cancel,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // preview server, any origin
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API routes
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/build", s.handleBuild).Methods("POST")
	api.HandleFunc("/report", s.handleReport).Methods("GET")
	api.HandleFunc("/manifest", s.handleManifest).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Optimized images
	s.router.PathPrefix("/images/").Handler(
		http.StripPrefix("/images/", http.FileServer(http.Dir(s.cfg.OutputDirectory))),
	)
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting preview server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the HTTP server down, cancels a running build and waits for it
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.cancelBuilds()

	s.wsMutex.Lock()
	for conn := range s.wsClients {
		conn.Close()
		delete(s.wsClients, conn)
	}
	s.wsMutex.Unlock()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = fmt.Errorf("waiting for running build: %w", ctx.Err())
		}
	}
	return err
}

// Wait blocks until no build is running.
func (s *Server) Wait() {
	s.builds.Wait()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	lastError := s.lastError
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary":  stats.GetSummary(),
			"counters": stats.Snapshot(),
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"last_error": lastError,
			"statistics": statsData,
		},
	})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Build already in progress", http.StatusConflict)
		return
	}
	stats := statistics.NewStatistics()
	s.isRunning = true
	s.currentStats = stats
	s.lastError = ""
	s.builds.Add(1)
	s.operationMutex.Unlock()

	go s.runBuildAsync(stats)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Message: "Build started",
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	rep := s.lastReport
	s.operationMutex.RUnlock()

	if rep == nil {
		s.writeError(w, "No build has completed yet", http.StatusNotFound)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    rep,
	})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	entries, err := manifest.Read(s.cfg.ManifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, "Manifest has not been generated", http.StatusNotFound)
			return
		}
		s.writeError(w, fmt.Sprintf("Failed to read manifest: %v", err), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []manifest.Entry{}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    entries,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) runBuildAsync(stats *statistics.Statistics) {
	defer s.builds.Done()

	b := s.newBuilder(stats)
	b.OnEvent = s.forwardEvent

	outcome, err := b.Build(s.buildCtx)

	s.operationMutex.Lock()
	s.isRunning = false
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastReport = outcome.Report
	}
	s.operationMutex.Unlock()
}

func (s *Server) forwardEvent(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventBuildStarted:
		s.broadcastWSMessage(ev.Type, map[string]interface{}{
			"input":  s.cfg.InputGlob(),
			"output": s.cfg.OutputDirectory,
		})
	case pipeline.EventFileProcessed:
		s.broadcastWSMessage(ev.Type, ev.File)
	case pipeline.EventBuildCompleted:
		s.broadcastWSMessage(ev.Type, ev.Report)
	case pipeline.EventBuildError:
		s.broadcastWSMessage(ev.Type, map[string]interface{}{
			"error": ev.Error,
		})
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// connections allow one writer at a time
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
