package view

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bosley/pdfchat/backend"
	"github.com/bosley/pdfchat/chat"
	"github.com/bosley/pdfchat/metrics"
	"github.com/bosley/pdfchat/state"
)

const maxUploadSize = 64 << 20

//go:embed static
var staticFiles embed.FS

// Controller is what the view drives on user actions
type Controller interface {
	Snapshot() state.Snapshot
	HandleFileChosen(ctx context.Context, filename string, r io.Reader) error
	RefreshCatalog(ctx context.Context) error
	SelectCard(filename string) error
	ToggleRecording() error
	MessageAudio(ctx context.Context, id string) ([]byte, string, error)
}

// Config for the view server
type Config struct {
	Address  string
	Gatherer prometheus.Gatherer // nil disables /metrics
	Metrics  *metrics.Metrics
}

// Server renders the session to browser tabs and turns their clicks into
// controller calls
type Server struct {
	config      Config
	controller  Controller
	subscribers *SubscriberList
	upgrader    websocket.Upgrader
	server      *http.Server
}

// New creates a view server for ctrl
func New(cfg Config, ctrl Controller) *Server {
	s := &Server{
		config:      cfg,
		controller:  ctrl,
		subscribers: NewSubscriberList(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the view only listens on a local address
			},
		},
	}
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/state", s.handleState).Methods("GET")
	router.HandleFunc("/api/pdfs", s.handleUpload).Methods("POST")
	router.HandleFunc("/api/pdfs/refresh", s.handleRefresh).Methods("POST")
	router.HandleFunc("/api/select", s.handleSelect).Methods("POST")
	router.HandleFunc("/api/record", s.handleRecord).Methods("POST")
	router.HandleFunc("/api/messages/{id}/audio", s.handleMessageAudio).Methods("GET")
	router.HandleFunc("/ws", s.handleWebSocket)

	if s.config.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(fmt.Sprintf("embedded static files missing: %v", err))
	}
	router.PathPrefix("/").Handler(http.FileServer(http.FS(static)))

	return router
}

// Start serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("View server listening", "address", s.config.Address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("view server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.subscribers.Each(func(c *wsConnection) { c.close() })
	return s.server.Shutdown(shutdownCtx)
}

// Publish pushes a snapshot to every connected page. It never blocks: a
// subscriber whose queue is full misses the frame.
func (s *Server) Publish(snap state.Snapshot) {
	f, err := encodeFrame(snap)
	if err != nil {
		slog.Error("Failed to encode view state", "error", err)
		return
	}

	s.subscribers.Each(func(c *wsConnection) {
		c.enqueue(f)
	})
}

func encodeFrame(snap state.Snapshot) (frame, error) {
	data, err := json.Marshal(Event{
		Type:      eventState,
		Timestamp: snap.TakenAt,
		Payload:   NewViewState(snap),
	})
	if err != nil {
		return frame{}, err
	}
	return frame{data: data, takenAt: snap.TakenAt}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func (s *Server) writeState(w http.ResponseWriter, status int) {
	writeJSON(w, status, NewViewState(s.controller.Snapshot()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, http.StatusOK)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return
	}

	file, header, err := r.FormFile("pdf_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no pdf file part")
		return
	}
	defer file.Close()

	if err := s.controller.HandleFileChosen(r.Context(), header.Filename, file); err != nil {
		if errors.Is(err, backend.ErrNoFile) {
			writeError(w, http.StatusBadRequest, "no selected file")
			return
		}
		// the failure text is already part of the state as upload_status
		s.writeState(w, http.StatusBadGateway)
		return
	}
	s.writeState(w, http.StatusOK)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.RefreshCatalog(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "failed to list pdfs")
		return
	}
	s.writeState(w, http.StatusOK)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	if err := s.controller.SelectCard(req.Filename); err != nil {
		if errors.Is(err, state.ErrUnknownDocument) {
			writeError(w, http.StatusNotFound, "pdf not in catalog")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeState(w, http.StatusOK)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.ToggleRecording(); err != nil {
		if errors.Is(err, chat.ErrNoSelection) {
			writeError(w, http.StatusConflict, "select pdf to start!")
			return
		}
		slog.Error("Failed to toggle recording", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeState(w, http.StatusOK)
}

func (s *Server) handleMessageAudio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, contentType, err := s.controller.MessageAudio(r.Context(), id)
	if err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) || errors.Is(err, chat.ErrNoAudio) {
			http.Error(w, "Audio not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load message audio", "error", err, "messageID", id)
		http.Error(w, "Failed to load audio", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}
