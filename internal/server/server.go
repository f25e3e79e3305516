// Package server exposes a running supervisor over HTTP and websockets.
//
// Endpoints:
//
//	POST /api/target      submit {"x","y","z"}; answers with the IK pose
//	GET  /api/trajectory  latest complete path, 204 before the first one
//	GET  /api/stats       current stats epoch and records
//	GET  /api/status      supervisor phase
//	GET  /ws              event stream, see Event
//	GET  /healthz
//
// Every websocket client follows the feeds with its own cursor, so it sees
// each stats record once and in order, preceded by a reset event whenever
// a new target restarted the log.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/san-kum/armsim/internal/feed"
	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/protocol"
	"github.com/san-kum/armsim/internal/supervisor"
)

const shutdownTimeout = 5 * time.Second

// Source is the supervisor surface the server needs.
type Source interface {
	Trajectories() *feed.Latest[supervisor.Trajectory]
	Stats() *feed.Log[protocol.Stats]
	Obstacles() *feed.Latest[protocol.Obstacle]
	Status() *feed.Latest[supervisor.Status]
	Submit(target kinematics.Vec3) error
	Alive() int
}

type Server struct {
	src       Source
	arm       *kinematics.Arm
	hub       *Hub
	log       *slog.Logger
	router    *http.ServeMux
	startOnce sync.Once
}

func New(src Source, arm *kinematics.Arm, logger *slog.Logger) *Server {
	s := &Server{
		src:    src,
		arm:    arm,
		hub:    NewHub(),
		log:    logger.With("component", "server"),
		router: http.NewServeMux(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/target", s.handleTarget)
	mux.HandleFunc("/api/trajectory", s.handleTrajectory)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/status", s.handleStatus)

	s.router.Handle("/", withCORS(mux))
	return s
}

func (s *Server) Handler() http.Handler { return s.router }
func (s *Server) Hub() *Hub             { return s.hub }

// Start runs the websocket hub until ctx is done.
func (s *Server) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.hub.Run(ctx)
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.Start(ctx)

	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	serveWS(s.hub, s.src, s.log, w, r)
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var target kinematics.Vec3
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&target); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !target.IsFinite() {
		http.Error(w, "target must be finite", http.StatusBadRequest)
		return
	}

	if err := s.src.Submit(target); err != nil {
		if errors.Is(err, supervisor.ErrClosed) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	view := &TargetView{Target: target, Joints: s.arm.Inverse(target), Reachable: s.arm.Reachable(target)}
	s.log.Info("target submitted", "target", target.String(), "reachable", view.Reachable)
	if err := s.hub.BroadcastJSON(Event{Type: EventTarget, Target: view}); err != nil {
		s.log.Warn("broadcast failed", "err", err)
	}
	writeJSON(w, http.StatusAccepted, view)
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	traj, v := s.src.Trajectories().Load()
	if v == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, trajectoryView(traj))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	items, _, next := s.src.Stats().Since(feed.Cursor{})
	if items == nil {
		items = []protocol.Stats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"epoch": next.Epoch,
		"stats": items,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, _ := s.src.Status().Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  statusView(st),
		"alive":   s.src.Alive(),
		"clients": s.hub.Clients(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
