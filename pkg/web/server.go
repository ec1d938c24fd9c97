// Package web is the request dispatcher: one connection at a time, a closed
// set of routes, each reading or mutating the shared record store.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/ericogr/fsr-logger/pkg/clock"
	"github.com/ericogr/fsr-logger/pkg/netinfo"
	"github.com/ericogr/fsr-logger/pkg/output"
	"github.com/ericogr/fsr-logger/pkg/record"
	"github.com/ericogr/fsr-logger/pkg/storage"
)

const (
	downloadName    = "sensor_data.csv"
	shutdownTimeout = 5 * time.Second
	headerTimeout   = 10 * time.Second
)

type Options struct {
	Store        *storage.Store
	Clock        clock.Clock
	Identity     netinfo.Identity
	Output       output.Output
	TailSize     int
	MaxBodyBytes int64
	// FallbackPath is where the clock snapshot is written after a manual set.
	FallbackPath string
}

type Server struct {
	opts   Options
	router *mux.Router
}

func New(opts Options) *Server {
	if opts.TailSize <= 0 {
		opts.TailSize = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1024
	}
	if opts.Identity == nil {
		opts.Identity = netinfo.Host{}
	}
	s := &Server{opts: opts}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, s.recoverPanics)
	r.HandleFunc("/download", s.handleDownload).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handleConfig).Methods(http.MethodPost)
	r.HandleFunc("/delete", s.handleDeleteConfirm).Methods(http.MethodPost)
	r.HandleFunc("/confirmed_delete", s.handleConfirmedDelete).Methods(http.MethodPost)
	// everything else, including a known path with the wrong method
	r.PathPrefix("/").HandlerFunc(s.handleHome)
	return r
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve accepts one connection at a time from l: the next connection is not
// accepted until the previous response is written and the connection closed.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: headerTimeout,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	srv.SetKeepAlivesEnabled(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				slog.Warn("http shutdown", "err", err)
			}
		case <-done:
		}
	}()

	slog.Info("dispatcher listening", "addr", l.Addr().String())
	err := srv.Serve(netutil.LimitListener(l, 1))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}

// recoverPanics turns a handler panic into an error response so one bad
// request never reaches the server loop.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				slog.Error("request handler panic", "method", r.Method, "path", r.URL.Path, "panic", v)
				s.writeMessage(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) page(title string) page {
	return page{Title: title, Address: s.opts.Identity.Address()}
}

func (s *Server) status(lines ...string) {
	if s.opts.Output == nil {
		return
	}
	if err := s.opts.Output.Status(lines...); err != nil {
		slog.Debug("status output failed", "err", err)
	}
}

// writeHTML renders into a buffer first so a template failure still yields
// a clean error response.
func (s *Server) writeHTML(w http.ResponseWriter, code int, t templateExecutor, data any) {
	var buf bytes.Buffer
	if err := render(&buf, t, data); err != nil {
		slog.Error("render page", "template", t.Name(), "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if _, err := io.Copy(w, &buf); err != nil {
		slog.Warn("write response", "err", err)
	}
}

func (s *Server) writeMessage(w http.ResponseWriter, code int, heading string) {
	s.writeHTML(w, code, messageTmpl, messagePage{page: s.page(heading), Heading: heading})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	readings, skipped, err := s.opts.Store.Tail(s.opts.TailSize)
	if err != nil {
		slog.Error("read record log", "err", err)
		s.status("Error reading", "the record log:", err.Error())
	}
	for _, e := range skipped {
		slog.Warn("skipped stored row", "pos", e.Pos, "text", e.Text, "err", e.Err)
		s.status("Error processing", "stored row", fmt.Sprintf("at %d", e.Pos))
	}

	rows := make([]row, 0, len(readings))
	for _, rd := range readings {
		rows = append(rows, row{
			ID:    rd.ID,
			Date:  rd.Timestamp.Format(record.TimeLayout),
			Raw:   rd.Raw,
			Force: record.FormatForce(rd.Force),
		})
	}
	s.writeHTML(w, http.StatusOK, homeTmpl, homePage{
		page:     s.page("Force Sensor"),
		TailSize: s.opts.TailSize,
		Rows:     rows,
		Now:      clock.FieldsOf(s.opts.Clock.Now()),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.opts.Store.Snapshot()
	if err != nil {
		slog.Error("read record log for download", "err", err)
		s.status("Error reading", "the record log:", err.Error())
		s.writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer snap.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+downloadName)
	w.WriteHeader(http.StatusOK)
	if n, err := io.Copy(w, snap); err != nil {
		// headers are out; the client sees a short file
		slog.Warn("write download", "written", n, "err", err)
	}
}

// handleConfig sets the clock from the form body. All fields are validated
// before anything is touched, and the snapshot file is written before the
// clock so a failed write leaves the clock as it was.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		slog.Warn("read config body", "err", err)
		s.writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	fields, err := parseClockForm(string(body), clock.FieldsOf(s.opts.Clock.Now()))
	if err == nil {
		err = fields.Validate()
	}
	if err != nil {
		slog.Warn("configure clock", "body", string(body), "err", err)
		s.writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if s.opts.FallbackPath != "" {
		if err := clock.SaveFallback(s.opts.FallbackPath, fields); err != nil {
			slog.Error("save clock snapshot", "path", s.opts.FallbackPath, "err", err)
			s.status("Error saving", "clock snapshot")
			s.writeMessage(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}
	t, err := clock.Apply(s.opts.Clock, fields)
	if err != nil {
		slog.Warn("configure clock", "err", err)
		s.writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	slog.Info("clock configured", "time", t.Format(record.TimeLayout))
	s.writeMessage(w, http.StatusOK, "Clock configured")
}

func (s *Server) handleDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	s.writeHTML(w, http.StatusOK, confirmDeleteTmpl, s.page("Delete Database"))
}

func (s *Server) handleConfirmedDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.Reset(); err != nil {
		slog.Error("delete database", "err", err)
		s.status("Error deleting", "the database")
		s.writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	slog.Info("database deleted")
	s.status("Database", "deleted")
	s.writeMessage(w, http.StatusOK, "Database deleted successfully")
}
