// Package web provides a small read-only HTTP console exposing server
// statistics. It never touches aggregated metric state directly, only the
// stat counters its StatusSource assembles.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the point-in-time state reported by the console.
type Status struct {
	PacketsReceived uint64    `json:"packets_received"`
	MetricsReceived uint64    `json:"metrics_received"`
	BadLines        uint64    `json:"bad_lines_seen"`
	LastPacket      time.Time `json:"last_packet"`
	LastFlush       time.Time `json:"last_flush"`
	LastFlushError  time.Time `json:"last_flush_error"`
	Counters        int       `json:"counters"`
	Timers          int       `json:"timers"`
	Gauges          int       `json:"gauges"`
	Sets            int       `json:"sets"`
}

// StatusSource provides the current Status.
type StatusSource interface {
	Status() Status
}

// ConsoleServer serves the console on Addr until its context is done.
type ConsoleServer struct {
	Addr   string
	Source StatusSource
	Logger logrus.FieldLogger
}

// NewConsoleServer initialises a new ConsoleServer.
func NewConsoleServer(addr string, source StatusSource, logger logrus.FieldLogger) *ConsoleServer {
	return &ConsoleServer{
		Addr:   addr,
		Source: source,
		Logger: logger,
	}
}

// Router builds the console routes.
func (cs *ConsoleServer) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/status", cs.statusHandler).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	return router
}

// Run listens on Addr and serves until the context is done.
func (cs *ConsoleServer) Run(ctx context.Context) {
	server := &http.Server{
		Addr:    cs.Addr,
		Handler: cs.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			cs.Logger.WithError(err).Warn("Console shutdown failed")
		}
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		cs.Logger.WithError(err).Error("Console server failed")
	}
}

func (cs *ConsoleServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cs.Source.Status()); err != nil {
		cs.Logger.WithError(err).Warn("Failed to write status")
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
