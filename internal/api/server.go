// Package api serves the core's output as JSON. It renders nothing itself;
// band and stats payloads go out exactly as the histogram engine built them.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdxweather/pdxweather/internal/histogram"
	"github.com/pdxweather/pdxweather/internal/models"
)

type Server struct {
	engine  *histogram.Engine
	sources map[models.Source]models.SourceConfig
	port    string
}

func NewServer(engine *histogram.Engine, sources map[models.Source]models.SourceConfig, port string) *Server {
	return &Server{engine: engine, sources: sources, port: port}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/forecast", s.handleForecast)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// queryParams pulls and checks the source/type pair shared by both API
// endpoints.
func (s *Server) queryParams(w http.ResponseWriter, r *http.Request) (models.Source, models.MeasurementType, bool) {
	source := models.Source(r.URL.Query().Get("source"))
	if _, ok := s.sources[source]; !ok {
		http.Error(w, "unknown source", http.StatusBadRequest)
		return "", "", false
	}
	mtype := models.MeasurementType(r.URL.Query().Get("type"))
	if !mtype.Valid() {
		http.Error(w, "type must be max or min", http.StatusBadRequest)
		return "", "", false
	}
	return source, mtype, true
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	source, mtype, ok := s.queryParams(w, r)
	if !ok {
		return
	}

	bands, err := s.engine.ForecastBands(source, models.LocationPDX, mtype)
	if err != nil {
		log.Printf("api: forecast bands: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, bands)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	source, mtype, ok := s.queryParams(w, r)
	if !ok {
		return
	}

	summary, err := s.engine.Summary(source, models.LocationPDX, mtype)
	if err != nil {
		log.Printf("api: stats summary: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
