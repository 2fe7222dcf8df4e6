// Package rest exposes the race pipeline over HTTP/JSON.
package rest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/ams2-telemetry-go/log"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/service"
)

type Server struct {
	races   *service.RaceService
	compare *service.LapCompareService
	fuel    *service.FuelAnalysisService
	l       *log.Logger
	mux     *http.ServeMux
}

type Option func(s *Server)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

//nolint:whitespace // can't make the linters happy
func NewServer(
	races *service.RaceService,
	compare *service.LapCompareService,
	fuel *service.FuelAnalysisService,
	opts ...Option,
) *Server {
	ret := &Server{
		races:   races,
		compare: compare,
		fuel:    fuel,
		l:       log.Default().Named("rest"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.mux = ret.routes()
	return ret
}

// Handler returns the route multiplexer for embedding into an
// http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /race/upload", s.handleUpload)
	mux.HandleFunc("GET /race/list_ids", s.handleListIDs)
	mux.HandleFunc("GET /race/list", s.handleList)
	mux.HandleFunc("GET /race/{raceID}/status", s.handleStatus)
	mux.HandleFunc("GET /race/{raceID}/download", s.handleDownload)
	mux.HandleFunc("GET /race/{raceID}/download/raw", s.handleDownloadRaw)
	mux.HandleFunc("DELETE /race/{raceID}", s.handleDelete)
	mux.HandleFunc("GET /race/{raceID}/compare/{lap1}/{lap2}", s.handleCompare)
	mux.HandleFunc("GET /race/{raceID}/fuel/{lap}", s.handleFuel)
	mux.HandleFunc("GET /race/{raceID}/fuel/compare/{lap1}/{lap2}",
		s.handleFuelCompare)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type uploadRequest struct {
	// base64 encoded compressed capture
	Data string `json:"data"`
}

type downloadResponse struct {
	RaceID uuid.UUID `json:"race_id"`
	Data   string    `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "data is not valid base64")
		return
	}
	result, err := s.races.Upload(r.Context(), raw)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.races.ListIDs(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"race_ids": ids})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.races.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"races": infos})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	raceID, ok := s.raceID(w, r)
	if !ok {
		return
	}
	info, err := s.races.Status(r.Context(), raceID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	raceID, ok := s.raceID(w, r)
	if !ok {
		return
	}
	raw, err := s.races.Download(r.Context(), raceID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &downloadResponse{
		RaceID: raceID,
		Data:   base64.StdEncoding.EncodeToString(raw),
	})
}

func (s *Server) handleDownloadRaw(w http.ResponseWriter, r *http.Request) {
	raceID, ok := s.raceID(w, r)
	if !ok {
		return
	}
	raw, err := s.races.Download(r.Context(), raceID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", raceID.String()+".deflate"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.l.Error("writing download response", log.ErrorField(err))
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	raceID, ok := s.raceID(w, r)
	if !ok {
		return
	}
	if err := s.races.Delete(r.Context(), raceID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"race_id": raceID,
		"message": "Race deleted",
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	raceID, ok := s.raceID(w, r)
	if !ok {
		return
	}
	lap1, lap2, ok := s.lapPair(w, r)
	if !ok {
		return
	}
	result, err := s.compare.Compare(r.Context(), raceID, lap1, lap2)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFuel(w http.ResponseWriter, r *http.Request) {
	raceID, ok := s.raceID(w, r)
	if !ok {
		return
	}
	lap, err := strconv.Atoi(r.PathValue("lap"))
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, "invalid lap number")
		return
	}
	result, err := s.fuel.AnalyzeLap(r.Context(), raceID, lap)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFuelCompare(w http.ResponseWriter, r *http.Request) {
	raceID, ok := s.raceID(w, r)
	if !ok {
		return
	}
	lap1, lap2, ok := s.lapPair(w, r)
	if !ok {
		return
	}
	result, err := s.fuel.CompareFuel(r.Context(), raceID, lap1, lap2)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) raceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(r.PathValue("raceID"))
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, "invalid race id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) lapPair(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	lap1, err1 := strconv.Atoi(r.PathValue("lap1"))
	lap2, err2 := strconv.Atoi(r.PathValue("lap2"))
	if err1 != nil || err2 != nil {
		s.writeJSONError(w, http.StatusNotFound, "invalid lap number")
		return 0, 0, false
	}
	return lap1, lap2, true
}

// writeServiceError maps service layer errors onto HTTP status codes.
// Caller mistakes are 4xx, infrastructure trouble is 5xx.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var intake *service.IntakeError
	var stErr *service.StorageError
	switch {
	case errors.As(err, &intake):
		s.writeJSONError(w, http.StatusBadRequest, intake.Error())
	case errors.Is(err, service.ErrRaceNotReady):
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		s.writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &stErr):
		s.l.Error("storage error", log.ErrorField(err))
		s.writeJSONError(w, http.StatusInternalServerError, stErr.Error())
	default:
		s.l.Error("unhandled error", log.ErrorField(err))
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, &errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.l.Error("writing response", log.ErrorField(err))
	}
}
