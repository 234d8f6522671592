package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/warka/warka/internal/upstream"
)

func (s *Server) hackerNews(w http.ResponseWriter, r *http.Request) {
	if s.deps.News == nil {
		s.writeUpstreamError(w, "hackernews", upstream.ErrNotConfigured)
		return
	}
	stories, err := s.deps.News.TopStories(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "hackernews", err)
		return
	}
	writeJSON(w, http.StatusOK, stories)
}

// stocks handles GET /stocks?tickers=A,B. Tickers without data carry an
// error object instead of failing the whole response.
func (s *Server) stocks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Quotes == nil {
		s.writeUpstreamError(w, "stocks", upstream.ErrNotConfigured)
		return
	}
	quotes, err := s.deps.Quotes.Quotes(r.Context(), r.URL.Query().Get("tickers"))
	if err != nil {
		s.writeUpstreamError(w, "stocks", err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

func (s *Server) weather(w http.ResponseWriter, r *http.Request) {
	if s.deps.Weather == nil {
		s.writeUpstreamError(w, "weather", upstream.ErrNotConfigured)
		return
	}
	forecast, err := s.deps.Weather.Forecast(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "weather", err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

func (s *Server) holdings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Holdings == nil {
		s.writeUpstreamError(w, "holdings", upstream.ErrNotConfigured)
		return
	}
	valuation, err := s.deps.Holdings.Value(r.Context())
	if err != nil {
		s.writeUpstreamError(w, "holdings", err)
		return
	}
	writeJSON(w, http.StatusOK, valuation)
}

// deviceConfig handles GET /config by passing the firmware's JSON file through.
func (s *Server) deviceConfig(w http.ResponseWriter, _ *http.Request) {
	if s.deps.DeviceConfig == nil {
		s.writeUpstreamError(w, "config", upstream.ErrConfigNotFound)
		return
	}
	doc, err := s.deps.DeviceConfig.Load()
	if err != nil {
		s.writeUpstreamError(w, "config", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(doc, '\n')); err != nil {
		s.logger.Debug("write config failed", zap.Error(err))
	}
}

// events handles GET /events with the frame events kept in memory.
func (s *Server) events(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event log unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.deps.Events.Messages()})
}

// writeUpstreamError maps service errors onto the {error} responses the
// dashboard expects. Upstream failure details stay in the log.
func (s *Server) writeUpstreamError(w http.ResponseWriter, route string, err error) {
	status := http.StatusInternalServerError
	msg := "Failed to fetch " + route + " data"
	switch {
	case errors.Is(err, upstream.ErrConfigNotFound):
		status, msg = http.StatusNotFound, "Config file not found"
	case errors.Is(err, upstream.ErrConfigInvalid):
		msg = "Error decoding JSON"
	case errors.Is(err, upstream.ErrNoTickers):
		status, msg = http.StatusBadRequest, "No tickers provided"
	case errors.Is(err, upstream.ErrBadRequest):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, upstream.ErrNotConfigured):
		status, msg = http.StatusServiceUnavailable, upstream.ErrNotConfigured.Error()
	case errors.Is(err, upstream.ErrUpstream):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("upstream request failed", zap.String("route", route), zap.Error(err))
	}
	writeError(w, status, msg)
}
