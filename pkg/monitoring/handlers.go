package monitoring

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/privacyshield/sazpd-console/pkg/errs"
)

// maxIntervalSeconds is the largest interval representable as a time.Duration.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// ListSnapshotsHandler handles GET /monitoring/snapshots
func ListSnapshotsHandler(s *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"realTimeEnabled": s.cfg.Enabled(),
			"snapshots":       s.Views(),
		})
	}
}

// GetSnapshotHandler handles GET /monitoring/snapshots/{kind}
func GetSnapshotHandler(s *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := s.View(Kind(chi.URLParam(r, "kind")))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// RefreshHandler handles POST /monitoring/snapshots/{kind}:refresh
func RefreshHandler(s *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := Kind(chi.URLParam(r, "kind"))
		if err := s.Refresh(r.Context(), kind); err != nil {
			writeErr(w, err)
			return
		}
		v, _ := s.View(kind)
		writeJSON(w, http.StatusOK, v)
	}
}

// RefreshAllHandler handles POST /monitoring/refresh
func RefreshAllHandler(s *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.RefreshAll(r.Context()); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"snapshots": s.Views(),
		})
	}
}

// configBody is the JSON shape of the scheduler configuration.
type configBody struct {
	RealTimeEnabled *bool        `json:"realTimeEnabled,omitempty"`
	Intervals       map[Kind]int `json:"intervals,omitempty"` // seconds
}

func configToBody(cfg *SchedulerConfig) configBody {
	enabled := cfg.Enabled()
	intervals := make(map[Kind]int, len(allKinds))
	for k, d := range cfg.Intervals() {
		intervals[k] = int(d / time.Second)
	}
	return configBody{RealTimeEnabled: &enabled, Intervals: intervals}
}

// GetConfigHandler handles GET /monitoring/config
func GetConfigHandler(s *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, configToBody(s.cfg))
	}
}

// UpdateConfigHandler handles PUT /monitoring/config
// The update is validated as a whole before any field is applied.
func UpdateConfigHandler(s *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body configBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(w, errs.Invalid("invalid request body: %v", err))
			return
		}

		for kind, secs := range body.Intervals {
			if !kind.Valid() {
				writeErr(w, errs.Invalid("unknown monitoring kind %q", kind))
				return
			}
			if int64(secs) > maxIntervalSeconds {
				writeErr(w, errs.Invalid("interval for %s must be at most %d seconds", kind, maxIntervalSeconds))
				return
			}
			if time.Duration(secs)*time.Second < MinInterval {
				writeErr(w, errs.Invalid("interval for %s must be at least %s", kind, MinInterval))
				return
			}
		}

		for kind, secs := range body.Intervals {
			if err := s.cfg.SetInterval(kind, time.Duration(secs)*time.Second); err != nil {
				writeErr(w, err)
				return
			}
		}
		if body.RealTimeEnabled != nil {
			s.cfg.SetEnabled(*body.RealTimeEnabled)
			s.logger.Info("real-time monitoring toggled", "enabled", *body.RealTimeEnabled)
		}

		writeJSON(w, http.StatusOK, configToBody(s.cfg))
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(err), map[string]string{
		"error": err.Error(),
		"code":  errs.Code(err),
	})
}
