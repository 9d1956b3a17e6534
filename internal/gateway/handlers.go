package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/haldane/mediagate/internal/auth"
	"github.com/haldane/mediagate/internal/mediacache"
	"github.com/haldane/mediagate/internal/metrics"
	"github.com/haldane/mediagate/internal/storage"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type unlockRequest struct {
	Password string `json:"password"`
}

type unlockResponse struct {
	Token string `json:"token"`
}

// handleUnlock verifies the gate password, opens a session, and hands
// back the bearer token for subsequent requests.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Unlock(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			metrics.UnlockAttempts.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusUnauthorized, "invalid password")
			return
		}
		s.logger.Error().Err(err).Msg("Unlock failed")
		writeError(w, http.StatusInternalServerError, "unlock failed")
		return
	}

	s.guard.Start()
	metrics.UnlockAttempts.WithLabelValues("accepted").Inc()

	writeJSON(w, http.StatusOK, unlockResponse{Token: token})
}

// handleMedia serves playable media bytes, from cache when fresh. The
// request is refused outright when the class's daily quota is already
// exhausted; merely loading bytes never consumes quota, only a reported
// completion does.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")
	if src == "" {
		writeError(w, http.StatusBadRequest, "missing src parameter")
		return
	}

	class := storage.AssetAudio
	if raw := r.URL.Query().Get("class"); raw != "" {
		parsed, err := storage.ParseAssetClass(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		class = parsed
	}

	ok, err := s.quota.CanPlay(r.Context(), class)
	if err != nil {
		s.logger.Error().Err(err).Str("class", string(class)).Msg("Quota check failed")
		writeError(w, http.StatusInternalServerError, "quota check failed")
		return
	}
	if !ok {
		metrics.QuotaRejections.WithLabelValues(string(class)).Inc()
		writeError(w, http.StatusTooManyRequests, "daily play limit reached")
		return
	}

	result, err := s.media.Load(r.Context(), src)
	if err != nil {
		var fetchErr *mediacache.FetchError
		if errors.As(err, &fetchErr) {
			s.logger.Warn().Err(err).Str("src", src).Msg("Media fetch failed")
			writeError(w, http.StatusBadGateway, "failed to load media")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics.MediaLoadsTotal.WithLabelValues(string(result.Source), string(class)).Inc()

	w.Header().Set("Content-Type", result.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Bytes)))
	w.Header().Set("X-Media-Source", string(result.Source))
	// The gateway is the freshness authority; intermediaries must not
	// serve this payload past the session.
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Bytes)
}

type quotaResponse struct {
	Class     storage.AssetClass `json:"class"`
	Remaining int                `json:"remaining"`
	Max       int                `json:"max"`
}

func (s *Server) parseClass(w http.ResponseWriter, r *http.Request) (storage.AssetClass, bool) {
	class, err := storage.ParseAssetClass(mux.Vars(r)["class"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return class, true
}

// handleQuota reports the remaining daily allowance for a class.
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	class, ok := s.parseClass(w, r)
	if !ok {
		return
	}

	remaining, err := s.quota.Remaining(r.Context(), class)
	if err != nil {
		s.logger.Error().Err(err).Str("class", string(class)).Msg("Quota read failed")
		writeError(w, http.StatusInternalServerError, "quota read failed")
		return
	}

	writeJSON(w, http.StatusOK, quotaResponse{Class: class, Remaining: remaining, Max: s.quota.MaxPlays()})
}

// handleQuotaComplete records one completed playback. The player calls
// this exactly once per genuine completion; the gateway trusts that
// latch and the counter clamps at the limit regardless.
func (s *Server) handleQuotaComplete(w http.ResponseWriter, r *http.Request) {
	class, ok := s.parseClass(w, r)
	if !ok {
		return
	}

	if err := s.quota.RecordCompletedPlay(r.Context(), class); err != nil {
		s.logger.Error().Err(err).Str("class", string(class)).Msg("Failed to record play")
		writeError(w, http.StatusInternalServerError, "failed to record play")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	Valid              bool   `json:"valid"`
	SessionRemainingMs *int64 `json:"session_remaining_ms"`
	IdleRemainingMs    *int64 `json:"idle_remaining_ms"`
}

// handleSession reports session validity and both countdowns.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{Valid: s.guard.IsValid()}

	if remaining := s.guard.Remaining(); remaining != nil {
		sessionMs := remaining.Session.Milliseconds()
		idleMs := remaining.Idle.Milliseconds()
		resp.SessionRemainingMs = &sessionMs
		resp.IdleRemainingMs = &idleMs
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleActivity is the sink for raw user-interaction events forwarded
// by the host page. It is the only input that extends the idle window.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	s.guard.Touch()
	w.WriteHeader(http.StatusNoContent)
}

// handleLock tears the session down: the guard is cleared and the media
// cache emptied so content does not linger after lock-out.
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.guard.Clear()

	if err := s.media.ClearAll(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("Cache clear on lock failed")
	}

	w.WriteHeader(http.StatusNoContent)
}
