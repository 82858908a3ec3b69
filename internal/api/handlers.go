// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/playbackd/internal/cast"
	"github.com/ManuGH/playbackd/internal/metrics"
	"github.com/ManuGH/playbackd/internal/player/controls"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/player/state"
	"github.com/ManuGH/playbackd/internal/probe"
	"github.com/ManuGH/playbackd/internal/session"
	"github.com/ManuGH/playbackd/internal/stream"
	"github.com/go-chi/chi/v5"
)

// createSessionRequest shapes POST /api/sessions. Either url or contentId
// must be set; with only contentId the stream builder constructs the URL.
type createSessionRequest struct {
	URL              string  `json:"url,omitempty"`
	ContentType      string  `json:"contentType"`
	ContentID        string  `json:"contentId"`
	Title            string  `json:"title,omitempty"`
	StartTime        float64 `json:"startTime,omitempty"`
	Extension        string  `json:"extension,omitempty"`
	Platform         string  `json:"platform,omitempty"`
	Backend          string  `json:"backend,omitempty"`
	Resume           bool    `json:"resume,omitempty"`
	SubtitleLanguage string  `json:"subtitleLanguage,omitempty"`
}

// sessionView is the wire shape of one session.
type sessionView struct {
	ID          string         `json:"id"`
	Backend     model.Backend  `json:"backend"`
	Platform    model.Platform `json:"platform"`
	Source      model.Source   `json:"source"`
	State       state.Snapshot `json:"state"`
	InjectState string         `json:"subtitleInjectState"`
}

func viewOf(s *session.Session) sessionView {
	return sessionView{
		ID:          s.ID,
		Backend:     s.Backend,
		Platform:    s.Platform,
		Source:      s.Source,
		State:       s.Store.Snapshot(),
		InjectState: string(s.InjectState()),
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}

	src := model.Source{
		URL:         req.URL,
		ContentType: model.ContentType(req.ContentType),
		ContentID:   req.ContentID,
		Title:       req.Title,
		StartTime:   req.StartTime,
	}
	if src.URL == "" {
		if s.streams == nil {
			writeServiceUnavailable(w, "no stream provider configured")
			return
		}
		built, err := s.streams.Source(src.ContentType, src.ContentID, req.Extension, req.Title)
		if err != nil {
			if errors.Is(err, stream.ErrMissingCredentials) {
				writeServiceUnavailable(w, err.Error())
				return
			}
			writeError(w, err)
			return
		}
		built.StartTime = req.StartTime
		src = built
	}

	sess, err := s.sessions.Create(r.Context(), src, session.CreateOptions{
		Platform:         model.Platform(req.Platform),
		Preference:       model.Backend(req.Backend),
		Resume:           req.Resume,
		SubtitleLanguage: req.SubtitleLanguage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	list := s.sessions.List()
	views := make([]sessionView, 0, len(list))
	for _, sess := range list {
		views = append(views, viewOf(sess))
	}
	writeJSON(w, http.StatusOK, views)
}

// lookup resolves the {id} route parameter. A nil return means the response
// has been written.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *session.Session {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w)
		return nil
	}
	return sess
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	// polling the state counts as client liveness
	sess.Heartbeat()
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Stop(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	sess.Heartbeat()
	w.WriteHeader(http.StatusNoContent)
}

// transport wraps the play/pause/toggle handlers, which differ only in the
// facade call.
func (s *Server) transport(w http.ResponseWriter, r *http.Request, op func(*controls.Facade) error) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	sess.Heartbeat()
	if err := op(sess.Controls); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, func(c *controls.Facade) error { return c.Play(r.Context()) })
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, func(c *controls.Facade) error { return c.Pause(r.Context()) })
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, func(c *controls.Facade) error { return c.TogglePlay(r.Context()) })
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	if err := s.sessions.Retry(r.Context(), sess.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type seekRequest struct {
	// Position is an absolute offset in seconds.
	Position *float64 `json:"position,omitempty"`
	// Delta is a relative offset in seconds; ignored when Position is set.
	Delta *float64 `json:"delta,omitempty"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	if req.Position == nil && req.Delta == nil {
		writeError(w, errors.New("position or delta required"))
		return
	}
	s.transport(w, r, func(c *controls.Facade) error {
		if req.Position != nil {
			return c.Seek(r.Context(), *req.Position)
		}
		return c.SeekBy(r.Context(), *req.Delta)
	})
}

type volumeRequest struct {
	Volume     *float64 `json:"volume,omitempty"`
	ToggleMute bool     `json:"toggleMute,omitempty"`
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	if req.Volume == nil && !req.ToggleMute {
		writeError(w, errors.New("volume or toggleMute required"))
		return
	}
	s.transport(w, r, func(c *controls.Facade) error {
		if req.Volume != nil {
			if err := c.SetVolume(r.Context(), *req.Volume); err != nil {
				return err
			}
		}
		if req.ToggleMute {
			return c.ToggleMute(r.Context())
		}
		return nil
	})
}

type trackRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleSelectAudio(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	s.transport(w, r, func(c *controls.Facade) error {
		return c.SelectAudioTrack(req.ID)
	})
}

func (s *Server) handleSelectSubtitle(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	s.transport(w, r, func(c *controls.Facade) error {
		return c.SelectSubtitleTrack(req.ID)
	})
}

func (s *Server) handleCastStart(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	err := sess.Controls.StartCast(r.Context())
	metrics.IncCastSession(err == nil)
	if err != nil {
		if errors.Is(err, cast.ErrNotConnected) {
			writeServiceUnavailable(w, err.Error())
			return
		}
		writeConflict(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleCastStop(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	if err := sess.Controls.StopCast(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

// probeView pairs the raw analysis with its deterministic classification.
type probeView struct {
	StreamInfo *probe.Result `json:"streamInfo"`
	Support    probe.Support `json:"support"`
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		writeServiceUnavailable(w, "no prober configured")
		return
	}
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, errors.New("url query parameter required"))
		return
	}
	quick := r.URL.Query().Get("quick") == "true"

	result, err := s.prober.Probe(r.Context(), url, quick)
	if err != nil {
		writeServiceUnavailable(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, probeView{
		StreamInfo: result,
		Support:    probe.Classify(result),
	})
}
