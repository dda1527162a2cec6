package registry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"drone-stream-gateway/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// ErrMissingField is reported for hook bodies that decode but lack a required field.
var ErrMissingField = errors.New("missing required field")

// Handler exposes the webhook and query endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests); a nil Logger
// discards logs.
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{svc: svc, log: log, metrics: m}
}

// OnPublish handles POST /hook/on_publish.
func (h *Handler) OnPublish(w http.ResponseWriter, r *http.Request) {
	var req OnPublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Stream == "" {
		h.badHook(w, "on_publish", err)
		return
	}
	h.countHook("on_publish")

	allowed := h.svc.Publish(PublishEvent{
		StreamID: req.Stream,
		App:      req.App,
		Vhost:    req.Vhost,
		Params:   req.Params,
		ClientIP: req.IP,
	})
	if !allowed {
		if h.metrics != nil {
			h.metrics.IncPublishDenied()
		}
		writeJSON(w, http.StatusOK, hookAuthFailed)
		return
	}
	writeJSON(w, http.StatusOK, hookOK)
}

// OnStreamChanged handles POST /hook/on_stream_changed.
func (h *Handler) OnStreamChanged(w http.ResponseWriter, r *http.Request) {
	var req OnStreamChangedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Stream == "" {
		h.badHook(w, "on_stream_changed", err)
		return
	}
	h.countHook("on_stream_changed")

	h.svc.StreamChanged(StreamChangedEvent{
		StreamID: req.Stream,
		App:      req.App,
		Vhost:    req.Vhost,
		Schema:   req.Schema,
		Regist:   req.Regist,
	})
	writeJSON(w, http.StatusOK, hookOK)
}

// OnRecordMp4 handles POST /hook/on_record_mp4.
func (h *Handler) OnRecordMp4(w http.ResponseWriter, r *http.Request) {
	var req OnRecordMp4Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Stream == "" || req.FilePath == "" {
		h.badHook(w, "on_record_mp4", err)
		return
	}
	h.countHook("on_record_mp4")

	_, err := h.svc.RecordFinished(r.Context(), RecordFinishedEvent{
		StreamID: req.Stream,
		App:      req.App,
		FilePath: req.FilePath,
		FileSize: req.FileSize,
		TimeLen:  req.TimeLen,
		URL:      req.URL,
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncRecordingFailures()
		}
		writeJSON(w, http.StatusInternalServerError, HookResponse{Code: -1, Msg: "failed to save recording"})
		return
	}

	if h.metrics != nil {
		h.metrics.IncRecordingsSaved()
	}
	writeJSON(w, http.StatusOK, hookOK)
}

// Register handles POST /api/stream/register.
// Body: { "drone_id": "drone_001", "stream_id": "stream_001" }.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid register body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, RegisterResponse{Success: false, Message: "invalid request body"})
		return
	}
	if req.DroneID == "" || req.StreamID == "" {
		writeJSON(w, http.StatusBadRequest, RegisterResponse{Success: false, Message: "drone_id and stream_id are required"})
		return
	}

	h.svc.Register(req.DroneID, req.StreamID)
	writeJSON(w, http.StatusOK, RegisterResponse{Success: true, Message: "Registered successfully"})
}

// OnlineStreams handles GET /api/streams/online.
// Query: format=flv|hls, include_unknown=true.
func (h *Handler) OnlineStreams(w http.ResponseWriter, r *http.Request) {
	format, ok := ParsePlayFormat(r.URL.Query().Get("format"))
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	includeUnknown, _ := strconv.ParseBool(r.URL.Query().Get("include_unknown"))

	streams := h.svc.OnlineStreams(format, includeUnknown)
	out := make([]StreamInfo, 0, len(streams))
	for _, s := range streams {
		info := StreamInfo{
			StreamID: s.StreamID,
			DroneID:  s.DroneID,
			Status:   s.Status,
			App:      s.App,
			PlayURL:  s.PlayURL,
		}
		if s.Video != nil {
			info.Resolution = s.Video.Resolution()
			if s.Video.FPS > 0 {
				fps := s.Video.FPS
				info.FPS = &fps
			}
		}
		out = append(out, info)
	}

	h.log.Debug("online streams fetched", slog.Int("count", len(out)))
	writeJSON(w, http.StatusOK, out)
}

// Recordings handles GET /api/recordings. Query: drone_id (optional).
func (h *Handler) Recordings(w http.ResponseWriter, r *http.Request) {
	droneID := r.URL.Query().Get("drone_id")

	recs, err := h.svc.Recordings(r.Context(), droneID)
	if err != nil {
		h.log.Error("list recordings failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	out := make([]RecordingResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, RecordingResponse{
			RecordID:  rec.RecordID,
			DroneID:   rec.DroneID,
			StreamID:  rec.StreamID,
			FilePath:  rec.FilePath,
			CreatedAt: rec.CreatedAt,
			App:       rec.App,
			FileSize:  rec.FileSize,
			TimeLen:   rec.TimeLen,
			URL:       rec.URL,
		})
	}

	h.log.Debug("recordings fetched", slog.Int("count", len(out)), slog.String("drone_id", droneID))
	writeJSON(w, http.StatusOK, out)
}

// CloseStream handles POST /api/stream/{stream_id}/close.
func (h *Handler) CloseStream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "stream_id")
	if streamID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err := h.svc.CloseStream(r.Context(), streamID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, ErrStreamNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrMediaServerUnavailable):
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		h.log.Error("close stream failed", slog.String("stream_id", streamID), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
	}
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Drone Stream Server is running"})
}

func (h *Handler) countHook(event string) {
	if h.metrics != nil {
		h.metrics.IncHookEvent(event)
	}
}

func (h *Handler) badHook(w http.ResponseWriter, event string, err error) {
	if err == nil {
		err = ErrMissingField
	}
	h.log.Debug("invalid hook body", slog.String("event", event), slog.String("error", err.Error()))
	writeJSON(w, http.StatusBadRequest, HookResponse{Code: -1, Msg: "invalid payload"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
