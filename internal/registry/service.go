package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"drone-stream-gateway/internal/zlm"
)

var (
	// ErrStreamNotFound is returned when an operation needs a session that does
	// not exist.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrMediaServerUnavailable is returned when an operation needs the media
	// server API but no client is configured.
	ErrMediaServerUnavailable = errors.New("media server api not configured")
)

// MediaServer is the subset of the ZLMediaKit API the registry calls into.
type MediaServer interface {
	GetMediaList(ctx context.Context) ([]zlm.MediaInfo, error)
	CloseStream(ctx context.Context, key zlm.StreamKey) error
}

// Config holds the wiring-level settings of the registry.
type Config struct {
	// PlayURLBase is the media server address play URLs are built from.
	PlayURLBase string

	// RequireRegistration denies publish for streams that were not registered
	// with a drone id. When false every publish is allowed.
	RequireRegistration bool
}

// Service applies the stream lifecycle rules on top of the session Repository
// and persists finished recordings to the RecordingStore.
type Service struct {
	repo       Repository
	recordings RecordingStore
	media      MediaServer
	cfg        Config
	log        *slog.Logger
	now        func() time.Time
}

// NewService returns a Service. media may be nil when the media server API is
// not reachable; log may be nil to discard logs.
func NewService(repo Repository, recordings RecordingStore, media MediaServer, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		repo:       repo,
		recordings: recordings,
		media:      media,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Register binds streamID to droneID. Any previous session for the stream is
// replaced by a fresh offline one.
func (s *Service) Register(droneID, streamID string) Session {
	sess, _ := s.repo.Update(streamID, func(*Session) *Session {
		return newSession(streamID, droneID)
	})

	s.log.Info("drone registered",
		slog.String("drone_id", droneID),
		slog.String("stream_id", streamID))
	return sess
}

// Publish handles a stream going live and reports whether the media server
// should accept it. Unknown streams get a session with UnknownDroneID unless
// RequireRegistration is set, in which case they are denied and nothing is
// stored.
func (s *Service) Publish(ev PublishEvent) (allowed bool) {
	sess, stored := s.repo.Update(ev.StreamID, func(cur *Session) *Session {
		if cur == nil {
			if s.cfg.RequireRegistration {
				return nil
			}
			cur = newSession(ev.StreamID, UnknownDroneID)
		} else if s.cfg.RequireRegistration && !cur.Registered() {
			return nil
		}

		cur.Status = StatusOnline
		if ev.App != "" {
			cur.App = ev.App
		}
		if ev.Vhost != "" {
			cur.Vhost = ev.Vhost
		}
		cur.Params = ev.Params
		cur.ClientIP = ev.ClientIP
		cur.PublishedAt = s.now().UTC()
		return cur
	})

	if !stored {
		s.log.Warn("publish denied for unregistered stream", slog.String("stream_id", ev.StreamID))
		return false
	}

	if !sess.Registered() {
		s.log.Warn("unknown stream publishing", slog.String("stream_id", ev.StreamID))
	} else {
		s.log.Info("stream online",
			slog.String("stream_id", ev.StreamID),
			slog.String("drone_id", sess.DroneID),
			slog.String("app", sess.App),
			slog.String("vhost", sess.Vhost))
	}
	return true
}

// StreamChanged handles connect/disconnect notifications. A disconnect marks an
// existing session offline and keeps it so later recordings still resolve the
// drone. Disconnects for unknown streams and all connect notifications are
// ignored; connects are followed by a separate publish event.
func (s *Service) StreamChanged(ev StreamChangedEvent) {
	if ev.Regist {
		s.log.Debug("stream registered on media server",
			slog.String("stream_id", ev.StreamID),
			slog.String("schema", ev.Schema))
		return
	}

	_, ok := s.repo.Update(ev.StreamID, func(cur *Session) *Session {
		if cur == nil {
			return nil
		}
		cur.Status = StatusOffline
		return cur
	})
	if !ok {
		s.log.Debug("offline event for unknown stream", slog.String("stream_id", ev.StreamID))
		return
	}

	s.log.Info("stream offline",
		slog.String("stream_id", ev.StreamID),
		slog.String("schema", ev.Schema))
}

// RecordFinished stores a recording for the stream. The drone id is taken from
// the session as it is right now, or UnknownDroneID if there is none; the
// stream does not need to be online or registered. Store errors are returned
// to the caller without retrying.
func (s *Service) RecordFinished(ctx context.Context, ev RecordFinishedEvent) (Recording, error) {
	droneID := UnknownDroneID
	if sess, ok := s.repo.Get(ev.StreamID); ok && sess.DroneID != "" {
		droneID = sess.DroneID
	}

	rec, err := s.recordings.Insert(ctx, Recording{
		StreamID: ev.StreamID,
		DroneID:  droneID,
		FilePath: ev.FilePath,
		App:      ev.App,
		FileSize: ev.FileSize,
		TimeLen:  ev.TimeLen,
		URL:      ev.URL,
	})
	if err != nil {
		s.log.Error("recording save failed",
			slog.String("stream_id", ev.StreamID),
			slog.String("file_path", ev.FilePath),
			slog.String("error", err.Error()))
		return Recording{}, err
	}

	s.log.Info("recording saved",
		slog.String("stream_id", ev.StreamID),
		slog.String("drone_id", droneID),
		slog.String("file_path", ev.FilePath),
		slog.Uint64("record_id", uint64(rec.RecordID)))
	return rec, nil
}

// OnlineStream is a live session together with its derived play URL.
type OnlineStream struct {
	Session
	PlayURL string
}

// OnlineStreams returns the sessions currently online. Sessions created by
// unknown publishers are included only when includeUnknown is set.
func (s *Service) OnlineStreams(format PlayFormat, includeUnknown bool) []OnlineStream {
	sessions := s.repo.List()

	out := make([]OnlineStream, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Status != StatusOnline {
			continue
		}
		if !includeUnknown && !sess.Registered() {
			continue
		}
		out = append(out, OnlineStream{
			Session: sess,
			PlayURL: BuildPlayURL(s.cfg.PlayURLBase, sess.App, sess.StreamID, format),
		})
	}
	return out
}

// PlayURL derives the playback address of an online stream. It is recomputed
// on every call; ok is false if the stream is unknown or offline.
func (s *Service) PlayURL(streamID string, format PlayFormat) (string, bool) {
	sess, ok := s.repo.Get(streamID)
	if !ok || sess.Status != StatusOnline {
		return "", false
	}
	return BuildPlayURL(s.cfg.PlayURLBase, sess.App, streamID, format), true
}

// Session returns a copy of the session for streamID.
func (s *Service) Session(streamID string) (Session, bool) {
	return s.repo.Get(streamID)
}

// Recordings returns stored recordings newest first, optionally filtered by drone.
func (s *Service) Recordings(ctx context.Context, droneID string) ([]Recording, error) {
	return s.recordings.List(ctx, droneID)
}

// SetVideoMetadata attaches video track details to an existing session. It
// never creates sessions or changes their status.
func (s *Service) SetVideoMetadata(streamID string, meta VideoMetadata) bool {
	_, ok := s.repo.Update(streamID, func(cur *Session) *Session {
		if cur == nil {
			return nil
		}
		m := meta
		cur.Video = &m
		return cur
	})
	return ok
}

// CloseStream asks the media server to drop a known stream. The session state
// is left to the stream-changed event the media server sends afterwards.
func (s *Service) CloseStream(ctx context.Context, streamID string) error {
	if s.media == nil {
		return ErrMediaServerUnavailable
	}
	sess, ok := s.repo.Get(streamID)
	if !ok {
		return ErrStreamNotFound
	}

	err := s.media.CloseStream(ctx, zlm.StreamKey{App: sess.App, Vhost: sess.Vhost, Stream: streamID})
	if err != nil {
		return fmt.Errorf("close stream %q: %w", streamID, err)
	}
	return nil
}

// Counts returns the number of tracked sessions and how many are online.
func (s *Service) Counts() (total, online int) {
	return s.repo.Count()
}
