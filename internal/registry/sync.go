package registry

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// MetadataSyncer periodically copies video track details reported by the
// media server into the matching sessions.
type MetadataSyncer struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger
}

// NewMetadataSyncer returns a syncer polling every interval.
func NewMetadataSyncer(svc *Service, interval time.Duration, log *slog.Logger) *MetadataSyncer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MetadataSyncer{svc: svc, interval: interval, log: log}
}

// Run polls until ctx is done. It returns immediately if interval is not
// positive or the service has no media server.
func (m *MetadataSyncer) Run(ctx context.Context) {
	if m.interval <= 0 || m.svc.media == nil {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn("media metadata sync failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce fetches the media list once and returns how many sessions were
// updated. Streams without a session are skipped.
func (m *MetadataSyncer) SyncOnce(ctx context.Context) (int, error) {
	if m.svc.media == nil {
		return 0, ErrMediaServerUnavailable
	}

	media, err := m.svc.media.GetMediaList(ctx)
	if err != nil {
		return 0, err
	}

	updated := make(map[string]struct{})
	for _, mi := range media {
		track, ok := mi.VideoTrack()
		if !ok {
			continue
		}
		meta := VideoMetadata{
			Codec:  track.CodecIDName,
			Width:  track.Width,
			Height: track.Height,
			FPS:    track.FPS,
		}
		if m.svc.SetVideoMetadata(mi.Stream, meta) {
			updated[mi.Stream] = struct{}{}
		}
	}

	m.log.Debug("media metadata synced",
		slog.Int("media", len(media)),
		slog.Int("sessions_updated", len(updated)))
	return len(updated), nil
}
