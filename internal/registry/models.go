package registry

import (
	"fmt"
	"time"
)

// UnknownDroneID marks sessions and recordings whose owning drone could not be
// resolved from the registry.
const UnknownDroneID = "unknown"

const (
	defaultApp   = "live"
	defaultVhost = "__defaultVhost__"
)

// Status is the lifecycle state of a stream session.
type Status string

const (
	// StatusOffline covers both "registered but never published" and "disconnected".
	StatusOffline Status = "Offline"
	StatusOnline  Status = "Online"
)

// VideoMetadata describes the video track of a live stream, when the media
// server reports one.
type VideoMetadata struct {
	Codec  string
	Width  int
	Height int
	FPS    float64
}

// Resolution formats the frame size as "WxH", or "" if unknown.
func (m *VideoMetadata) Resolution() string {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// Session is the in-memory state kept for one stream identifier.
type Session struct {
	StreamID string
	DroneID  string
	Status   Status

	// Refreshed from the most recent publish event.
	App         string
	Vhost       string
	Params      string
	ClientIP    string
	PublishedAt time.Time

	Video *VideoMetadata
}

// newSession returns an offline session with placeholder stream metadata.
func newSession(streamID, droneID string) *Session {
	return &Session{
		StreamID: streamID,
		DroneID:  droneID,
		Status:   StatusOffline,
		App:      defaultApp,
		Vhost:    defaultVhost,
	}
}

// clone returns a deep copy so callers never share memory with the store.
func (s *Session) clone() Session {
	c := *s
	if s.Video != nil {
		v := *s.Video
		c.Video = &v
	}
	return c
}

// Registered reports whether the session belongs to an explicitly registered drone.
func (s Session) Registered() bool {
	return s.DroneID != "" && s.DroneID != UnknownDroneID
}

// PublishEvent carries the fields of an on_publish hook the registry cares about.
type PublishEvent struct {
	StreamID string
	App      string
	Vhost    string
	Params   string
	ClientIP string
}

// StreamChangedEvent carries the fields of an on_stream_changed hook.
type StreamChangedEvent struct {
	StreamID string
	App      string
	Vhost    string
	Schema   string
	Regist   bool
}

// RecordFinishedEvent carries the fields of an on_record_mp4 hook.
type RecordFinishedEvent struct {
	StreamID string
	App      string
	FilePath string
	FileSize int64
	TimeLen  float64
	URL      string
}

// Recording is an immutable row describing one finished recording file.
type Recording struct {
	RecordID  uint      `gorm:"column:record_id;primaryKey;autoIncrement"`
	StreamID  string    `gorm:"column:stream_id;not null;index"`
	DroneID   string    `gorm:"column:drone_id;not null;index"`
	FilePath  string    `gorm:"column:file_path;not null"`
	App       string    `gorm:"column:app"`
	FileSize  int64     `gorm:"column:file_size"`
	TimeLen   float64   `gorm:"column:time_len"`
	URL       string    `gorm:"column:url"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default pluralization.
func (Recording) TableName() string {
	return "video_recordings"
}
