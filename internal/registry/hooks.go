package registry

import "time"

// ZLMediaKit webhook payloads. Only the fields the gateway uses are decoded;
// anything else in the body is ignored.

// OnPublishRequest is the body of the on_publish hook.
type OnPublishRequest struct {
	MediaServerID string `json:"mediaServerId"`
	App           string `json:"app"`
	Stream        string `json:"stream"`
	Params        string `json:"params"`
	IP            string `json:"ip"`
	Port          int    `json:"port"`
	Vhost         string `json:"vhost"`
	Schema        string `json:"schema"`
}

// OnStreamChangedRequest is the body of the on_stream_changed hook.
type OnStreamChangedRequest struct {
	MediaServerID string `json:"mediaServerId"`
	App           string `json:"app"`
	Stream        string `json:"stream"`
	Regist        bool   `json:"regist"`
	Schema        string `json:"schema"`
	Vhost         string `json:"vhost"`
}

// OnRecordMp4Request is the body of the on_record_mp4 hook.
type OnRecordMp4Request struct {
	MediaServerID string  `json:"mediaServerId"`
	App           string  `json:"app"`
	Stream        string  `json:"stream"`
	FileName      string  `json:"file_name"`
	FilePath      string  `json:"file_path"`
	FileSize      int64   `json:"file_size"`
	Folder        string  `json:"folder"`
	StartTime     int64   `json:"start_time"`
	TimeLen       float64 `json:"time_len"`
	URL           string  `json:"url"`
	Vhost         string  `json:"vhost"`
}

// HookResponse is the envelope ZLMediaKit expects back from every hook.
// Code 0 accepts the event.
type HookResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

var (
	hookOK         = HookResponse{Code: 0, Msg: "success"}
	hookAuthFailed = HookResponse{Code: -1, Msg: "auth failed"}
)

// RegisterRequest is the body of POST /api/stream/register.
type RegisterRequest struct {
	DroneID  string `json:"drone_id"`
	StreamID string `json:"stream_id"`
}

// RegisterResponse answers a registration.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StreamInfo is one entry of GET /api/streams/online.
type StreamInfo struct {
	StreamID   string   `json:"stream_id"`
	DroneID    string   `json:"drone_id"`
	Status     Status   `json:"status"`
	App        string   `json:"app"`
	PlayURL    string   `json:"play_url,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
	FPS        *float64 `json:"fps,omitempty"`
}

// RecordingResponse is one entry of GET /api/recordings.
type RecordingResponse struct {
	RecordID  uint      `json:"record_id"`
	DroneID   string    `json:"drone_id"`
	StreamID  string    `json:"stream_id"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
	App       string    `json:"app,omitempty"`
	FileSize  int64     `json:"file_size,omitempty"`
	TimeLen   float64   `json:"time_len,omitempty"`
	URL       string    `json:"url,omitempty"`
}
