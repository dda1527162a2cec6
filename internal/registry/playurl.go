package registry

import (
	"strings"
)

// PlayFormat selects the container of a derived play URL.
type PlayFormat string

const (
	FormatFLV PlayFormat = "flv"
	FormatHLS PlayFormat = "hls"
)

// DefaultPlayFormat is used when the caller does not ask for a format.
const DefaultPlayFormat = FormatFLV

// ParsePlayFormat maps a query value to a PlayFormat. An empty string yields
// DefaultPlayFormat; unknown values return ok=false.
func ParsePlayFormat(s string) (PlayFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultPlayFormat, true
	case "flv":
		return FormatFLV, true
	case "hls", "m3u8":
		return FormatHLS, true
	default:
		return "", false
	}
}

// extension returns the file extension ZLMediaKit serves the format under.
func (f PlayFormat) extension() string {
	if f == FormatHLS {
		return ".m3u8"
	}
	return ".flv"
}

// BuildPlayURL joins the media server base address, app and stream id into a
// playback URL: {base}/{app}/{stream}{ext}. Trailing slashes on base and
// surrounding slashes on app are dropped so the result has single separators.
func BuildPlayURL(base, app, streamID string, format PlayFormat) string {
	var b strings.Builder

	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteString("/")
	if app = strings.Trim(app, "/"); app != "" {
		b.WriteString(app)
		b.WriteString("/")
	}
	b.WriteString(streamID)
	b.WriteString(format.extension())

	return b.String()
}
