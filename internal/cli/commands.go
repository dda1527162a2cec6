package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"drone-stream-gateway/internal/registry"

	"github.com/spf13/cobra"
)

const mockMediaServerID = "dronectl"

func newRegisterCmd(opts *options) *cobra.Command {
	var req registry.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Bind a drone id to a stream id",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp registry.RegisterResponse
			if err := newGatewayClient(opts).do(cmd.Context(), http.MethodPost, "/api/stream/register", req, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&req.DroneID, "drone-id", "drone123", "drone identifier")
	cmd.Flags().StringVar(&req.StreamID, "stream-id", "stream123", "stream identifier")
	return cmd
}

type hookFlags struct {
	streamID string
	app      string
	filePath string
}

func newHookCmd(opts *options) *cobra.Command {
	f := &hookFlags{}

	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Send a simulated media server webhook",
	}
	cmd.PersistentFlags().StringVar(&f.streamID, "stream-id", "stream123", "stream identifier")
	cmd.PersistentFlags().StringVar(&f.app, "app", "live", "media server application")

	send := func(path string, payload func() any) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			var resp registry.HookResponse
			if err := newGatewayClient(opts).do(cmd.Context(), http.MethodPost, path, payload(), &resp); err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if resp.Code != 0 {
				return fmt.Errorf("hook rejected: %s", resp.Msg)
			}
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "publish",
		Short: "Simulate a stream starting (on_publish)",
		RunE:  send("/hook/on_publish", func() any { return publishRequest(f) }),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unpublish",
		Short: "Simulate a stream disconnecting (on_stream_changed, regist=false)",
		RunE:  send("/hook/on_stream_changed", func() any { return unpublishRequest(f) }),
	})
	record := &cobra.Command{
		Use:   "record",
		Short: "Simulate a finished MP4 recording (on_record_mp4)",
		RunE:  send("/hook/on_record_mp4", func() any { return recordRequest(f, time.Now()) }),
	}
	record.Flags().StringVar(&f.filePath, "file-path", "", "recording path (default derived from stream id)")
	cmd.AddCommand(record)

	return cmd
}

func publishRequest(f *hookFlags) registry.OnPublishRequest {
	return registry.OnPublishRequest{
		MediaServerID: mockMediaServerID,
		App:           f.app,
		Stream:        f.streamID,
		IP:            "127.0.0.1",
		Port:          1935,
		Vhost:         "__defaultVhost__",
		Schema:        "rtmp",
	}
}

func unpublishRequest(f *hookFlags) registry.OnStreamChangedRequest {
	return registry.OnStreamChangedRequest{
		MediaServerID: mockMediaServerID,
		App:           f.app,
		Stream:        f.streamID,
		Regist:        false,
		Schema:        "rtmp",
		Vhost:         "__defaultVhost__",
	}
}

func recordRequest(f *hookFlags, now time.Time) registry.OnRecordMp4Request {
	day := now.Format("2006-01-02")
	folder := fmt.Sprintf("/data/media/%s/%s/", f.app, f.streamID)
	name := fmt.Sprintf("%s.mp4", now.Format("15-04-05"))
	path := f.filePath
	if path == "" {
		path = folder + day + "/" + name
	}
	return registry.OnRecordMp4Request{
		MediaServerID: mockMediaServerID,
		App:           f.app,
		Stream:        f.streamID,
		FileName:      name,
		FilePath:      path,
		Folder:        folder,
		StartTime:     now.Unix(),
		URL:           fmt.Sprintf("record/%s/%s/%s/%s", f.app, f.streamID, day, name),
		Vhost:         "__defaultVhost__",
	}
}

func newStreamsCmd(opts *options) *cobra.Command {
	var format string
	var includeUnknown bool

	cmd := &cobra.Command{
		Use:   "streams",
		Short: "List online streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if format != "" {
				q.Set("format", format)
			}
			if includeUnknown {
				q.Set("include_unknown", "true")
			}
			path := "/api/streams/online"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var streams []registry.StreamInfo
			if err := newGatewayClient(opts).do(cmd.Context(), http.MethodGet, path, nil, &streams); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), streams)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "play url format: flv or hls")
	cmd.Flags().BoolVar(&includeUnknown, "include-unknown", false, "include streams published without registration")
	return cmd
}

func newRecordingsCmd(opts *options) *cobra.Command {
	var droneID string

	cmd := &cobra.Command{
		Use:   "recordings",
		Short: "List recordings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/recordings"
			if droneID != "" {
				path += "?" + url.Values{"drone_id": {droneID}}.Encode()
			}

			var recs []registry.RecordingResponse
			if err := newGatewayClient(opts).do(cmd.Context(), http.MethodGet, path, nil, &recs); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringVar(&droneID, "drone-id", "", "only recordings of this drone")
	return cmd
}
