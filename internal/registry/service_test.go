package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"drone-stream-gateway/internal/zlm"
)

const testPlayBase = "http://localhost:9000"

// fakeMedia is an in-process MediaServer.
type fakeMedia struct {
	mu       sync.Mutex
	media    []zlm.MediaInfo
	listErr  error
	closeErr error
	closed   []zlm.StreamKey
}

func (f *fakeMedia) GetMediaList(ctx context.Context) ([]zlm.MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.media, f.listErr
}

func (f *fakeMedia) CloseStream(ctx context.Context, key zlm.StreamKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = append(f.closed, key)
	return nil
}

// failingRecordingStore rejects every insert.
type failingRecordingStore struct{}

var errStoreDown = errors.New("store down")

func (failingRecordingStore) Insert(context.Context, Recording) (Recording, error) {
	return Recording{}, errStoreDown
}

func (failingRecordingStore) List(context.Context, string) ([]Recording, error) {
	return nil, errStoreDown
}

func newTestService(t *testing.T, cfg Config) (*Service, *fakeMedia) {
	t.Helper()
	if cfg.PlayURLBase == "" {
		cfg.PlayURLBase = testPlayBase
	}
	media := &fakeMedia{}
	return NewService(NewInMemoryRepository(), newTestRecordingStore(t), media, cfg, nil), media
}

func publish(svc *Service, streamID string) bool {
	return svc.Publish(PublishEvent{StreamID: streamID, App: "live", Vhost: "__defaultVhost__", ClientIP: "192.168.1.100"})
}

func offline(svc *Service, streamID string) {
	svc.StreamChanged(StreamChangedEvent{StreamID: streamID, App: "live", Schema: "rtmp", Regist: false})
}

func TestService_Register(t *testing.T) {
	svc, _ := newTestService(t, Config{})

	sess := svc.Register("drone_001", "stream_001")
	if sess.Status != StatusOffline || sess.DroneID != "drone_001" {
		t.Errorf("Register: got %+v", sess)
	}
	if got := svc.OnlineStreams(FormatFLV, true); len(got) != 0 {
		t.Errorf("registered but unpublished stream should not be online, got %+v", got)
	}

	t.Run("re_register_overwrites", func(t *testing.T) {
		publish(svc, "stream_001")
		sess := svc.Register("drone_002", "stream_001")
		if sess.DroneID != "drone_002" || sess.Status != StatusOffline {
			t.Errorf("re-register should reset the session, got %+v", sess)
		}
	})
}

func TestService_never_seen_streams_not_online(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	svc.Register("d1", "s1")
	publish(svc, "s1")

	for _, s := range svc.OnlineStreams(FormatFLV, true) {
		if s.StreamID != "s1" {
			t.Errorf("unexpected stream %s in online list", s.StreamID)
		}
	}
	if _, ok := svc.PlayURL("never", FormatFLV); ok {
		t.Error("unknown stream should have no play url")
	}
}

func TestService_Publish_registered(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	svc.Register("drone_001", "stream_001")

	if !publish(svc, "stream_001") {
		t.Fatal("publish should be allowed")
	}

	got := svc.OnlineStreams(FormatFLV, false)
	if len(got) != 1 {
		t.Fatalf("expected 1 online stream, got %d", len(got))
	}
	s := got[0]
	if s.StreamID != "stream_001" || s.DroneID != "drone_001" || s.Status != StatusOnline || s.App != "live" {
		t.Errorf("unexpected online stream %+v", s)
	}
	if want := testPlayBase + "/live/stream_001.flv"; s.PlayURL != want {
		t.Errorf("play url: got %s, want %s", s.PlayURL, want)
	}
	if s.ClientIP != "192.168.1.100" || s.PublishedAt.IsZero() {
		t.Errorf("publish metadata not recorded: %+v", s.Session)
	}
}

func TestService_Publish_unknown_stream(t *testing.T) {
	svc, _ := newTestService(t, Config{})

	if !publish(svc, "unknown_stream") {
		t.Fatal("unknown publisher should be allowed by default")
	}
	if got := svc.OnlineStreams(FormatFLV, false); len(got) != 0 {
		t.Errorf("unknown stream must not be listed, got %+v", got)
	}

	sess, ok := svc.Session("unknown_stream")
	if !ok || sess.DroneID != UnknownDroneID || sess.Status != StatusOnline {
		t.Errorf("expected tracked unknown session, got %+v ok=%v", sess, ok)
	}
	if got := svc.OnlineStreams(FormatFLV, true); len(got) != 1 {
		t.Errorf("include_unknown should list it, got %+v", got)
	}

	t.Run("later_registration_claims_stream", func(t *testing.T) {
		svc.Register("drone_9", "unknown_stream")
		publish(svc, "unknown_stream")
		got := svc.OnlineStreams(FormatFLV, false)
		if len(got) != 1 || got[0].DroneID != "drone_9" {
			t.Errorf("expected registered stream online, got %+v", got)
		}
	})
}

func TestService_Publish_require_registration(t *testing.T) {
	svc, _ := newTestService(t, Config{RequireRegistration: true})

	if publish(svc, "rogue") {
		t.Error("unregistered publish should be denied")
	}
	if _, ok := svc.Session("rogue"); ok {
		t.Error("denied publish must not create a session")
	}

	svc.Register("d1", "s1")
	if !publish(svc, "s1") {
		t.Error("registered publish should be allowed")
	}
}

func TestService_Publish_refreshes_app(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	svc.Register("d1", "s1")
	publish(svc, "s1")

	svc.Publish(PublishEvent{StreamID: "s1", App: "rtp"})
	url, ok := svc.PlayURL("s1", FormatHLS)
	if !ok || url != testPlayBase+"/rtp/s1.m3u8" {
		t.Errorf("play url should follow latest app, got %s ok=%v", url, ok)
	}
}

func TestService_StreamChanged(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	svc.Register("drone_001", "stream_001")
	publish(svc, "stream_001")

	t.Run("regist_true_is_noop", func(t *testing.T) {
		svc.StreamChanged(StreamChangedEvent{StreamID: "stream_001", Regist: true})
		sess, _ := svc.Session("stream_001")
		if sess.Status != StatusOnline {
			t.Errorf("regist=true should not change state, got %s", sess.Status)
		}
		svc.StreamChanged(StreamChangedEvent{StreamID: "new_stream", Regist: true})
		if _, ok := svc.Session("new_stream"); ok {
			t.Error("regist=true should not create sessions")
		}
	})

	t.Run("disconnect_marks_offline_keeps_session", func(t *testing.T) {
		offline(svc, "stream_001")
		if got := svc.OnlineStreams(FormatFLV, true); len(got) != 0 {
			t.Errorf("expected empty online list, got %+v", got)
		}
		sess, ok := svc.Session("stream_001")
		if !ok || sess.DroneID != "drone_001" || sess.Status != StatusOffline {
			t.Errorf("session should be retained offline, got %+v ok=%v", sess, ok)
		}
		if _, ok := svc.PlayURL("stream_001", FormatFLV); ok {
			t.Error("offline stream should have no play url")
		}
	})

	t.Run("disconnect_unknown_dropped", func(t *testing.T) {
		offline(svc, "ghost")
		if _, ok := svc.Session("ghost"); ok {
			t.Error("disconnect must not create a session")
		}
	})
}

func TestService_RecordFinished(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves_drone_after_disconnect", func(t *testing.T) {
		svc, _ := newTestService(t, Config{})
		svc.Register("drone_001", "stream_001")
		publish(svc, "stream_001")
		offline(svc, "stream_001")

		rec, err := svc.RecordFinished(ctx, RecordFinishedEvent{StreamID: "stream_001", FilePath: "/data/a.mp4"})
		if err != nil {
			t.Fatalf("RecordFinished: %v", err)
		}
		if rec.DroneID != "drone_001" || rec.RecordID == 0 {
			t.Errorf("unexpected recording %+v", rec)
		}
	})

	t.Run("never_registered_is_unknown", func(t *testing.T) {
		svc, _ := newTestService(t, Config{})
		rec, err := svc.RecordFinished(ctx, RecordFinishedEvent{StreamID: "stranger", FilePath: "/data/b.mp4"})
		if err != nil {
			t.Fatalf("RecordFinished: %v", err)
		}
		if rec.DroneID != UnknownDroneID {
			t.Errorf("expected unknown drone, got %s", rec.DroneID)
		}
		if _, ok := svc.Session("stranger"); ok {
			t.Error("recording must not create a session")
		}
	})

	t.Run("additive_newest_first", func(t *testing.T) {
		svc, _ := newTestService(t, Config{})
		svc.Register("d1", "s1")
		first, _ := svc.RecordFinished(ctx, RecordFinishedEvent{StreamID: "s1", FilePath: "/same.mp4"})
		second, _ := svc.RecordFinished(ctx, RecordFinishedEvent{StreamID: "s1", FilePath: "/same.mp4"})

		recs, err := svc.Recordings(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 2 || recs[0].RecordID != second.RecordID || recs[1].RecordID != first.RecordID {
			t.Errorf("expected two rows newest first, got %+v", recs)
		}
	})

	t.Run("store_failure_propagates", func(t *testing.T) {
		svc := NewService(NewInMemoryRepository(), failingRecordingStore{}, nil, Config{}, nil)
		_, err := svc.RecordFinished(ctx, RecordFinishedEvent{StreamID: "s1", FilePath: "/x.mp4"})
		if !errors.Is(err, errStoreDown) {
			t.Errorf("expected store error, got %v", err)
		}
	})
}

func TestService_Recordings_filter(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	svc.Register("drone_a", "stream_a")
	svc.Register("drone_b", "stream_b")

	for _, s := range []string{"stream_a", "stream_b", "stream_a", "stream_x"} {
		if _, err := svc.RecordFinished(ctx, RecordFinishedEvent{StreamID: s, FilePath: "/" + s + ".mp4"}); err != nil {
			t.Fatal(err)
		}
	}

	for drone, want := range map[string]int{"drone_a": 2, "drone_b": 1, UnknownDroneID: 1, "drone_z": 0, "": 4} {
		recs, err := svc.Recordings(ctx, drone)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != want {
			t.Errorf("drone %q: got %d recordings, want %d", drone, len(recs), want)
		}
		for _, r := range recs {
			if drone != "" && r.DroneID != drone {
				t.Errorf("drone %q filter returned %s", drone, r.DroneID)
			}
		}
	}
}

// Register, publish, disconnect, then record: the end-to-end lifecycle of one drone.
func TestService_lifecycle_scenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})

	svc.Register("drone_001", "stream_001")
	publish(svc, "stream_001")

	online := svc.OnlineStreams(DefaultPlayFormat, false)
	if len(online) != 1 {
		t.Fatalf("expected one online stream, got %d", len(online))
	}
	if o := online[0]; o.StreamID != "stream_001" || o.DroneID != "drone_001" || o.Status != StatusOnline ||
		o.App != "live" || o.PlayURL != testPlayBase+"/live/stream_001.flv" {
		t.Errorf("unexpected online entry %+v", o)
	}

	offline(svc, "stream_001")
	if got := svc.OnlineStreams(DefaultPlayFormat, false); len(got) != 0 {
		t.Errorf("expected empty online list, got %+v", got)
	}

	if _, err := svc.RecordFinished(ctx, RecordFinishedEvent{StreamID: "stream_001", FilePath: "/data/a.mp4"}); err != nil {
		t.Fatal(err)
	}
	recs, err := svc.Recordings(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].StreamID != "stream_001" || recs[0].DroneID != "drone_001" || recs[0].FilePath != "/data/a.mp4" {
		t.Errorf("unexpected recordings %+v", recs)
	}
}

func TestService_concurrent_events(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	svc.Register("d1", "s1")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); publish(svc, "s1") }()
		go func() { defer wg.Done(); offline(svc, "s1") }()
	}
	wg.Wait()

	// Whatever order won, the session is whole: one of the two states, drone intact.
	sess, ok := svc.Session("s1")
	if !ok || sess.DroneID != "d1" || (sess.Status != StatusOnline && sess.Status != StatusOffline) {
		t.Errorf("unexpected session after concurrent events: %+v", sess)
	}
	if sess.Status == StatusOnline && sess.App != "live" {
		t.Errorf("online session lost publish metadata: %+v", sess)
	}
}

func TestService_SetVideoMetadata(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	if svc.SetVideoMetadata("missing", VideoMetadata{Width: 1}) {
		t.Error("metadata must not create sessions")
	}

	svc.Register("d1", "s1")
	publish(svc, "s1")
	if !svc.SetVideoMetadata("s1", VideoMetadata{Codec: "H264", Width: 1280, Height: 720, FPS: 30}) {
		t.Fatal("SetVideoMetadata: false")
	}

	got := svc.OnlineStreams(FormatFLV, false)
	if len(got) != 1 || got[0].Video == nil || got[0].Video.Resolution() != "1280x720" || got[0].Status != StatusOnline {
		t.Errorf("unexpected stream %+v", got)
	}
}

func TestService_CloseStream(t *testing.T) {
	ctx := context.Background()

	t.Run("not_configured", func(t *testing.T) {
		svc := NewService(NewInMemoryRepository(), failingRecordingStore{}, nil, Config{}, nil)
		if err := svc.CloseStream(ctx, "s1"); !errors.Is(err, ErrMediaServerUnavailable) {
			t.Errorf("expected ErrMediaServerUnavailable, got %v", err)
		}
	})

	t.Run("unknown_stream", func(t *testing.T) {
		svc, _ := newTestService(t, Config{})
		if err := svc.CloseStream(ctx, "missing"); !errors.Is(err, ErrStreamNotFound) {
			t.Errorf("expected ErrStreamNotFound, got %v", err)
		}
	})

	t.Run("forwards_stream_key", func(t *testing.T) {
		svc, media := newTestService(t, Config{})
		svc.Register("d1", "s1")
		svc.Publish(PublishEvent{StreamID: "s1", App: "rtp", Vhost: "v1"})

		if err := svc.CloseStream(ctx, "s1"); err != nil {
			t.Fatalf("CloseStream: %v", err)
		}
		if len(media.closed) != 1 || media.closed[0] != (zlm.StreamKey{App: "rtp", Vhost: "v1", Stream: "s1"}) {
			t.Errorf("unexpected close calls %+v", media.closed)
		}
		// State is left to the media server's stream-changed event.
		if sess, _ := svc.Session("s1"); sess.Status != StatusOnline {
			t.Errorf("close should not change state directly, got %s", sess.Status)
		}
	})

	t.Run("upstream_error_wrapped", func(t *testing.T) {
		svc, media := newTestService(t, Config{})
		media.closeErr = &zlm.APIError{Method: "close_stream", Code: -500, Msg: "not found"}
		svc.Register("d1", "s1")

		err := svc.CloseStream(ctx, "s1")
		var apiErr *zlm.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != -500 {
			t.Errorf("expected wrapped APIError, got %v", err)
		}
	})
}

func TestService_Publish_timestamp_uses_clock(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	fixed := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	publish(svc, "s1")
	sess, _ := svc.Session("s1")
	if !sess.PublishedAt.Equal(fixed) {
		t.Errorf("published_at: got %v want %v", sess.PublishedAt, fixed)
	}
}
