package media

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// Compile-time interface checks.
var (
	_ Source      = Silence{}
	_ Source      = OggFile{}
	_ Sink        = Discard{}
	_ Sink        = OggRecorder{}
	_ RemoteTrack = (*webrtc.TrackRemote)(nil)
	_ RemoteTrack = (*fakeTrack)(nil)
)

// fakeTrack replays a fixed list of packets, then reports io.EOF.
type fakeTrack struct {
	mu      sync.Mutex
	packets []*rtp.Packet
}

func newFakeTrack(n int) *fakeTrack {
	ft := &fakeTrack{}
	for i := range n {
		ft.packets = append(ft.packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: uint16(i + 1),
				Timestamp:      uint32(i * 960),
				SSRC:           12345,
			},
			Payload: opusSilence,
		})
	}
	return ft
}

func (f *fakeTrack) ID() string { return "fake-audio" }

func (f *fakeTrack) Codec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		PayloadType:        111,
	}
}

func (f *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.packets) == 0 {
		return nil, nil, io.EOF
	}
	pkt := f.packets[0]
	f.packets = f.packets[1:]
	return pkt, nil, nil
}

// writeOggFixture records n silent Opus packets into an Ogg file.
func writeOggFixture(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.ogg")
	w, err := oggwriter.New(path, 48000, 2)
	if err != nil {
		t.Fatalf("oggwriter: %v", err)
	}
	track := newFakeTrack(n)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			break
		}
		if err := w.WriteRTP(pkt); err != nil {
			t.Fatalf("WriteRTP: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	return path
}

func TestSilenceAcquireAndStop(t *testing.T) {
	audio, err := Silence{StreamID: "test"}.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	track := audio.Track()
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		t.Errorf("track kind = %s, want audio", track.Kind())
	}
	if track.StreamID() != "test" {
		t.Errorf("stream id = %q, want test", track.StreamID())
	}

	if err := audio.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := audio.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestAcquireCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (Silence{}).Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Silence.Acquire = %v, want context.Canceled", err)
	}
	if _, err := (OggFile{Path: "whatever.ogg"}).Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("OggFile.Acquire = %v, want context.Canceled", err)
	}
}

func TestOggFileUnavailable(t *testing.T) {
	dir := t.TempDir()
	notOgg := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notOgg, []byte("definitely not an ogg stream"), 0o600); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.ogg")},
		{"not ogg", notOgg},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			audio, err := OggFile{Path: tc.path}.Acquire(context.Background())
			if err == nil {
				audio.Stop()
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("got %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestOggFileAcquire(t *testing.T) {
	path := writeOggFixture(t, 10)

	audio, err := OggFile{Path: path}.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if audio.Track().Kind() != webrtc.RTPCodecTypeAudio {
		t.Errorf("track kind = %s, want audio", audio.Track().Kind())
	}
	if err := audio.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestOggPagerRewinds(t *testing.T) {
	path := writeOggFixture(t, 3)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		t.Fatalf("oggreader: %v", err)
	}
	p := &oggPager{file: f, reader: reader}

	// Far more pages than the file holds: the pager must keep going.
	for i := range 20 {
		sample, err := p.next()
		if err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
		if sample.Duration <= 0 {
			t.Fatalf("page %d: non-positive duration %v", i, sample.Duration)
		}
	}
}

func TestDiscardDrainsTrack(t *testing.T) {
	if err := (Discard{}).Play(context.Background(), newFakeTrack(5)); err != nil {
		t.Fatalf("Play: %v", err)
	}
}

func TestDiscardStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	track := newFakeTrack(5)
	if err := (Discard{}).Play(ctx, track); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(track.packets) != 5 {
		t.Errorf("read %d packets after cancel, want 0", 5-len(track.packets))
	}
}

func TestOggRecorderWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.ogg")

	if err := (OggRecorder{Path: path}).Play(context.Background(), newFakeTrack(25)); err != nil {
		t.Fatalf("Play: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	_, header, err := oggreader.NewWith(f)
	if err != nil {
		t.Fatalf("recording is not ogg: %v", err)
	}
	if header.Channels != 2 || header.SampleRate != 48000 {
		t.Errorf("header = %d ch @ %d Hz, want 2 ch @ 48000 Hz", header.Channels, header.SampleRate)
	}
}
