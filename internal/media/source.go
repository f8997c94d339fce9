// Package media provides the local audio capability (what a browser would
// get from the microphone) and sinks for the remote audio track.
package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/1ureka/voicecall/internal/util"
)

// ErrUnavailable reports that local audio could not be captured: the
// source is missing, unreadable, or in a format we cannot send.
var ErrUnavailable = errors.New("local audio unavailable")

// frameDuration is the Opus frame length produced by every Source.
const frameDuration = 20 * time.Millisecond

// LocalAudio is an acquired local capture. Its track is attached to the
// peer connection; Stop ends capture and is safe to call more than once.
type LocalAudio interface {
	Track() webrtc.TrackLocal
	Stop() error
}

// Source acquires local audio. Acquire may block (device permission,
// file I/O) and must return promptly once ctx is cancelled.
type Source interface {
	Acquire(ctx context.Context) (LocalAudio, error)
}

// nextFunc produces the next sample to send.
type nextFunc func() (pionmedia.Sample, error)

// sampleTrack feeds a static-sample Opus track from a nextFunc at a fixed
// frame rate until stopped.
type sampleTrack struct {
	track *webrtc.TrackLocalStaticSample

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	closer   func() error
	stopErr  error
}

// newOpusTrack creates a local Opus track in stream streamID.
func newOpusTrack(streamID string) (*webrtc.TrackLocalStaticSample, error) {
	if streamID == "" {
		streamID = "voicecall"
	}
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		streamID,
	)
}

// startSampleTrack starts the pump goroutine. closer, if set, is called
// once by Stop after the pump exits.
func startSampleTrack(track *webrtc.TrackLocalStaticSample, next nextFunc, closer func() error) *sampleTrack {
	ctx, cancel := context.WithCancel(context.Background())
	st := &sampleTrack{
		track:  track,
		cancel: cancel,
		done:   make(chan struct{}),
		closer: closer,
	}
	go st.pump(ctx, next)
	return st
}

func (st *sampleTrack) pump(ctx context.Context, next nextFunc) {
	defer close(st.done)

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, err := next()
		if err != nil {
			util.LogError("local audio stopped: %v", err)
			return
		}

		if err := st.track.WriteSample(sample); err != nil {
			util.LogDebug("write local audio sample: %v", err)
			continue
		}
		util.Stats.AddSent(len(sample.Data))
	}
}

func (st *sampleTrack) Track() webrtc.TrackLocal { return st.track }

// Stop ends the pump and releases the underlying input.
func (st *sampleTrack) Stop() error {
	st.stopOnce.Do(func() {
		st.cancel()
		<-st.done
		if st.closer != nil {
			st.stopErr = st.closer()
		}
	})
	return st.stopErr
}
