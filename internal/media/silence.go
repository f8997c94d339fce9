package media

import (
	"context"
	"fmt"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// opusSilence is a single Opus TOC byte plus padding that decodes to 20 ms
// of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Silence is a Source that sends Opus silence. It never fails and is the
// default when no audio input is configured.
type Silence struct {
	StreamID string
}

// Acquire implements Source.
func (s Silence) Acquire(ctx context.Context) (LocalAudio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	track, err := newOpusTrack(s.StreamID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	next := func() (pionmedia.Sample, error) {
		return pionmedia.Sample{Data: opusSilence, Duration: frameDuration}, nil
	}
	return startSampleTrack(track, next, nil), nil
}
