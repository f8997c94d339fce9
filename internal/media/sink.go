package media

import (
	"context"
	"errors"
	"io"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/1ureka/voicecall/internal/util"
)

// RemoteTrack is the inbound side of a negotiated audio stream.
// *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
	Codec() webrtc.RTPCodecParameters
}

// Sink consumes remote audio. Play blocks until the track ends (the peer
// connection closed) or ctx is cancelled.
type Sink interface {
	Play(ctx context.Context, track RemoteTrack) error
}

// Discard reads and drops remote audio, keeping receive statistics.
type Discard struct{}

// Play implements Sink.
func (Discard) Play(ctx context.Context, track RemoteTrack) error {
	return readLoop(ctx, track, func(*rtp.Packet) error { return nil })
}

// OggRecorder writes remote Opus audio to an Ogg file.
type OggRecorder struct {
	Path string
}

// Play implements Sink.
func (o OggRecorder) Play(ctx context.Context, track RemoteTrack) error {
	w, err := oggwriter.New(o.Path, 48000, 2)
	if err != nil {
		return err
	}

	util.LogInfo("recording remote audio to %s", o.Path)
	err = readLoop(ctx, track, w.WriteRTP)
	return errors.Join(err, w.Close())
}

// readLoop reads RTP until the track ends. End of track is not an error.
func readLoop(ctx context.Context, track RemoteTrack, write func(*rtp.Packet) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				util.LogDebug("remote track %s ended: %v", track.ID(), err)
			}
			return nil
		}

		util.Stats.AddRecv(len(pkt.Payload))
		if err := write(pkt); err != nil {
			return err
		}
	}
}
