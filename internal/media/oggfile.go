package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// OggFile is a Source that streams Opus pages from an Ogg file, starting
// over at end of file. A file that is missing or not Ogg/Opus makes
// Acquire fail with ErrUnavailable.
type OggFile struct {
	Path     string
	StreamID string
}

// Acquire implements Source.
func (o OggFile) Acquire(ctx context.Context) (LocalAudio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(o.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, o.Path, err)
	}

	track, err := newOpusTrack(o.StreamID)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	p := &oggPager{file: f, reader: reader}
	return startSampleTrack(track, p.next, f.Close), nil
}

// oggPager turns Ogg pages into samples, rewinding at EOF.
type oggPager struct {
	file        *os.File
	reader      *oggreader.OggReader
	lastGranule uint64
}

func (p *oggPager) next() (pionmedia.Sample, error) {
	page, header, err := p.reader.ParseNextPage()
	if errors.Is(err, io.EOF) {
		if err := p.rewind(); err != nil {
			return pionmedia.Sample{}, err
		}
		page, header, err = p.reader.ParseNextPage()
	}
	if err != nil {
		return pionmedia.Sample{}, fmt.Errorf("read ogg page: %w", err)
	}

	// The granule position counts 48 kHz samples.
	duration := frameDuration
	if header.GranulePosition > p.lastGranule {
		count := header.GranulePosition - p.lastGranule
		duration = time.Duration(float64(count) / 48000 * float64(time.Second))
	}
	p.lastGranule = header.GranulePosition

	return pionmedia.Sample{Data: page, Duration: duration}, nil
}

func (p *oggPager) rewind() error {
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := oggreader.NewWith(p.file)
	if err != nil {
		return err
	}
	p.reader = reader
	p.lastGranule = 0
	return nil
}
