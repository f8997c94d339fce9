package call

import (
	"context"
	"errors"
	"fmt"

	"github.com/1ureka/voicecall/internal/util"
)

// teardown ends the current attempt: closed, then idle. The peer
// connection, local audio and channel are each released even when an
// earlier release fails. cause is reported through CallEnded; an attempt
// cancelled by Leave always ends with a nil cause.
func (s *Session) teardown(cause error) {
	a := s.cur
	if a == nil {
		return
	}
	if errors.Is(context.Cause(a.ctx), errLeft) {
		cause = nil
	}

	s.setState(StateClosed)
	if cause != nil {
		util.LogError("[%s] call ended: %v", a.id, cause)
	} else {
		util.LogInfo("[%s] left room %s", a.id, a.room)
	}

	if a.timer != nil {
		a.timer.Stop()
	}
	a.cancel(context.Canceled)

	var errs []error
	if a.peer != nil {
		if err := a.peer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close peer connection: %w", err))
		}
	}
	if a.audio != nil {
		if err := a.audio.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop local audio: %w", err))
		}
	}
	if a.channel != nil {
		if err := a.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close signaling channel: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		util.LogWarning("[%s] teardown: %v", a.id, err)
	}

	s.cur = nil
	s.mu.Lock()
	s.cancelAttempt = nil
	hadRoster := len(s.roster) > 0
	s.mu.Unlock()

	if hadRoster {
		s.setRoster(nil)
	}
	s.setState(StateIdle)
	s.opts.Observer.StatusChanged(false)
	s.opts.Observer.CallEnded(cause)
}
