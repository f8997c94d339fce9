package call

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/voicecall/internal/protocol"
	"github.com/1ureka/voicecall/internal/util"
)

// startNegotiation acquires local audio, creates the peer connection and
// sends our offer. Any failure here ends the attempt.
func (s *Session) startNegotiation() {
	a := s.cur

	audio, err := s.opts.Audio.Acquire(a.ctx)
	if err != nil {
		s.teardown(fmt.Errorf("%w: %w", ErrMediaAccess, err))
		return
	}
	a.audio = audio

	if err := s.newPeer(); err != nil {
		s.teardown(err)
		return
	}

	offer, err := a.peer.CreateOffer()
	if err != nil {
		s.teardown(fmt.Errorf("%w: create offer: %w", ErrNegotiation, err))
		return
	}
	if err := a.peer.SetLocalDescription(offer); err != nil {
		s.teardown(fmt.Errorf("%w: set local offer: %w", ErrNegotiation, err))
		return
	}
	a.offerSDP = localSDP(a.peer, offer)
	if err := a.channel.Send(protocol.Offer{SDP: a.offerSDP}); err != nil {
		s.teardown(err)
		return
	}

	util.LogDebug("[%s] offer sent", a.id)
	s.setState(StateNegotiating)
	s.opts.Observer.StatusChanged(true)
}

// newPeer creates a peer connection for the current attempt and attaches
// the local audio track to it.
func (s *Session) newPeer() error {
	a := s.cur

	a.peerSeq++
	peer, err := s.opts.NewPeer(peerEvents{s: s, gen: a.gen, peer: a.peerSeq})
	if err != nil {
		return fmt.Errorf("%w: create peer connection: %w", ErrNegotiation, err)
	}
	a.peer = peer

	if err := peer.AddTrack(a.audio.Track()); err != nil {
		return fmt.Errorf("%w: attach local audio: %w", ErrNegotiation, err)
	}
	return nil
}

// acceptOffer answers a remote offer. When offers crossed, keepsOwnOffer
// decides which one survives; a losing local offer is discarded first.
// Failures are logged and leave the session as it was, since the remote
// side may offer again.
func (s *Session) acceptOffer(sdp string) {
	a := s.cur
	if a.peer == nil {
		util.LogWarning("[%s] offer received before local audio is ready, ignoring", a.id)
		return
	}

	if a.peer.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		if s.keepsOwnOffer(sdp) {
			util.LogDebug("[%s] offers crossed, keeping ours and waiting for the answer", a.id)
			return
		}
		if err := s.discardLocalOffer(); err != nil {
			s.teardown(err)
			return
		}
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := a.peer.SetRemoteDescription(offer); err != nil {
		s.logNegotiation("set remote offer", err)
		return
	}
	s.flushCandidates()

	answer, err := a.peer.CreateAnswer()
	if err != nil {
		s.logNegotiation("create answer", err)
		return
	}
	if err := a.peer.SetLocalDescription(answer); err != nil {
		s.logNegotiation("set local answer", err)
		return
	}
	if err := a.channel.Send(protocol.Answer{SDP: localSDP(a.peer, answer)}); err != nil {
		util.LogError("[%s] send answer: %v", a.id, err)
		return
	}
	util.LogDebug("[%s] answered remote offer", a.id)
}

// keepsOwnOffer settles an offer collision so that both sides agree: the
// participant who joined last keeps its offer and the other one answers.
// That side also answers when its first offer reached nobody. A roster
// that cannot tell the two apart falls back to the larger offer SDP.
func (s *Session) keepsOwnOffer(remote string) bool {
	a := s.cur
	if len(s.roster) == 2 && s.roster[0] != s.roster[1] {
		return s.roster[1] == a.name
	}
	return a.offerSDP > remote
}

// discardLocalOffer rolls back our unanswered offer. When the peer
// connection refuses the rollback it is replaced by a fresh one carrying
// the same local audio; only a failed replacement is returned.
func (s *Session) discardLocalOffer() error {
	a := s.cur
	util.LogDebug("[%s] offers crossed, rolling back ours", a.id)
	a.offerSDP = ""

	rollback := webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}
	if local := a.peer.LocalDescription(); local != nil {
		rollback.SDP = local.SDP
	}
	err := a.peer.SetLocalDescription(rollback)
	if err == nil {
		return nil
	}

	util.LogDebug("[%s] rollback refused (%v), replacing peer connection", a.id, err)
	old := a.peer
	a.peer = nil
	if cerr := old.Close(); cerr != nil {
		util.LogWarning("[%s] close replaced peer connection: %v", a.id, cerr)
	}
	return s.newPeer()
}

// acceptAnswer applies a remote answer, but only while our offer is
// outstanding. Anything else is logged and ignored.
func (s *Session) acceptAnswer(sdp string) {
	a := s.cur
	if a.peer == nil || a.peer.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		util.LogWarning("[%s] unexpected answer with no local offer outstanding, ignoring", a.id)
		return
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := a.peer.SetRemoteDescription(answer); err != nil {
		s.logNegotiation("set remote answer", err)
		return
	}
	util.LogDebug("[%s] remote answer applied", a.id)
	s.flushCandidates()
}

func (s *Session) logNegotiation(step string, err error) {
	util.LogError("[%s] %v", s.cur.id, fmt.Errorf("%w: %s: %w", ErrNegotiation, step, err))
}

// ---------------------------------------------------------------------------
// ICE candidates
// ---------------------------------------------------------------------------

// addRemoteCandidate applies a remote candidate, or buffers it until a
// remote description exists.
func (s *Session) addRemoteCandidate(c webrtc.ICECandidateInit) {
	a := s.cur
	if a.peer == nil || a.peer.RemoteDescription() == nil {
		util.LogTrace("[%s] buffering remote candidate", a.id)
		a.pending = append(a.pending, c)
		return
	}
	s.applyCandidate(c)
}

// flushCandidates applies buffered candidates after a remote description
// has been set.
func (s *Session) flushCandidates() {
	a := s.cur
	pending := a.pending
	a.pending = nil
	if len(pending) > 0 {
		util.LogDebug("[%s] applying %d buffered candidates", a.id, len(pending))
	}
	for _, c := range pending {
		s.applyCandidate(c)
	}
}

func (s *Session) applyCandidate(c webrtc.ICECandidateInit) {
	a := s.cur
	if err := a.peer.AddICECandidate(c); err != nil {
		util.LogWarning("[%s] %v", a.id, fmt.Errorf("%w: %w", ErrCandidate, err))
	}
}

// sendLocalCandidate trickles one gathered candidate to the relay. The
// end-of-candidates marker is not sent.
func (s *Session) sendLocalCandidate(c *webrtc.ICECandidateInit) {
	a := s.cur
	if c == nil {
		util.LogDebug("[%s] ICE gathering complete", a.id)
		return
	}
	if err := a.channel.Send(protocol.Candidate{Candidate: protocol.CandidateFromPion(*c)}); err != nil {
		util.LogWarning("[%s] send candidate: %v", a.id, err)
	}
}

// localSDP returns the applied local description, which includes the
// candidates gathered so far, falling back to the created one.
func localSDP(peer Peer, created webrtc.SessionDescription) string {
	if local := peer.LocalDescription(); local != nil && local.SDP != "" {
		return local.SDP
	}
	return created.SDP
}
