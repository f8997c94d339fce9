// Package protocol defines the signaling messages exchanged with the relay
// and their JSON wire format.
package protocol

import "github.com/pion/webrtc/v4"

// Type is the wire discriminator carried in every message's "type" field.
type Type string

// Message type constants.
const (
	TypeJoin         Type = "join"         // client → relay
	TypeOffer        Type = "offer"        // either direction
	TypeAnswer       Type = "answer"       // either direction
	TypeCandidate    Type = "candidate"    // either direction
	TypeParticipants Type = "participants" // relay → client
)

// Message is one signaling message. Exactly one of the variant types below
// implements it; callers switch on the concrete type.
type Message interface {
	Type() Type
}

// Join asks the relay to add the sender to a room.
type Join struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// Offer carries an SDP offer.
type Offer struct {
	SDP string `json:"sdp"`
}

// Answer carries an SDP answer. The same shape is used whether the answer
// is sent by the initiator's peer or relayed back to it.
type Answer struct {
	SDP string `json:"sdp"`
}

// Candidate carries one trickled ICE candidate.
type Candidate struct {
	Candidate ICECandidate `json:"candidate"`
}

// Participants is the room roster, in the order the relay reports it.
type Participants struct {
	List []string `json:"list"`
}

func (Join) Type() Type         { return TypeJoin }
func (Offer) Type() Type        { return TypeOffer }
func (Answer) Type() Type       { return TypeAnswer }
func (Candidate) Type() Type    { return TypeCandidate }
func (Participants) Type() Type { return TypeParticipants }

// ICECandidate is the browser-compatible JSON form of an ICE candidate.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// CandidateFromPion converts a pion candidate init into its wire form.
func CandidateFromPion(init webrtc.ICECandidateInit) ICECandidate {
	return ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

// EndOfCandidates reports whether c is the marker a browser sends once
// gathering is complete.
func (c ICECandidate) EndOfCandidates() bool { return c.Candidate == "" }

// ToPion converts the wire form back into a pion candidate init.
func (c ICECandidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
