package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned by Decode for frames that are not a valid
	// message: bad JSON, no type, or a missing required field.
	ErrMalformed = errors.New("malformed signaling message")

	// ErrUnknownType is returned by Decode for well-formed frames whose type
	// is not one this client understands.
	ErrUnknownType = errors.New("unknown signaling message type")
)

// Encode serializes a Message into a single JSON object with a "type"
// discriminator and the variant's fields at top level. Messages Decode
// would reject are refused with ErrMalformed.
func Encode(msg Message) ([]byte, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}

	switch m := msg.(type) {
	case Join:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Join
		}{TypeJoin, m})
	case Offer:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Offer
		}{TypeOffer, m})
	case Answer:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Answer
		}{TypeAnswer, m})
	case Candidate:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Candidate
		}{TypeCandidate, m})
	case Participants:
		if m.List == nil {
			m.List = []string{}
		}
		return json.Marshal(struct {
			Type Type `json:"type"`
			Participants
		}{TypeParticipants, m})
	default:
		return nil, fmt.Errorf("cannot encode %T", msg)
	}
}

// Decode deserializes one wire frame into a Message.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch head.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)

	case TypeJoin:
		var m Join
		return decodeAs(data, &m)

	case TypeOffer:
		var m Offer
		return decodeAs(data, &m)

	case TypeAnswer:
		var m Answer
		return decodeAs(data, &m)

	case TypeCandidate:
		var m struct {
			Candidate *ICECandidate `json:"candidate"`
		}
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.Candidate == nil {
			return nil, fmt.Errorf("%w: candidate without candidate", ErrMalformed)
		}
		return Candidate{Candidate: *m.Candidate}, nil

	case TypeParticipants:
		var m Participants
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.List == nil {
			m.List = []string{}
		}
		return m, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// decodeAs unmarshals data into m and checks its required fields.
func decodeAs[T Message](data []byte, m *T) (Message, error) {
	if err := unmarshal(data, m); err != nil {
		return nil, err
	}
	if err := validate(*m); err != nil {
		return nil, err
	}
	return *m, nil
}

// validate checks the fields a variant requires. A candidate with an empty
// candidate string is the end-of-candidates marker and is valid.
func validate(msg Message) error {
	switch m := msg.(type) {
	case Join:
		if m.Name == "" || m.Room == "" {
			return fmt.Errorf("%w: join requires name and room", ErrMalformed)
		}
	case Offer:
		if m.SDP == "" {
			return fmt.Errorf("%w: offer without sdp", ErrMalformed)
		}
	case Answer:
		if m.SDP == "" {
			return fmt.Errorf("%w: answer without sdp", ErrMalformed)
		}
	}
	return nil
}
