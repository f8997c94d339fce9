package call

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/1ureka/voicecall/internal/signaling"
)

var (
	// ErrValidation rejects a bad room code or name before anything starts.
	ErrValidation = errors.New("invalid join request")

	// ErrConnection: the relay could not be reached or the connection to it,
	// or to the peer, was lost.
	ErrConnection = signaling.ErrConnection

	// ErrMediaAccess: local audio could not be acquired.
	ErrMediaAccess = errors.New("local audio access failed")

	// ErrNegotiation: creating or applying a session description failed.
	ErrNegotiation = errors.New("negotiation failed")

	// ErrCandidate: a remote ICE candidate could not be applied. Never fatal.
	ErrCandidate = errors.New("ICE candidate rejected")

	// ErrInvalidState: the command is not allowed in the current state.
	ErrInvalidState = errors.New("invalid call state")

	// ErrTimeout: the call did not become active in time.
	ErrTimeout = errors.New("call timed out")
)

var roomCodePattern = regexp.MustCompile(`^\d{4}$`)

// ValidateRoomCode checks that code is exactly four ASCII digits.
func ValidateRoomCode(code string) error {
	if !roomCodePattern.MatchString(code) {
		return fmt.Errorf("%w: room code %q must be exactly 4 digits", ErrValidation, code)
	}
	return nil
}

// ValidateName checks that name is not blank.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	return nil
}
