package main

import (
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/voicecall/internal/call"
	"github.com/1ureka/voicecall/internal/config"
	"github.com/1ureka/voicecall/internal/util"
)

// askURL prompts for a relay URL until a valid one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. wss://***.asse.devtunnels.ms)").
			Show()

		relay, err := config.NormalizeRelayURL(raw)
		if err == nil {
			pterm.Println()
			return relay
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askRoom prompts for a room code until a valid one is entered.
func askRoom() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Room code (4 digits)").
			Show()

		room := strings.TrimSpace(raw)
		if err := call.ValidateRoomCode(room); err == nil {
			pterm.Println()
			return room
		}

		util.LogWarning("invalid room code: must be exactly 4 digits")
		pterm.Println()
	}
}

// askName prompts for a display name until a non-blank one is entered.
func askName() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Your name").
			Show()

		name := strings.TrimSpace(raw)
		if err := call.ValidateName(name); err == nil {
			pterm.Println()
			return name
		}

		util.LogWarning("invalid name: must not be blank")
		pterm.Println()
	}
}
