package app

import (
	"github.com/pterm/pterm"

	"github.com/1ureka/voicecall/internal/call"
)

// console renders session events in the terminal.
type console struct {
	ended chan error
}

var _ call.Observer = (*console)(nil)

func newConsole() *console {
	return &console{ended: make(chan error, 1)}
}

var stateText = map[call.State]string{
	call.StateConnecting:  "Connecting to the relay...",
	call.StateJoined:      "Joined, preparing audio...",
	call.StateNegotiating: "Waiting for the other participant...",
	call.StateActive:      "In call",
}

func (c *console) StateChanged(state call.State) {
	if text, ok := stateText[state]; ok {
		pterm.Info.Println(text)
	}
}

func (c *console) StatusChanged(connected bool) {
	if connected {
		pterm.Success.Println("Connected to the room")
	}
}

func (c *console) ParticipantsChanged(list []string) {
	if len(list) == 0 {
		return
	}
	items := make([]pterm.BulletListItem, 0, len(list))
	for _, name := range list {
		items = append(items, pterm.BulletListItem{Level: 0, Text: name})
	}
	pterm.DefaultSection.WithLevel(2).Println("Participants")
	pterm.DefaultBulletList.WithItems(items).Render()
}

func (c *console) CallConnected() {
	pterm.Success.Println("Call connected, audio is flowing")
}

// CallEnded reports the end of the call and wakes Run.
func (c *console) CallEnded(err error) {
	if err != nil {
		pterm.Error.Printfln("Disconnected: %v", err)
	} else {
		pterm.Info.Println("You left the call")
	}

	select {
	case c.ended <- err:
	default:
	}
}
