package view

import (
	"fmt"
	"time"

	"github.com/bosley/pdfchat/state"
)

// Event is a message pushed over the websocket
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

const eventState = "state"

// MessageView is a transcript entry as the page renders it
type MessageView struct {
	ID          string        `json:"id"`
	Speaker     state.Speaker `json:"speaker"`
	Kind        state.Kind    `json:"kind"`
	Text        string        `json:"text,omitempty"`
	AudioSrc    string        `json:"audio_src,omitempty"`
	Placeholder bool          `json:"placeholder,omitempty"`
}

// ViewState is the JSON form of a session snapshot
type ViewState struct {
	Cards          []state.Card      `json:"cards"`
	Selected       string            `json:"selected"`
	SelectionStale bool              `json:"selection_stale"`
	Uploaded       string            `json:"uploaded"`
	UploadStatus   string            `json:"upload_status"`
	Recording      bool              `json:"recording"`
	Button         state.ButtonState `json:"button"`
	ButtonLabel    string            `json:"button_label"`
	ButtonDisabled bool              `json:"button_disabled"`
	Messages       []MessageView     `json:"messages"`
}

type errorBody struct {
	Error string `json:"error"`
}

type selectRequest struct {
	Filename string `json:"filename"`
}

func audioSrc(id string) string {
	return fmt.Sprintf("/api/messages/%s/audio", id)
}

// NewViewState converts a snapshot. Audio of both speakers is served through
// this process so the page never talks to the backend directly.
func NewViewState(snap state.Snapshot) ViewState {
	msgs := make([]MessageView, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		mv := MessageView{
			ID:          m.ID,
			Speaker:     m.Speaker,
			Kind:        m.Kind,
			Text:        m.Text,
			Placeholder: m.Placeholder,
		}
		if m.Kind == state.KindAudio {
			mv.AudioSrc = audioSrc(m.ID)
		}
		msgs = append(msgs, mv)
	}

	cards := snap.Cards
	if cards == nil {
		cards = []state.Card{}
	}

	return ViewState{
		Cards:          cards,
		Selected:       snap.Selected,
		SelectionStale: snap.SelectionStale,
		Uploaded:       snap.Uploaded,
		UploadStatus:   snap.UploadStatus,
		Recording:      snap.Recording,
		Button:         snap.Button,
		ButtonLabel:    snap.ButtonLabel,
		ButtonDisabled: snap.Button == state.ButtonDisabled,
		Messages:       msgs,
	}
}
