// Package state holds the interaction state of the client and the pure
// transitions over it. Nothing in here performs I/O; the chat controller owns
// a Session and serializes access to it.
package state

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownDocument = errors.New("document is not in the catalog")

// Upload status lines shown next to the upload control
const (
	StatusUploading     = "uploading..."
	StatusUploaded      = "pdf uploaded!"
	StatusUploadFailed  = "upload failed"
	PlaceholderText     = "..."
	MicUnavailableText  = "audio recording not supported"
	ChatFailedText      = "chat failed"
	EmptyRecordingText  = "no audio captured"
	buttonDisabledLabel = "select pdf to start!"
	buttonReadyLabel    = "press to chat"
	buttonStopLabel     = "press to stop"
)

// Session is the whole client state: catalog, selection, recording flag and
// the conversation transcript.
type Session struct {
	documents    []string
	selected     string
	uploaded     string
	uploadStatus string
	recording    bool
	transcript   Transcript
}

// NewSession returns the initial state: empty catalog, nothing selected
func NewSession() *Session {
	return &Session{}
}

// Selected returns the selected filename, empty when nothing is selected
func (s *Session) Selected() string {
	return s.selected
}

// Recording reports whether a recording is in progress
func (s *Session) Recording() bool {
	return s.recording
}

// Documents returns a copy of the catalog in server order
func (s *Session) Documents() []string {
	return slices.Clone(s.documents)
}

// Transcript exposes the conversation for reducers
func (s *Session) Transcript() *Transcript {
	return &s.transcript
}

// ApplyCatalog replaces the catalog. The selection is never cleared here,
// even when the selected document disappeared from the list.
func (s *Session) ApplyCatalog(docs []string) {
	s.documents = slices.Clone(docs)
}

// SelectionStale reports a selection that is no longer in the catalog
func (s *Session) SelectionStale() bool {
	return s.selected != "" && !slices.Contains(s.documents, s.selected)
}

// Select moves to selection(filename) and clears the transcript
func (s *Session) Select(filename string) error {
	if !slices.Contains(s.documents, filename) {
		return ErrUnknownDocument
	}
	s.selected = filename
	s.transcript.Clear()
	return nil
}

// BeginUpload marks an upload in flight
func (s *Session) BeginUpload() {
	s.uploadStatus = StatusUploading
}

// UploadSucceeded records filename as the next selection candidate
func (s *Session) UploadSucceeded(filename string) {
	s.uploadStatus = StatusUploaded
	s.uploaded = filename
}

// UploadFailed surfaces text as the upload status; selection is untouched
func (s *Session) UploadFailed(text string) {
	if text == "" {
		text = StatusUploadFailed
	}
	s.uploadStatus = text
}

// SetRecording flips the recording flag
func (s *Session) SetRecording(on bool) {
	s.recording = on
}

// ButtonState is the record button affordance
type ButtonState string

const (
	ButtonDisabled  ButtonState = "disabled"
	ButtonReady     ButtonState = "ready"
	ButtonRecording ButtonState = "recording"
)

// Label is the text shown on the record button
func (b ButtonState) Label() string {
	switch b {
	case ButtonRecording:
		return buttonStopLabel
	case ButtonReady:
		return buttonReadyLabel
	default:
		return buttonDisabledLabel
	}
}

// Button derives the record button state. It is disabled iff nothing is
// selected.
func (s *Session) Button() ButtonState {
	switch {
	case s.selected == "":
		return ButtonDisabled
	case s.recording:
		return ButtonRecording
	default:
		return ButtonReady
	}
}

// Card is one catalog entry as rendered
type Card struct {
	Filename string `json:"filename"`
	Selected bool   `json:"selected"`
}

// Snapshot is an immutable copy of the session handed to renderers
type Snapshot struct {
	Cards          []Card      `json:"cards"`
	Selected       string      `json:"selected"`
	SelectionStale bool        `json:"selection_stale"`
	Uploaded       string      `json:"uploaded"`
	UploadStatus   string      `json:"upload_status"`
	Recording      bool        `json:"recording"`
	Button         ButtonState `json:"button"`
	ButtonLabel    string      `json:"button_label"`
	Messages       []Message   `json:"messages"`
	TakenAt        time.Time   `json:"taken_at"`
}

// Snapshot copies the session for rendering
func (s *Session) Snapshot() Snapshot {
	cards := make([]Card, 0, len(s.documents))
	for _, doc := range s.documents {
		cards = append(cards, Card{Filename: doc, Selected: doc == s.selected})
	}

	button := s.Button()
	return Snapshot{
		Cards:          cards,
		Selected:       s.selected,
		SelectionStale: s.SelectionStale(),
		Uploaded:       s.uploaded,
		UploadStatus:   s.uploadStatus,
		Recording:      s.recording,
		Button:         button,
		ButtonLabel:    button.Label(),
		Messages:       s.transcript.Messages(),
		TakenAt:        time.Now(),
	}
}

// newMessageID returns a fresh message identifier
func newMessageID() string {
	return uuid.NewString()
}
