package state

import (
	"slices"
	"time"
)

// Speaker identifies who a message belongs to
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Kind is the payload type of a message
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

// Message is one entry of the conversation. Audio messages carry either raw
// clip bytes (user recordings) or a backend URL (assistant replies).
type Message struct {
	ID          string    `json:"id"`
	Speaker     Speaker   `json:"speaker"`
	Kind        Kind      `json:"kind"`
	Text        string    `json:"text,omitempty"`
	AudioURL    string    `json:"audio_url,omitempty"`
	Audio       []byte    `json:"-"`
	Placeholder bool      `json:"placeholder,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Transcript is the ordered, append-only message list of one conversation
type Transcript struct {
	messages []Message
}

func (t *Transcript) append(m Message) Message {
	m.ID = newMessageID()
	m.CreatedAt = time.Now()
	t.messages = append(t.messages, m)
	return m
}

// AppendText adds a text message and returns it
func (t *Transcript) AppendText(who Speaker, text string) Message {
	return t.append(Message{Speaker: who, Kind: KindText, Text: text})
}

// AppendAudioClip adds an audio message backed by local clip bytes
func (t *Transcript) AppendAudioClip(who Speaker, clip []byte) Message {
	return t.append(Message{Speaker: who, Kind: KindAudio, Audio: clip})
}

// AppendAudioURL adds an audio message backed by a remote URL
func (t *Transcript) AppendAudioURL(who Speaker, url string) Message {
	return t.append(Message{Speaker: who, Kind: KindAudio, AudioURL: url})
}

// AppendPlaceholder adds the transient assistant "thinking" entry and
// returns its id
func (t *Transcript) AppendPlaceholder() string {
	return t.append(Message{
		Speaker:     SpeakerAssistant,
		Kind:        KindText,
		Text:        PlaceholderText,
		Placeholder: true,
	}).ID
}

// Remove deletes the message with the given id. It reports false when the id
// is unknown, e.g. after the transcript was cleared.
func (t *Transcript) Remove(id string) bool {
	i := slices.IndexFunc(t.messages, func(m Message) bool { return m.ID == id })
	if i < 0 {
		return false
	}
	t.messages = slices.Delete(t.messages, i, i+1)
	return true
}

// Has reports whether a message with the given id is present
func (t *Transcript) Has(id string) bool {
	return slices.ContainsFunc(t.messages, func(m Message) bool { return m.ID == id })
}

// Get returns the message with the given id
func (t *Transcript) Get(id string) (Message, bool) {
	i := slices.IndexFunc(t.messages, func(m Message) bool { return m.ID == id })
	if i < 0 {
		return Message{}, false
	}
	return t.messages[i], true
}

// Placeholders counts transient entries
func (t *Transcript) Placeholders() int {
	n := 0
	for _, m := range t.messages {
		if m.Placeholder {
			n++
		}
	}
	return n
}

// Clear drops the whole conversation
func (t *Transcript) Clear() {
	t.messages = nil
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the conversation in order
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Resolve replaces the placeholder with the assistant reply: the reply text,
// then the reply audio when audioURL is set. Nothing is appended and false is
// returned when the placeholder no longer exists.
func (t *Transcript) Resolve(placeholderID, text, audioURL string) bool {
	if !t.Remove(placeholderID) {
		return false
	}
	t.AppendText(SpeakerAssistant, text)
	if audioURL != "" {
		t.AppendAudioURL(SpeakerAssistant, audioURL)
	}
	return true
}

// Fail replaces the placeholder with an assistant error message
func (t *Transcript) Fail(placeholderID, text string) bool {
	if !t.Remove(placeholderID) {
		return false
	}
	if text == "" {
		text = ChatFailedText
	}
	t.AppendText(SpeakerAssistant, text)
	return true
}
