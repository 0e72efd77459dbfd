package mediadata

import (
	"context"
	"encoding/json"
	"fmt"
)

// TextData carries plain text. Locators: inline text, file path, URL, or a
// server reference.
type TextData struct {
	blob
	text string
}

type TextOptions struct {
	Options
	Text string
}

func NewTextData(o TextOptions) (*TextData, error) {
	extras := 0
	if o.Text != "" {
		extras++
	}
	if err := checkExactlyOne(KindText, o.Options, extras); err != nil {
		return nil, err
	}
	return &TextData{blob: newBlob(KindText, o.Options), text: o.Text}, nil
}

// NewTextDataFromText wraps inline text.
func NewTextDataFromText(text string) *TextData {
	d, _ := NewTextData(TextOptions{Text: text})
	return d
}

// Value returns the decoded text.
func (d *TextData) Value(ctx context.Context) (string, error) {
	if d.text != "" {
		return d.text, nil
	}
	raw, err := d.Bytes(ctx)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (d *TextData) Bytes(ctx context.Context) ([]byte, error) {
	if d.text != "" {
		return []byte(d.text), nil
	}
	return d.blob.Bytes(ctx)
}

// ConversationMessage is one message of a conversational data row.
type ConversationMessage struct {
	MessageID string   `json:"messageId"`
	Content   string   `json:"content"`
	User      string   `json:"user,omitempty"`
	Align     string   `json:"align,omitempty"`
	CanLabel  bool     `json:"canLabel"`
	Timestamp string   `json:"timestampUsec,omitempty"`
	Keys      []string `json:"keys,omitempty"`
}

// ConversationData carries a message thread, stored as JSON.
type ConversationData struct {
	blob
	messages []ConversationMessage
}

type ConversationOptions struct {
	Options
	Messages []ConversationMessage
}

func NewConversationData(o ConversationOptions) (*ConversationData, error) {
	extras := 0
	if len(o.Messages) > 0 {
		extras++
	}
	if err := checkExactlyOne(KindConversation, o.Options, extras); err != nil {
		return nil, err
	}
	return &ConversationData{blob: newBlob(KindConversation, o.Options), messages: o.Messages}, nil
}

// Messages decodes the thread.
func (d *ConversationData) Messages(ctx context.Context) ([]ConversationMessage, error) {
	if d.messages != nil {
		return d.messages, nil
	}
	raw, err := d.Bytes(ctx)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Messages []ConversationMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding conversation: %w", err)
	}
	if !d.disableCache {
		d.messages = envelope.Messages
	}
	return envelope.Messages, nil
}

func (d *ConversationData) Bytes(ctx context.Context) ([]byte, error) {
	if d.messages != nil {
		return json.Marshal(map[string]any{"messages": d.messages})
	}
	return d.blob.Bytes(ctx)
}

// The remaining carriers are URL or reference backed blobs; their content is
// opaque to the annotation engine.

type DocumentData struct{ blob }

func NewDocumentData(o Options) (*DocumentData, error) {
	if err := checkExactlyOne(KindDocument, o, 0); err != nil {
		return nil, err
	}
	return &DocumentData{newBlob(KindDocument, o)}, nil
}

type AudioData struct{ blob }

func NewAudioData(o Options) (*AudioData, error) {
	if err := checkExactlyOne(KindAudio, o, 0); err != nil {
		return nil, err
	}
	return &AudioData{newBlob(KindAudio, o)}, nil
}

type HTMLData struct{ blob }

func NewHTMLData(o Options) (*HTMLData, error) {
	if err := checkExactlyOne(KindHTML, o, 0); err != nil {
		return nil, err
	}
	return &HTMLData{newBlob(KindHTML, o)}, nil
}

type DicomData struct{ blob }

func NewDicomData(o Options) (*DicomData, error) {
	if err := checkExactlyOne(KindDicom, o, 0); err != nil {
		return nil, err
	}
	return &DicomData{newBlob(KindDicom, o)}, nil
}

type LLMPromptData struct{ blob }

func NewLLMPromptData(o Options) (*LLMPromptData, error) {
	if err := checkExactlyOne(KindLLMPrompt, o, 0); err != nil {
		return nil, err
	}
	return &LLMPromptData{newBlob(KindLLMPrompt, o)}, nil
}
