package models

import "time"

// maxTextLen is the hard cap on accepted prompt length, in characters.
const maxTextLen = 100_000

// InputEnvelope is the payload received from the interception extension.
type InputEnvelope struct {
	Text      string         `json:"text"`
	ClientID  string         `json:"clientId"`
	Lang      string         `json:"lang,omitempty"` // "pl", "en" or empty
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DecodedLayer is one hidden payload recovered during normalization
// (base64 or hex encoded content embedded in the prompt).
type DecodedLayer struct {
	Encoding string `json:"encoding"` // "base64" or "hex"
	Payload  string `json:"payload"`
}

// NormalizedInput is the immutable output of the normalizer, consumed by all
// three branches. Normalized is a superset of the attacker-visible text:
// the original plus any recovered comment bodies and decoded layers.
type NormalizedInput struct {
	Raw           string
	Normalized    string
	DecodedLayers []DecodedLayer
	Lang          string // inferred two-letter code, "pl" or "en"
	ReceivedAt    time.Time
}

// ExtractionKind tags the outcome of pulling prompt text out of a
// platform-specific request body. Invalid is distinct from Empty so the
// caller can tell a malformed body apart from a legitimately blank prompt.
type ExtractionKind int

// Extraction outcomes.
const (
	ExtractedText ExtractionKind = iota
	ExtractedEmpty
	ExtractedInvalid
)

// Extraction is the tagged result of envelope text extraction.
type Extraction struct {
	Kind ExtractionKind
	Text string
}

// ChatBody mirrors the chat-platform request shapes the extension forwards.
// Exactly one of Messages, Prompt or Text is expected to carry content.
type ChatBody struct {
	Messages []ChatMessage `json:"messages,omitempty"`
	Prompt   string        `json:"prompt,omitempty"`
	Text     string        `json:"text,omitempty"`
}

// ChatMessage is a single entry of a chat-platform messages array.
type ChatMessage struct {
	Author  ChatAuthor  `json:"author,omitempty"`
	Content ChatContent `json:"content"`
}

// ChatAuthor identifies the message author role.
type ChatAuthor struct {
	Role string `json:"role,omitempty"`
}

// ChatContent carries the message parts.
type ChatContent struct {
	ContentType string   `json:"content_type,omitempty"`
	Parts       []string `json:"parts"`
}

// ExtractText resolves the multiple accepted payload shapes into a single
// prompt string. Preference order: messages array, bare prompt, text field.
func (b *ChatBody) ExtractText() Extraction {
	if b == nil {
		return Extraction{Kind: ExtractedInvalid}
	}
	if len(b.Messages) > 0 {
		last := b.Messages[len(b.Messages)-1]
		if len(last.Content.Parts) == 0 {
			return Extraction{Kind: ExtractedInvalid}
		}
		text := last.Content.Parts[0]
		if text == "" {
			return Extraction{Kind: ExtractedEmpty}
		}
		return Extraction{Kind: ExtractedText, Text: text}
	}
	if b.Prompt != "" {
		return Extraction{Kind: ExtractedText, Text: b.Prompt}
	}
	if b.Text != "" {
		return Extraction{Kind: ExtractedText, Text: b.Text}
	}
	return Extraction{Kind: ExtractedEmpty}
}

// Validate checks envelope constraints that must hold before any branch
// sees the input. Returns a human-readable problem or "" when valid.
func (e *InputEnvelope) Validate() string {
	if e.Text == "" {
		return "text required"
	}
	if len([]rune(e.Text)) > maxTextLen {
		return "text exceeds maximum length"
	}
	if e.Lang != "" && e.Lang != "pl" && e.Lang != "en" {
		return "lang must be pl or en"
	}
	return ""
}
