// Package ingest parses gateway webhook payloads and decides which
// inbound messages reach the aggregation pipeline.
package ingest

import "strings"

// Payload is the webhook body the gateway posts on message upserts.
type Payload struct {
	Event    string  `json:"event"`
	Instance string  `json:"instance"`
	Data     Message `json:"data"`
}

type Message struct {
	Key     MessageKey  `json:"key"`
	Message MessageBody `json:"message"`
}

type MessageKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// MessageBody carries the per-kind content slots; exactly one is
// populated on a given message.
type MessageBody struct {
	Conversation        string          `json:"conversation,omitempty"`
	ExtendedTextMessage *TextContent    `json:"extendedTextMessage,omitempty"`
	ImageMessage        *CaptionContent `json:"imageMessage,omitempty"`
	VideoMessage        *CaptionContent `json:"videoMessage,omitempty"`
	ButtonsResponse     *ButtonsContent `json:"buttonsResponseMessage,omitempty"`
	ListResponse        *ListContent    `json:"listResponseMessage,omitempty"`
}

type TextContent struct {
	Text string `json:"text"`
}

type CaptionContent struct {
	Caption string `json:"caption"`
}

type ButtonsContent struct {
	SelectedDisplayText string `json:"selectedDisplayText"`
}

type ListContent struct {
	Title string `json:"title"`
}

// Text extracts the human-readable text from whichever content slot the
// message uses: plain text, extended text, media captions, or the
// display text of button and list replies.
func (m Message) Text() string {
	b := m.Message
	switch {
	case b.Conversation != "":
		return b.Conversation
	case b.ExtendedTextMessage != nil && b.ExtendedTextMessage.Text != "":
		return b.ExtendedTextMessage.Text
	case b.ImageMessage != nil && b.ImageMessage.Caption != "":
		return b.ImageMessage.Caption
	case b.VideoMessage != nil && b.VideoMessage.Caption != "":
		return b.VideoMessage.Caption
	case b.ButtonsResponse != nil && b.ButtonsResponse.SelectedDisplayText != "":
		return b.ButtonsResponse.SelectedDisplayText
	case b.ListResponse != nil && b.ListResponse.Title != "":
		return b.ListResponse.Title
	}
	return ""
}

// IsUpsertEvent accepts the event-name spellings different gateway
// versions emit for message upserts.
func IsUpsertEvent(event string) bool {
	switch strings.ToLower(event) {
	case "messages.upsert", "messages_upsert", "messagesupsert":
		return true
	}
	return false
}
