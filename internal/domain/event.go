package domain

import "time"

// Event is a normalized inbound message accepted by the ingestion gate.
// Text carries the raw user text with diacritics preserved; matching code
// normalizes on its own so the original spelling survives for display
// and hashing.
type Event struct {
	Key       Key       `json:"key"`
	MessageID string    `json:"messageId"`
	Text      string    `json:"text"`
	FromMe    bool      `json:"fromMe"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Turn is one aggregated conversational turn: the newline-joined burst of
// texts for a Key, handed from the aggregator to the rule gate and router.
type Turn struct {
	Key       Key    `json:"key"`
	Text      string `json:"text"`
	MessageID string `json:"messageId"` // most recent message id in the burst
}
