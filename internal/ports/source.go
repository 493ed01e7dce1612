package ports

import (
	"context"
	"iter"
)

// Partition is one replayable slice of the historical corpus, typically a
// single channel inside a group (guild).
type Partition struct {
	Group string `json:"group"`
	Name  string `json:"name"`
}

// String renders the partition as "group/#name" for logs.
func (p Partition) String() string {
	return p.Group + "/#" + p.Name
}

// Message is one historical or live chat message.
type Message struct {
	AuthorID   AuthorID `json:"author_id"`
	AuthorName string   `json:"author_name,omitempty"`
	Text       string   `json:"text"`
	Bot        bool     `json:"bot,omitempty"`
}

// LiveMessage is a message delivered by the live subscription.
type LiveMessage struct {
	Message
	Channel string `json:"channel,omitempty"`
}

// MessageSource exposes the historical corpus.
//
// Partitions are returned in the source's enumeration order. Messages yields
// a lazy, finite sequence; the whole corpus is never materialized in memory.
// Each call to Messages replays the partition from the start. A non-nil error
// from the sequence ends that partition (the caller skips to the next one).
// Reads may be rate-limited by the source, so callers pace between partitions.
type MessageSource interface {
	Partitions(ctx context.Context) ([]Partition, error)
	Messages(ctx context.Context, p Partition) iter.Seq2[Message, error]
}
