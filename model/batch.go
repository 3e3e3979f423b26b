package model

import "fmt"

type FailKind string

const (
	FailDuplicateEntry     FailKind = "duplicate_entry"
	FailInvalidPublishedAt FailKind = "invalid_published_at"
	FailOther              FailKind = "other"
)

// FailReason explains why a single stream was not persisted. Detail holds the
// raw publish string for FailInvalidPublishedAt and a message for FailOther.
type FailReason struct {
	Kind   FailKind `json:"kind"`
	Detail string   `json:"detail,omitempty"`
}

func (r FailReason) String() string {
	switch r.Kind {
	case FailDuplicateEntry:
		return "duplicate entry"
	case FailInvalidPublishedAt:
		return fmt.Sprintf("invalid published at: %q", r.Detail)
	default:
		return r.Detail
	}
}

func DuplicateEntry() FailReason { return FailReason{Kind: FailDuplicateEntry} }

func InvalidPublishedAt(raw string) FailReason {
	return FailReason{Kind: FailInvalidPublishedAt, Detail: raw}
}

func Other(msg string) FailReason { return FailReason{Kind: FailOther, Detail: msg} }

type Failure struct {
	ID     string     `json:"id"`
	Reason FailReason `json:"reason"`
}

type BatchResult struct {
	Inserted int       `json:"inserted"`
	Failures []Failure `json:"failures"`
}
