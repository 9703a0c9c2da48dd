package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// JournalHeader is the part every journal line carries.
type JournalHeader struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
}

func DecodeHeader(b []byte) (JournalHeader, error) {
	var h JournalHeader
	err := json.Unmarshal(b, &h)
	return h, err
}

// DecodeJournal turns one journal line into an Event. Lines whose event name
// has no kind return an *Error with code ErrUnknownKind so tailers can skip
// them quietly.
func DecodeJournal(line []byte, fromLoad bool) (Event, error) {
	h, err := DecodeHeader(line)
	if err != nil {
		return Event{}, &Error{Code: ErrBadEvent, Message: "journal header", Cause: err}
	}
	if h.Event == "" {
		return Event{}, &Error{Code: ErrBadEvent, Message: "journal line without event name"}
	}
	if h.Timestamp.IsZero() {
		return Event{}, &Error{Code: ErrBadEvent, Message: fmt.Sprintf("%s without timestamp", h.Event)}
	}
	kind, ok := journalKinds[h.Event]
	if !ok {
		return Event{}, &Error{Code: ErrUnknownKind, Message: fmt.Sprintf("unhandled journal event %q", h.Event)}
	}
	p, err := decodePayload(kind, line)
	if err != nil {
		return Event{}, err
	}
	switch v := p.(type) {
	case *NearSurface:
		v.Approached = h.Event == "ApproachBody"
	}
	raw := make(json.RawMessage, len(line))
	copy(raw, line)
	return Event{
		Kind:      kind,
		Timestamp: h.Timestamp.UTC(),
		FromLoad:  fromLoad,
		Payload:   p,
		Raw:       raw,
	}, nil
}
