package mailbox

import (
	"context"
	"strings"
	"time"
)

// UID is the mailbox-assigned identifier of a message within the selected folder.
type UID uint32

// Criteria selects messages by local calendar date. Before is exclusive and optional.
type Criteria struct {
	Since      time.Time
	Before     time.Time
	UnseenOnly bool
}

// RawMessage is one fetched message. It is not modified after Fetch returns.
type RawMessage struct {
	UID       UID
	MessageID string
	Subject   string
	From      string
	Body      string
	// ContentType of the part Body came from, e.g. text/plain.
	ContentType string
	// Arrival is the Date header in UTC, or the capture time when the header is missing or unparsable.
	Arrival time.Time
}

const identityTimeLayout = "2006-01-02T15:04:05-07:00"

// IdentityKey is the dedup key of the message: the Message-ID when present, otherwise the
// normalized subject joined with the arrival instant.
func (m *RawMessage) IdentityKey() string {
	if id := strings.TrimSpace(m.MessageID); id != "" {
		return id
	}
	return NormalizeSubject(m.Subject) + "|" + m.Arrival.UTC().Format(identityTimeLayout)
}

// NormalizeSubject trims the subject and collapses internal whitespace runs to one space.
func NormalizeSubject(subject string) string {
	return strings.Join(strings.Fields(subject), " ")
}

type Mailbox interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is an authenticated connection with the configured folder selected.
// Calls are sequential; a Session is not safe for concurrent use.
type Session interface {
	Search(ctx context.Context, criteria Criteria) ([]UID, error)
	Fetch(ctx context.Context, uid UID) (*RawMessage, error)
	MarkHandled(ctx context.Context, uid UID) error
	Close() error
}
