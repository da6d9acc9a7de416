// Package payment holds the transaction record aggregate: a payment, its
// cached lifecycle status and the append-only message log the status is
// projected from.
package payment

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind tags a message in the log.
type MessageKind string

const (
	KindRequest             MessageKind = "Request"
	KindResponse            MessageKind = "Response"
	KindSuccess             MessageKind = "Success"
	KindFailure             MessageKind = "Failure"
	KindError               MessageKind = "Error"
	KindNotification        MessageKind = "Notification"
	KindNotificationSuccess MessageKind = "NotificationSuccess"
	KindNotificationFailure MessageKind = "NotificationFailure"
)

// Message is one entry in a record's log.
type Message struct {
	ID                   string      `json:"id"`
	Kind                 MessageKind `json:"kind"`
	Operation            Operation   `json:"operation"`
	TransactionReference string      `json:"transactionReference,omitempty"`
	Text                 string      `json:"text,omitempty"`
	// PreviousStatus is set on Request messages: the status the operation started from.
	PreviousStatus Status    `json:"previousStatus,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Record is one payment and its message log.
type Record struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Gateway   string    `json:"gateway"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    Status    `json:"status"`
	Messages  []Message `json:"messages"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRecord creates a record with a fresh identifier.
func NewRecord(ownerID, gateway string, amount int64, currency string, status Status) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Gateway:   gateway,
		Amount:    amount,
		Currency:  currency,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the log. CreatedAt is kept strictly increasing.
func (r *Record) Append(kind MessageKind, op Operation, reference, text string) Message {
	now := time.Now().UTC()
	if n := len(r.Messages); n > 0 {
		if last := r.Messages[n-1].CreatedAt; !now.After(last) {
			now = last.Add(time.Nanosecond)
		}
	}
	msg := Message{
		ID:                   uuid.NewString(),
		Kind:                 kind,
		Operation:            op,
		TransactionReference: reference,
		Text:                 text,
		CreatedAt:            now,
	}
	r.Messages = append(r.Messages, msg)
	r.UpdatedAt = now
	return msg
}

// AppendRequest records an operation attempt together with the status it starts from.
func (r *Record) AppendRequest(op Operation, reference string) Message {
	r.Append(KindRequest, op, reference, "")
	r.Messages[len(r.Messages)-1].PreviousStatus = r.Status
	return r.Messages[len(r.Messages)-1]
}

// LatestReference returns the most recent non-empty transaction reference in
// the log. Plain Notification messages are not authoritative and are skipped.
func (r *Record) LatestReference() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Kind == KindNotification {
			continue
		}
		if ref := r.Messages[i].TransactionReference; ref != "" {
			return ref
		}
	}
	return ""
}

// PendingReference returns the reference recorded by the latest Request or
// Response message of op, preferring whichever comes last.
func (r *Record) PendingReference(op Operation) string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		m := r.Messages[i]
		if m.Operation != op || m.TransactionReference == "" {
			continue
		}
		if m.Kind == KindRequest || m.Kind == KindResponse {
			return m.TransactionReference
		}
	}
	return ""
}

// StartStatus returns the status op started from according to its latest
// Request message. Falls back to the first start status of the triple, or ""
// for an unknown operation.
func (r *Record) StartStatus(op Operation) Status {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		m := r.Messages[i]
		if m.Operation == op && m.Kind == KindRequest && m.PreviousStatus != "" {
			return m.PreviousStatus
		}
	}
	if starts := op.Triple().StartStatuses; len(starts) > 0 {
		return starts[0]
	}
	return ""
}

// LatestMessageFor returns the most recent message of op, if any.
func (r *Record) LatestMessageFor(op Operation) (Message, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Operation == op {
			return r.Messages[i], true
		}
	}
	return Message{}, false
}

// FailedOperation reports the operation whose failure notification is the
// last entry of the log while the record sits in that operation's start
// status. Redeliveries of that failure belong to it.
func (r *Record) FailedOperation() (Operation, bool) {
	n := len(r.Messages)
	if n == 0 {
		return "", false
	}
	last := r.Messages[n-1]
	if last.Kind != KindNotificationFailure || !last.Operation.Triple().IsStart(r.Status) {
		return "", false
	}
	return last.Operation, true
}

// LatestMessage returns the most recent message of the given kind, if any.
func (r *Record) LatestMessage(kind MessageKind) (Message, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Kind == kind {
			return r.Messages[i], true
		}
	}
	return Message{}, false
}

// Kinds lists the kinds of the log in order.
func (r *Record) Kinds() []MessageKind {
	kinds := make([]MessageKind, 0, len(r.Messages))
	for _, m := range r.Messages {
		kinds = append(kinds, m.Kind)
	}
	return kinds
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Messages = append([]Message(nil), r.Messages...)
	return &c
}
