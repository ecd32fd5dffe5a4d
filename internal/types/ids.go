package types

import (
	"time"

	"github.com/google/uuid"
)

// NewDocumentID generates a UUIDv7 document identifier.
// Time-ordered IDs keep sequential inserts clustered in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.Must(uuid.NewV7()).String())
}

// NewWorkID generates a UUIDv7 deferred work identifier.
// Ordering by id approximates enqueue order.
func NewWorkID() WorkID {
	return WorkID(uuid.Must(uuid.NewV7()).String())
}

// ParseDocumentID validates and converts a string to DocumentID.
// Rejects malformed UUIDs so invalid ids never reach the store.
func ParseDocumentID(s string) (DocumentID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return DocumentID(s), nil
}

// WorkIDTime extracts the enqueue timestamp embedded in a UUIDv7 work id.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func WorkIDTime(id WorkID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
