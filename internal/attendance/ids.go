package attendance

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const externalIDPrefix = "session_"

// NewExternalID returns the public identifier of a session, "session_"
// followed by a ULID so identifiers sort by creation time.
func NewExternalID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return externalIDPrefix + id.String(), nil
}
