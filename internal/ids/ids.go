package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	errspkg "github.com/couriermq/courier/internal/errors"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a time-sortable unique identifier encoded as a 26-character
// ULID string. Courier stamps these onto published messages and accepted
// socket connections so log lines can be correlated.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// Timestamp extracts the creation time embedded in an identifier produced by
// NewID.
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, errspkg.Wrap(errspkg.KindInvalidArgument, "ids.Timestamp", err)
	}
	return ulid.Time(parsed.Time()), nil
}
