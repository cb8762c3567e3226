package crm

import (
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks ids generated locally for messages not yet confirmed.
const TempIDPrefix = "temp-"

// NewTempID returns a client-temporary message id. UUIDv7 embeds the
// creation time, so ids are unique per device and ordered by creation.
func NewTempID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return TempIDPrefix + id.String()
}

// IsTempID reports whether id was produced by NewTempID (or by an older
// client using the same prefix).
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
