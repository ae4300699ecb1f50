package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a random identifier tagged with prefix, e.g. "draft-3f2c...".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
