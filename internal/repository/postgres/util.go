package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func intervalArg(d time.Duration) string {
	return fmt.Sprintf("%f seconds", d.Seconds())
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
