package redis

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "voxtour:v1"

func KeyTourSummary(tourID uuid.UUID) string {
	return fmt.Sprintf("%s:tour:%s:summary", ns, tourID)
}

func KeyTourByCode(code string) string {
	return fmt.Sprintf("%s:tour:code:%s", ns, code)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemTip(tourID uuid.UUID, idemKey string) string {
	return fmt.Sprintf("%s:idem:tips:%s:%s", ns, tourID, idemKey)
}

// ChannelTourSync is the per-tour topic carrying full-row snapshots.
func ChannelTourSync(tourID uuid.UUID) string {
	return fmt.Sprintf("%s:tour:%s:sync", ns, tourID)
}
