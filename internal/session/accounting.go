package session

import "github.com/voxtour/voxtour-go/internal/domain"

// Roster is a live remote-roster source, usually a *Manager.
type Roster interface {
	RosterSize() int
}

// ParticipantCount reconciles the live roster with the durable counters.
// While the tour is active the roster reflects who is connected right now;
// once it is completed the connections are gone and the cumulative
// distinct-device total is the answer. The two sources are intentionally
// kept separate - they answer different questions.
func ParticipantCount(t domain.Tour, roster Roster) int {
	switch t.Status {
	case domain.TourActive:
		if roster != nil {
			return roster.RosterSize()
		}
		return t.CurrentParticipants
	case domain.TourCompleted:
		return t.TotalParticipants
	default:
		return 0
	}
}
