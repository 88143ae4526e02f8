package domain

import (
	"time"

	"github.com/google/uuid"
)

type TourStatus string

const (
	TourPending   TourStatus = "pending"
	TourActive    TourStatus = "active"
	TourCompleted TourStatus = "completed"
	TourCancelled TourStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is possible.
func (s TourStatus) IsTerminal() bool {
	return s == TourCompleted || s == TourCancelled
}

// CanTransitionTo reports whether the status transition is legal:
// pending -> active -> completed, pending -> cancelled.
func (s TourStatus) CanTransitionTo(next TourStatus) bool {
	switch s {
	case TourPending:
		return next == TourActive || next == TourCancelled
	case TourActive:
		return next == TourCompleted
	default:
		return false
	}
}

type Role string

const (
	RoleGuide Role = "guide"
	RoleGuest Role = "guest"
)

// Session identifies the authenticated guide making a request. It is passed
// explicitly into service operations rather than read from ambient state.
type Session struct {
	GuideID uuid.UUID
}

type Tour struct {
	ID                  uuid.UUID
	GuideID             uuid.UUID
	Title               string
	UniqueCode          string
	Status              TourStatus
	RoomStartedAt       *time.Time
	RoomFinishedAt      *time.Time
	GuideJoinedRoomAt   *time.Time
	GuideLeftRoomAt     *time.Time
	CurrentParticipants int
	TotalParticipants   int
	CompletedAt         *time.Time
	DeletedAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Participant is one (tour, device) pair. Rejoining reuses the row: leave_time
// and the provider timestamps are cleared instead of inserting a duplicate.
type Participant struct {
	ID           uuid.UUID
	TourID       uuid.UUID
	DeviceID     string
	JoinTime     *time.Time
	LeaveTime    *time.Time
	RoomJoinedAt *time.Time
	RoomLeftAt   *time.Time
}

// Feedback holds one rating per (tour, device); resubmitting replaces it.
type Feedback struct {
	ID        uuid.UUID
	TourID    uuid.UUID
	DeviceID  string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TipStatus string

const (
	TipPending    TipStatus = "pending"
	TipProcessing TipStatus = "processing"
	TipSucceeded  TipStatus = "succeeded"
	TipFailed     TipStatus = "failed"
)

// TourTip mirrors the payment processor's asynchronous lifecycle. Once the
// status reaches succeeded the record is immutable.
type TourTip struct {
	ID            uuid.UUID
	TourID        uuid.UUID
	DeviceID      string
	AmountCents   int
	Currency      string
	ProcessingFee int
	PlatformFee   int
	TotalCents    int
	Status        TipStatus
	ProviderRef   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
