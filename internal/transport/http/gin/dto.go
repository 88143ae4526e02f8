package httpgin

import (
	"time"

	"github.com/voxtour/voxtour-go/internal/domain"
)

type CreateTourRequest struct {
	Title string `json:"title" binding:"required"`
}

type JoinTourRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
}

type LeaveTourRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
}

type FeedbackRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Comment  string `json:"comment"`
}

type CalculateFeesRequest struct {
	Amount   int    `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency" binding:"required,len=3"`
}

type CreateTipRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	Amount   int    `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency" binding:"required,len=3"`
}

type TokenRequest struct {
	TourID   string `json:"tour_id" binding:"required,uuid"`
	Role     string `json:"role" binding:"required,oneof=guide guest"`
	DeviceID string `json:"device_id"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type PaymentWebhookRequest struct {
	ProviderRef string `json:"provider_ref" binding:"required"`
	Status      string `json:"status" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ParticipantCountResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type TourResponse struct {
	ID                  string     `json:"id"`
	GuideID             string     `json:"guide_id"`
	Title               string     `json:"title"`
	UniqueCode          string     `json:"unique_code"`
	Status              string     `json:"status"`
	RoomStartedAt       *time.Time `json:"room_started_at"`
	RoomFinishedAt      *time.Time `json:"room_finished_at"`
	CurrentParticipants int        `json:"current_participants"`
	TotalParticipants   int        `json:"total_participants"`
	CompletedAt         *time.Time `json:"completed_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toTourResponse(t *domain.Tour) TourResponse {
	return TourResponse{
		ID:                  t.ID.String(),
		GuideID:             t.GuideID.String(),
		Title:               t.Title,
		UniqueCode:          t.UniqueCode,
		Status:              string(t.Status),
		RoomStartedAt:       t.RoomStartedAt,
		RoomFinishedAt:      t.RoomFinishedAt,
		CurrentParticipants: t.CurrentParticipants,
		TotalParticipants:   t.TotalParticipants,
		CompletedAt:         t.CompletedAt,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

type ParticipantResponse struct {
	DeviceID     string     `json:"device_id"`
	JoinTime     *time.Time `json:"join_time"`
	LeaveTime    *time.Time `json:"leave_time"`
	RoomJoinedAt *time.Time `json:"room_joined_at"`
	RoomLeftAt   *time.Time `json:"room_left_at"`
}

func toParticipantResponse(p *domain.Participant) ParticipantResponse {
	return ParticipantResponse{
		DeviceID:     p.DeviceID,
		JoinTime:     p.JoinTime,
		LeaveTime:    p.LeaveTime,
		RoomJoinedAt: p.RoomJoinedAt,
		RoomLeftAt:   p.RoomLeftAt,
	}
}

type FeedbackResponse struct {
	TourID   string `json:"tour_id"`
	DeviceID string `json:"device_id"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}

func toFeedbackResponse(f *domain.Feedback) FeedbackResponse {
	return FeedbackResponse{
		TourID:   f.TourID.String(),
		DeviceID: f.DeviceID,
		Rating:   f.Rating,
		Comment:  f.Comment,
	}
}

type TipResponse struct {
	ID            string `json:"id"`
	TourID        string `json:"tour_id"`
	Amount        int    `json:"amount"`
	Currency      string `json:"currency"`
	ProcessingFee int    `json:"processing_fee"`
	PlatformFee   int    `json:"platform_fee"`
	Total         int    `json:"total"`
	Status        string `json:"status"`
}

func toTipResponse(t *domain.TourTip) TipResponse {
	return TipResponse{
		ID:            t.ID.String(),
		TourID:        t.TourID.String(),
		Amount:        t.AmountCents,
		Currency:      t.Currency,
		ProcessingFee: t.ProcessingFee,
		PlatformFee:   t.PlatformFee,
		Total:         t.TotalCents,
		Status:        string(t.Status),
	}
}
