package fees

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
)

const (
	// platformRate is the platform's cut of the tip amount.
	platformRate = 0.075

	MinAmountCents = 100
	MaxAmountCents = 1_000_000
)

// Structure is the per-currency processor fee contract: a percentage of the
// amount plus a fixed per-transaction fee, both producing integer cents.
type Structure struct {
	PercentageFee float64
	FixedFeeCents int
}

// DefaultStructures is the built-in per-currency fee table. Callers may copy
// and adjust it before handing it to New.
func DefaultStructures() map[string]Structure {
	std := Structure{PercentageFee: 2.9, FixedFeeCents: 30}
	return map[string]Structure{
		"usd": std,
		"eur": std,
		"gbp": {PercentageFee: 2.5, FixedFeeCents: 25},
		"cad": std,
		"aud": std,
	}
}

// Breakdown is the fee split for one tip, all values in integer cents.
type Breakdown struct {
	TipAmount     int `json:"tipAmount"`
	ProcessingFee int `json:"processingFee"`
	PlatformFee   int `json:"platformFee"`
	TotalAmount   int `json:"totalAmount"`
}

// TipStore persists tip records with their breakdown.
type TipStore interface {
	Create(ctx context.Context, t *domain.TourTip) (*domain.TourTip, error)
	SetStatusByProviderRef(ctx context.Context, providerRef string, status domain.TipStatus) (*domain.TourTip, error)
}

// TourGetter resolves the tour a tip is attached to.
type TourGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Tour, error)
}

type Service struct {
	structures map[string]Structure
	tips       TipStore
	tours      TourGetter
}

func New(tips TipStore, tours TourGetter, structures map[string]Structure) *Service {
	if structures == nil {
		structures = DefaultStructures()
	}
	return &Service{
		structures: structures,
		tips:       tips,
		tours:      tours,
	}
}

// Calculate computes the fee breakdown for a tip amount.
//
// Returns:
//   - error: fees.ErrAmountOutOfRange if amount is outside [100, 1_000_000] cents.
//   - error: fees.ErrUnsupportedCurrency if no fee structure exists for the currency.
func (s *Service) Calculate(amountCents int, currency string) (Breakdown, error) {
	const op = "service.fees.Calculate"

	if amountCents < MinAmountCents || amountCents > MaxAmountCents {
		return Breakdown{}, fmt.Errorf("%s:%w", op, ErrAmountOutOfRange)
	}

	fs, ok := s.structures[strings.ToLower(currency)]
	if !ok {
		return Breakdown{}, fmt.Errorf("%s:%w", op, ErrUnsupportedCurrency)
	}

	return calculate(amountCents, fs), nil
}

func calculate(amountCents int, fs Structure) Breakdown {
	platform := int(math.Round(float64(amountCents) * platformRate))
	percent := math.Round(float64(amountCents) * fs.PercentageFee / 100)
	processing := int(math.Round(percent + float64(fs.FixedFeeCents)))

	return Breakdown{
		TipAmount:     amountCents,
		ProcessingFee: processing,
		PlatformFee:   platform,
		TotalAmount:   amountCents + processing + platform,
	}
}

// CreateTip validates the amount, computes the breakdown and persists a
// pending tip for the device.
func (s *Service) CreateTip(
	ctx context.Context,
	tourID uuid.UUID,
	deviceID string,
	amountCents int,
	currency string,
) (*domain.TourTip, error) {
	const op = "service.fees.CreateTip"

	bd, err := s.Calculate(amountCents, currency)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if _, err := s.tours.Get(ctx, tourID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTourNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	tip := &domain.TourTip{
		ID:            uuid.New(),
		TourID:        tourID,
		DeviceID:      deviceID,
		AmountCents:   bd.TipAmount,
		Currency:      strings.ToLower(currency),
		ProcessingFee: bd.ProcessingFee,
		PlatformFee:   bd.PlatformFee,
		TotalCents:    bd.TotalAmount,
		Status:        domain.TipPending,
		ProviderRef:   "tip-" + uuid.NewString(),
	}

	created, err := s.tips.Create(ctx, tip)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s:%w", op, ErrTipConflict)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return created, nil
}

// ApplyPaymentUpdate applies the processor's asynchronous status for a tip.
// Succeeded tips never change; reapplying the same status is a no-op.
func (s *Service) ApplyPaymentUpdate(
	ctx context.Context,
	providerRef string,
	status domain.TipStatus,
) (*domain.TourTip, error) {
	const op = "service.fees.ApplyPaymentUpdate"

	tip, err := s.tips.SetStatusByProviderRef(ctx, providerRef, status)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tip, nil
}
