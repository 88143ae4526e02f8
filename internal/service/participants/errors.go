package participants

import "errors"

var (
	ErrTourNotFound        = errors.New("tour not found")
	ErrTourNotJoinable     = errors.New("tour can no longer be joined")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
	ErrRatingNotOpen       = errors.New("tour is not rateable yet")
)
