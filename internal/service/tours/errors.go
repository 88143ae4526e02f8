package tours

import "errors"

var (
	ErrTourNotFound  = errors.New("tour not found")
	ErrAlreadyActive = errors.New("guide already has an active tour")
	ErrInvalidStatus = errors.New("transition not allowed from current status")
	ErrCodeExhausted = errors.New("could not generate a unique join code")
)
