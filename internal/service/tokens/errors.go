package tokens

import "errors"

var (
	ErrTourNotFound    = errors.New("tour not found")
	ErrUnauthorized    = errors.New("caller may not access this room")
	ErrInvalidRole     = errors.New("role must be guide or guest")
	ErrMissingDeviceID = errors.New("guest token requires a device_id")
	ErrInvalidSession  = errors.New("session token is invalid")
)
