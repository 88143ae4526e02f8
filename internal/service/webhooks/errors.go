package webhooks

import "errors"

var (
	ErrMalformedRoom      = errors.New("room name does not match tour-{id}")
	ErrMalformedIdentity  = errors.New("participant identity is unparseable")
	ErrMissingParticipant = errors.New("participant event without identity")
	ErrTourNotFound       = errors.New("tour not found")
)
