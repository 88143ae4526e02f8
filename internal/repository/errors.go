package repository

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrActiveTourExists = errors.New("guide already has an active tour")
)
