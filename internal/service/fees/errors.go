package fees

import "errors"

var (
	ErrAmountOutOfRange    = errors.New("amount out of range")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrTourNotFound        = errors.New("tour not found")
	ErrTipConflict         = errors.New("conflict creating tip")
)
