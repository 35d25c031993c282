package domain

import "errors"

var (
	ErrNotFound           = errors.New("product not found")
	ErrUnresolved         = errors.New("selection does not resolve to a variant")
	ErrMalformedSelection = errors.New("malformed selection")
	ErrInvalidSnapshot    = errors.New("invalid catalog snapshot")
	ErrInvalidCursor      = errors.New("invalid page cursor")

	ErrVariantUnavailable = errors.New("variant not available for sale")
	ErrInvalidLineItem    = errors.New("invalid line item")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrBusy            = errors.New("favorite toggle already in flight")
	ErrUnsettled       = errors.New("favorite state not settled")
	ErrBackendFailure  = errors.New("backend failure")
	ErrTrackerClosed   = errors.New("favorite tracker closed")
)
