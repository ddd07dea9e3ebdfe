package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotOpen is returned when a transition targets a terminal order.
	// It matches ErrOrderNotFound under errors.Is so callers that only know
	// about not-found keep working.
	ErrOrderNotOpen     = fmt.Errorf("%w: order is not open", ErrOrderNotFound)
	ErrTradeNotFound    = errors.New("trade not found")
	ErrInconsistentBook = errors.New("order book references a missing order")
	ErrUnsupportedPair  = errors.New("unsupported pair")
)
