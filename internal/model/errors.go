package model

import "github.com/pkg/errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate           = errors.New("record already exists")
	ErrInsufficientBalance = errors.New("refund exceeds refundable balance")
)
