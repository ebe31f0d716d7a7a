package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrOrderRejected      = errors.New("order rejected")
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrEmptyBookSide      = errors.New("empty book side")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrInvalidConfig      = errors.New("invalid configuration")
)
