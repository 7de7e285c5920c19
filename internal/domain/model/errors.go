package model

import "errors"

var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrMissingIdentity = errors.New("device identity required")
	ErrInvalidCommand  = errors.New("invalid command")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrDeviceExists    = errors.New("device already exists")
)
