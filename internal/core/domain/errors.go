package domain

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrDuplicateUser    = errors.New("user already connected")
	ErrAuthentication   = errors.New("invalid credentials")
	ErrAccountDisabled  = errors.New("account disabled")
	ErrUnauthorized     = errors.New("operation not permitted")
	ErrTokenInvalid     = errors.New("token invalid")
	ErrAlreadyStreaming = errors.New("recording session already active")
	ErrNotStreaming     = errors.New("no recording session active")
	ErrNoActiveStream   = errors.New("target has no active stream")
	ErrWatchLegNotFound = errors.New("watch leg not found")
	ErrPlaybackNotFound = errors.New("no playback session active")
)
