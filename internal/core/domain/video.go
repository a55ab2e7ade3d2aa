package domain

import "time"

// Video is one entry in the recorded-video index.
type Video struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"username"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"date"`
}
