package domain

import "time"

// EndpointHandle identifies a recording endpoint inside the media pipeline
// service. WatcherHandle and PlayerHandle identify its derived resources.
type EndpointHandle string
type WatcherHandle string
type PlayerHandle string

// RecordingSession records that one identity's outbound stream is currently
// being captured by the pipeline service. At most one exists per username.
type RecordingSession struct {
	Owner       string
	Endpoint    EndpointHandle
	StoragePath string
	StartedAt   time.Time
}

// WatchLeg is one consumer's live attachment to another identity's recording
// session. Legs are keyed by their own ID, independent of the source
// session's generation, so a stale stop can never target a newer session.
type WatchLeg struct {
	ID       string
	Watcher  string // consuming username
	Source   string // streaming username
	Endpoint EndpointHandle
	Handle   WatcherHandle
}

// PlaybackSession is one consumer watching a stored recording.
type PlaybackSession struct {
	Owner     string
	Path      string
	Player    PlayerHandle
	StartedAt time.Time
}
