package ports

import (
	"context"

	"github.com/pion/webrtc/v3"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

// PipelineEventKind discriminates asynchronous notifications coming back from
// the media pipeline service.
type PipelineEventKind string

const (
	EventIceCandidate PipelineEventKind = "iceCandidate"
	EventEndOfStream  PipelineEventKind = "endOfStream"
	EventVideoInfo    PipelineEventKind = "videoInfo"
)

// PipelineEvent is delivered on the pipeline event channel instead of being
// executed re-entrantly inside the service's own call stack.
type PipelineEvent struct {
	Kind      PipelineEventKind
	Endpoint  domain.EndpointHandle
	Watcher   domain.WatcherHandle
	Player    domain.PlayerHandle
	Candidate *webrtc.ICECandidateInit
	Info      *VideoInfo
}

// VideoInfo describes a stored recording opened for playback.
type VideoInfo struct {
	IsSeekable   bool  `json:"isSeekable"`
	SeekableInit int64 `json:"initSeekable"`
	SeekableEnd  int64 `json:"endSeekable"`
	Duration     int64 `json:"videoDuration"`
}

// MediaPipeline is the surface of the external media-processing engine. All
// calls block on a round trip to the engine and must therefore never be made
// while holding a registry lock.
type MediaPipeline interface {
	// CreateRecordingEndpoint provisions capture for owner's outbound stream
	// and returns the endpoint handle plus the generated storage path.
	CreateRecordingEndpoint(ctx context.Context, owner string) (domain.EndpointHandle, string, error)
	// Negotiate runs SDP negotiation for the recording endpoint.
	Negotiate(ctx context.Context, ep domain.EndpointHandle, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// AttachWatcher creates an outbound leg fanning the endpoint's stream out
	// to one consumer and negotiates it in the same round trip.
	AttachWatcher(ctx context.Context, ep domain.EndpointHandle, offer webrtc.SessionDescription) (domain.WatcherHandle, webrtc.SessionDescription, error)
	DetachWatcher(ctx context.Context, w domain.WatcherHandle) error
	// ReleaseEndpoint tears down capture. It resolves only when the engine has
	// released the endpoint; the same identity may not start again before it
	// returns.
	ReleaseEndpoint(ctx context.Context, ep domain.EndpointHandle) error

	// Playback of stored recordings.
	CreatePlayback(ctx context.Context, path string, offer webrtc.SessionDescription) (domain.PlayerHandle, webrtc.SessionDescription, error)
	Play(ctx context.Context, p domain.PlayerHandle) error
	Pause(ctx context.Context, p domain.PlayerHandle) error
	Seek(ctx context.Context, p domain.PlayerHandle, position int64) error
	Position(ctx context.Context, p domain.PlayerHandle) (int64, error)
	ReleasePlayback(ctx context.Context, p domain.PlayerHandle) error

	// ICE relay toward the engine. Target is whichever handle the candidate
	// belongs to (endpoint, watcher or player).
	AddCandidate(ctx context.Context, target string, cand webrtc.ICECandidateInit) error

	// Events exposes the engine's asynchronous notifications.
	Events() <-chan PipelineEvent
}
