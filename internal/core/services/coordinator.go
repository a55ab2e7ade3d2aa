package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
	"github.com/cristivoicu/appserver/pkg/utils"
)

// StreamPublisher fans stream directory changes out to interested
// subscribers. Implemented by the subscription hub.
type StreamPublisher interface {
	NotifyStreamingStarted(s domain.LiveStreamer)
	NotifyStreamingStopped(s domain.LiveStreamer)
}

// IceScope tells the client which negotiation a candidate belongs to.
type IceScope string

const (
	IceForRec  IceScope = "iceForRec"
	IceForLive IceScope = "iceForLive"
	IceForPlay IceScope = "iceForPlay"
)

// OutboundEvent is a pipeline notification translated for one client.
type OutboundEvent struct {
	Kind      ports.PipelineEventKind
	Scope     IceScope
	Candidate *webrtc.ICECandidateInit
	Info      *ports.VideoInfo
}

// recordingState tracks one identity's session through its whole lifecycle.
// The record is inserted before the pipeline round trip (reserving the
// identity) and deleted only after release resolves, so a concurrent start
// always observes AlreadyStreaming rather than racing teardown.
type recordingState struct {
	sess     *domain.RecordingSession
	pending  bool
	stopping bool
	legs     map[string]*domain.WatchLeg
}

// Coordinator owns the identity→recording-session and leg mappings and
// mediates every attach/detach against the media pipeline service. Pipeline
// round trips always happen outside the coordinator lock; registry mutations
// commit only after the round trip resolves.
type Coordinator struct {
	pipeline  ports.MediaPipeline
	videos    ports.VideoRepository
	publisher StreamPublisher
	log       *zap.SugaredLogger

	mu        sync.Mutex
	sessions  map[string]*recordingState             // by owner username
	legs      map[string]*domain.WatchLeg            // by leg ID
	byHandle  map[domain.WatcherHandle]*domain.WatchLeg
	epOwner   map[domain.EndpointHandle]string
	playbacks map[string]*domain.PlaybackSession // by owner username
	byPlayer  map[domain.PlayerHandle]string

	notify func(username string, ev OutboundEvent)
}

func NewCoordinator(pipeline ports.MediaPipeline, videos ports.VideoRepository, publisher StreamPublisher, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		pipeline:  pipeline,
		videos:    videos,
		publisher: publisher,
		log:       log,
		sessions:  make(map[string]*recordingState),
		legs:      make(map[string]*domain.WatchLeg),
		byHandle:  make(map[domain.WatcherHandle]*domain.WatchLeg),
		epOwner:   make(map[domain.EndpointHandle]string),
		playbacks: make(map[string]*domain.PlaybackSession),
		byPlayer:  make(map[domain.PlayerHandle]string),
	}
}

// SetNotifier installs the callback used to forward pipeline notifications to
// a connected client. Must be called before Run.
func (c *Coordinator) SetNotifier(notify func(username string, ev OutboundEvent)) {
	c.notify = notify
}

// StartStreaming reserves the identity, provisions a recording endpoint,
// persists the video index entry and commits the session. Any failure rolls
// the reservation back; no orphaned session is ever observable.
func (c *Coordinator) StartStreaming(ctx context.Context, streamer *domain.User, offer webrtc.SessionDescription) (webrtc.SessionDescription, *domain.RecordingSession, error) {
	owner := streamer.Username

	c.mu.Lock()
	if _, exists := c.sessions[owner]; exists {
		c.mu.Unlock()
		return webrtc.SessionDescription{}, nil, domain.ErrAlreadyStreaming
	}
	c.sessions[owner] = &recordingState{pending: true, legs: make(map[string]*domain.WatchLeg)}
	c.mu.Unlock()

	rollback := func() {
		c.mu.Lock()
		delete(c.sessions, owner)
		c.mu.Unlock()
	}

	ep, path, err := c.pipeline.CreateRecordingEndpoint(ctx, owner)
	if err != nil {
		rollback()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("create recording endpoint: %w", err)
	}

	answer, err := c.pipeline.Negotiate(ctx, ep, offer)
	if err != nil {
		if relErr := c.pipeline.ReleaseEndpoint(ctx, ep); relErr != nil {
			c.log.Warnw("failed to release endpoint after negotiate error", "owner", owner, "error", relErr)
		}
		rollback()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("negotiate recording endpoint: %w", err)
	}

	sess := &domain.RecordingSession{
		Owner:       owner,
		Endpoint:    ep,
		StoragePath: path,
		StartedAt:   utils.Now(),
	}

	if err := c.videos.Add(ctx, &domain.Video{Owner: owner, Path: path, CreatedAt: sess.StartedAt}); err != nil {
		if relErr := c.pipeline.ReleaseEndpoint(ctx, ep); relErr != nil {
			c.log.Warnw("failed to release endpoint after index error", "owner", owner, "error", relErr)
		}
		rollback()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("persist video index entry: %w", err)
	}

	c.mu.Lock()
	st := c.sessions[owner]
	st.sess = sess
	st.pending = false
	c.epOwner[ep] = owner
	c.mu.Unlock()

	c.publisher.NotifyStreamingStarted(domain.LiveStreamer{Name: streamer.Name, Username: owner})
	c.log.Infow("recording session started", "owner", owner, "path", path)
	return answer, sess, nil
}

// StopStreaming detaches every attached watch leg, awaits endpoint release
// and removes the session. The record stays in place while release is in
// flight, so a new start for the same identity cannot race the teardown.
func (c *Coordinator) StopStreaming(ctx context.Context, streamer *domain.User) error {
	owner := streamer.Username

	c.mu.Lock()
	st, ok := c.sessions[owner]
	if !ok || st.pending || st.stopping {
		c.mu.Unlock()
		return domain.ErrNotStreaming
	}
	st.stopping = true
	ep := st.sess.Endpoint
	attached := make([]*domain.WatchLeg, 0, len(st.legs))
	for _, leg := range st.legs {
		attached = append(attached, leg)
	}
	c.mu.Unlock()

	// legs first, then the session itself
	for _, leg := range attached {
		c.removeLeg(leg)
		if err := c.pipeline.DetachWatcher(ctx, leg.Handle); err != nil {
			c.log.Warnw("failed to detach watcher during teardown", "leg", leg.ID, "error", err)
		}
	}

	if err := c.pipeline.ReleaseEndpoint(ctx, ep); err != nil {
		c.log.Errorw("failed to release recording endpoint", "owner", owner, "error", err)
	}

	c.mu.Lock()
	delete(c.sessions, owner)
	delete(c.epOwner, ep)
	c.mu.Unlock()

	c.publisher.NotifyStreamingStopped(domain.LiveStreamer{Name: streamer.Name, Username: owner})
	c.log.Infow("recording session stopped", "owner", owner)
	return nil
}

// Session returns the active recording session for owner, if any.
func (c *Coordinator) Session(owner string) (*domain.RecordingSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[owner]
	if !ok || st.pending || st.sess == nil {
		return nil, false
	}
	return st.sess, true
}

// LiveStreamers snapshots the identities with a committed recording session.
func (c *Coordinator) LiveStreamers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	owners := make([]string, 0, len(c.sessions))
	for owner, st := range c.sessions {
		if !st.pending && !st.stopping {
			owners = append(owners, owner)
		}
	}
	return owners
}

// StartWatching attaches watcher to source's live stream and returns the new
// leg plus the negotiated answer. The leg is keyed by its own identifier.
func (c *Coordinator) StartWatching(ctx context.Context, watcher, source string, offer webrtc.SessionDescription) (*domain.WatchLeg, webrtc.SessionDescription, error) {
	// a repeat subscribe replaces the watcher's existing leg for this source
	if err := c.StopWatching(ctx, watcher, source); err != nil {
		return nil, webrtc.SessionDescription{}, err
	}

	c.mu.Lock()
	st, ok := c.sessions[source]
	if !ok || st.pending || st.stopping {
		c.mu.Unlock()
		return nil, webrtc.SessionDescription{}, domain.ErrNoActiveStream
	}
	ep := st.sess.Endpoint
	c.mu.Unlock()

	handle, answer, err := c.pipeline.AttachWatcher(ctx, ep, offer)
	if err != nil {
		return nil, webrtc.SessionDescription{}, fmt.Errorf("attach watcher: %w", err)
	}

	leg := &domain.WatchLeg{
		ID:       utils.NewWatchLegID(),
		Watcher:  watcher,
		Source:   source,
		Endpoint: ep,
		Handle:   handle,
	}

	c.mu.Lock()
	st, ok = c.sessions[source]
	if !ok || st.stopping || st.sess == nil || st.sess.Endpoint != ep {
		// session died while we negotiated; roll the attachment back
		c.mu.Unlock()
		if detErr := c.pipeline.DetachWatcher(ctx, handle); detErr != nil {
			c.log.Warnw("failed to detach orphaned watcher", "source", source, "error", detErr)
		}
		return nil, webrtc.SessionDescription{}, domain.ErrNoActiveStream
	}
	c.legs[leg.ID] = leg
	c.byHandle[handle] = leg
	st.legs[leg.ID] = leg
	c.mu.Unlock()

	c.log.Infow("watch leg attached", "leg", leg.ID, "watcher", watcher, "source", source)
	return leg, answer, nil
}

// StopWatching detaches watcher's leg on source's stream. Idempotent: a leg
// already gone (including one torn down with its session) is a no-op.
func (c *Coordinator) StopWatching(ctx context.Context, watcher, source string) error {
	c.mu.Lock()
	var leg *domain.WatchLeg
	for _, l := range c.legs {
		if l.Watcher == watcher && l.Source == source {
			leg = l
			break
		}
	}
	if leg == nil {
		c.mu.Unlock()
		return nil
	}
	c.unlinkLegLocked(leg)
	c.mu.Unlock()

	if err := c.pipeline.DetachWatcher(ctx, leg.Handle); err != nil {
		c.log.Warnw("failed to detach watcher", "leg", leg.ID, "error", err)
	}
	c.log.Infow("watch leg detached", "leg", leg.ID, "watcher", watcher, "source", source)
	return nil
}

func (c *Coordinator) removeLeg(leg *domain.WatchLeg) {
	c.mu.Lock()
	c.unlinkLegLocked(leg)
	c.mu.Unlock()
}

func (c *Coordinator) unlinkLegLocked(leg *domain.WatchLeg) {
	delete(c.legs, leg.ID)
	delete(c.byHandle, leg.Handle)
	if st, ok := c.sessions[leg.Source]; ok {
		delete(st.legs, leg.ID)
	}
}

// StartPlayback opens a stored recording for owner. An existing playback for
// the same owner is released first.
func (c *Coordinator) StartPlayback(ctx context.Context, owner, path string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.StopPlayback(ctx, owner); err != nil {
		c.log.Warnw("failed to release previous playback", "owner", owner, "error", err)
	}

	player, answer, err := c.pipeline.CreatePlayback(ctx, path, offer)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create playback: %w", err)
	}
	if err := c.pipeline.Play(ctx, player); err != nil {
		if relErr := c.pipeline.ReleasePlayback(ctx, player); relErr != nil {
			c.log.Warnw("failed to release playback after play error", "owner", owner, "error", relErr)
		}
		return webrtc.SessionDescription{}, fmt.Errorf("start playback: %w", err)
	}

	c.mu.Lock()
	c.playbacks[owner] = &domain.PlaybackSession{Owner: owner, Path: path, Player: player, StartedAt: utils.Now()}
	c.byPlayer[player] = owner
	c.mu.Unlock()

	c.log.Infow("playback started", "owner", owner, "path", path)
	return answer, nil
}

func (c *Coordinator) playback(owner string) (*domain.PlaybackSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pb, ok := c.playbacks[owner]
	if !ok {
		return nil, domain.ErrPlaybackNotFound
	}
	return pb, nil
}

func (c *Coordinator) PausePlayback(ctx context.Context, owner string) error {
	pb, err := c.playback(owner)
	if err != nil {
		return err
	}
	return c.pipeline.Pause(ctx, pb.Player)
}

func (c *Coordinator) ResumePlayback(ctx context.Context, owner string) error {
	pb, err := c.playback(owner)
	if err != nil {
		return err
	}
	return c.pipeline.Play(ctx, pb.Player)
}

func (c *Coordinator) SeekPlayback(ctx context.Context, owner string, position int64) error {
	pb, err := c.playback(owner)
	if err != nil {
		return err
	}
	return c.pipeline.Seek(ctx, pb.Player, position)
}

func (c *Coordinator) PlaybackPosition(ctx context.Context, owner string) (int64, error) {
	pb, err := c.playback(owner)
	if err != nil {
		return 0, err
	}
	return c.pipeline.Position(ctx, pb.Player)
}

// StopPlayback releases owner's playback session; no-op when absent.
func (c *Coordinator) StopPlayback(ctx context.Context, owner string) error {
	c.mu.Lock()
	pb, ok := c.playbacks[owner]
	if ok {
		delete(c.playbacks, owner)
		delete(c.byPlayer, pb.Player)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.pipeline.ReleasePlayback(ctx, pb.Player)
}

// AddCandidate relays a client ICE candidate to whichever pipeline resource
// the scope names.
func (c *Coordinator) AddCandidate(ctx context.Context, username string, scope IceScope, source string, cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	var target string
	switch scope {
	case IceForRec:
		st, ok := c.sessions[username]
		if !ok || st.sess == nil {
			c.mu.Unlock()
			return domain.ErrNotStreaming
		}
		target = string(st.sess.Endpoint)
	case IceForPlay:
		pb, ok := c.playbacks[username]
		if !ok {
			c.mu.Unlock()
			return domain.ErrPlaybackNotFound
		}
		target = string(pb.Player)
	case IceForLive:
		var leg *domain.WatchLeg
		for _, l := range c.legs {
			if l.Watcher != username {
				continue
			}
			if source != "" && l.Source != source {
				continue
			}
			leg = l
			break
		}
		if leg == nil {
			c.mu.Unlock()
			return domain.ErrWatchLegNotFound
		}
		target = string(leg.Handle)
	default:
		c.mu.Unlock()
		return fmt.Errorf("unknown ice scope %q", scope)
	}
	c.mu.Unlock()

	return c.pipeline.AddCandidate(ctx, target, cand)
}

// ReleaseOwned tears down everything a disconnecting identity holds: consumed
// watch legs, the owned recording session (cascading to its legs) and any
// playback. Every step is a defensive no-op when the resource is already
// gone, because disconnect can race a server-initiated forced close.
func (c *Coordinator) ReleaseOwned(ctx context.Context, user *domain.User) {
	username := user.Username

	c.mu.Lock()
	var consumed []*domain.WatchLeg
	for _, leg := range c.legs {
		if leg.Watcher == username {
			consumed = append(consumed, leg)
		}
	}
	for _, leg := range consumed {
		c.unlinkLegLocked(leg)
	}
	c.mu.Unlock()

	for _, leg := range consumed {
		if err := c.pipeline.DetachWatcher(ctx, leg.Handle); err != nil {
			c.log.Warnw("failed to detach watcher at disconnect", "leg", leg.ID, "error", err)
		}
	}

	if err := c.StopStreaming(ctx, user); err != nil && err != domain.ErrNotStreaming {
		c.log.Warnw("failed to stop stream at disconnect", "owner", username, "error", err)
	}

	if err := c.StopPlayback(ctx, username); err != nil {
		c.log.Warnw("failed to stop playback at disconnect", "owner", username, "error", err)
	}
}

// Run drains the pipeline's event channel and translates each notification
// into an outbound message for the affected client. Returns when the channel
// closes or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.pipeline.Events():
			if !ok {
				return
			}
			c.dispatchEvent(ctx, ev)
		}
	}
}

func (c *Coordinator) dispatchEvent(ctx context.Context, ev ports.PipelineEvent) {
	if c.notify == nil {
		return
	}

	switch ev.Kind {
	case ports.EventIceCandidate:
		username, scope, ok := c.resolveCandidateTarget(ev)
		if !ok {
			c.log.Debugw("candidate for unknown pipeline resource", "endpoint", ev.Endpoint, "watcher", ev.Watcher, "player", ev.Player)
			return
		}
		c.notify(username, OutboundEvent{Kind: ev.Kind, Scope: scope, Candidate: ev.Candidate})

	case ports.EventVideoInfo:
		c.mu.Lock()
		username, ok := c.byPlayer[ev.Player]
		c.mu.Unlock()
		if !ok {
			return
		}
		c.notify(username, OutboundEvent{Kind: ev.Kind, Info: ev.Info})

	case ports.EventEndOfStream:
		c.mu.Lock()
		username, ok := c.byPlayer[ev.Player]
		c.mu.Unlock()
		if !ok {
			return
		}
		if err := c.StopPlayback(ctx, username); err != nil {
			c.log.Warnw("failed to release playback at end of stream", "owner", username, "error", err)
		}
		c.notify(username, OutboundEvent{Kind: ev.Kind})
	}
}

func (c *Coordinator) resolveCandidateTarget(ev ports.PipelineEvent) (string, IceScope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Endpoint != "" {
		owner, ok := c.epOwner[ev.Endpoint]
		return owner, IceForRec, ok
	}
	if ev.Watcher != "" {
		leg, ok := c.byHandle[ev.Watcher]
		if !ok {
			return "", IceForLive, false
		}
		return leg.Watcher, IceForLive, true
	}
	if ev.Player != "" {
		owner, ok := c.byPlayer[ev.Player]
		return owner, IceForPlay, ok
	}
	return "", "", false
}
