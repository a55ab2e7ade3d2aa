package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
	"github.com/cristivoicu/appserver/internal/core/services"
	"github.com/cristivoicu/appserver/internal/infrastructure/monitoring"
	"github.com/cristivoicu/appserver/pkg/config"
	"github.com/cristivoicu/appserver/pkg/tracing"
	"github.com/cristivoicu/appserver/pkg/utils"
	"github.com/cristivoicu/appserver/pkg/validation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Deps carries everything the signaling server dispatches to.
type Deps struct {
	Registry    *Registry
	Hub         *Hub
	Coordinator *services.Coordinator
	Policy      *services.Policy
	Auth        services.AuthService
	Users       ports.UserRepository
	Videos      ports.VideoRepository
	Audit       ports.AuditRepository
	MapItems    ports.MapItemRepository
	Locations   ports.LocationStore
	Metrics     *monitoring.PrometheusCollector
	Tracer      trace.Tracer
}

// Server owns the websocket endpoint: it authenticates the handshake, decodes
// frames into operations, applies the authorization policy and routes each
// operation to the service that implements it.
type Server struct {
	cfg  *config.Config
	deps Deps
	log  *zap.SugaredLogger
}

func NewServer(cfg *config.Config, deps Deps, log *zap.SugaredLogger) *Server {
	s := &Server{cfg: cfg, deps: deps, log: log}
	deps.Coordinator.SetNotifier(s.forwardPipelineEvent)
	return s
}

// HandleWebSocket authenticates the HTTP Basic credentials, upgrades the
// connection and runs the read loop until the client goes away.
func (s *Server) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()

	username, password, ok := c.Request.BasicAuth()
	if !ok {
		c.Header("WWW-Authenticate", `Basic realm="appserver"`)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	user, err := s.deps.Users.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, domain.ErrAccountDisabled) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorw("websocket upgrade failed", "username", username, "error", err)
		return
	}

	token, err := s.deps.Auth.IssueToken(user)
	if err != nil {
		s.log.Errorw("token issue failed", "username", username, "error", err)
		ws.Close()
		return
	}

	conn := NewConn(ws, user, s.cfg.Signal.PingInterval, s.cfg.Signal.WriteTimeout, s.cfg.Signal.SendBuffer)
	conn.Token = token
	conn.Start()

	if err := s.deps.Registry.Register(conn); err != nil {
		conn.CloseWithCode(CloseDuplicateIdentity, "identity already connected")
		s.deps.Metrics.CloseRecorded("duplicate")
		s.log.Warnw("duplicate connection rejected", "username", username)
		return
	}

	if err := conn.Send(&Envelope{Method: MethodToken, Token: token}); err != nil {
		s.teardown(conn)
		return
	}

	if err := s.deps.Users.SetStatus(ctx, username, domain.StatusOnline); err != nil {
		s.log.Warnw("failed to mark user online", "username", username, "error", err)
	}
	s.audit(ctx, username, "logged in", domain.SeverityInfo, domain.CategorySession)
	s.deps.Hub.NotifyUserStatus(username, domain.StatusOnline)
	s.deps.Metrics.ConnectionOpened()
	s.log.Infow("client connected", "username", username, "conn", conn.ID())

	s.readLoop(conn, ws)
	s.teardown(conn)
}

func (s *Server) readLoop(conn *Conn, ws *websocket.Conn) {
	rl := s.cfg.RateLimiting
	var limiter *rate.Limiter
	if rl.Enabled {
		limiter = rate.NewLimiter(rate.Limit(rl.MessagesPerSecond), rl.Burst)
	}
	if rl.MaxMessageSizeBytes > 0 {
		ws.SetReadLimit(rl.MaxMessageSizeBytes)
	}

	ws.SetReadDeadline(utils.Now().Add(s.cfg.Signal.PongTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(utils.Now().Add(s.cfg.Signal.PongTimeout))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if limiter != nil && !limiter.Allow() {
			s.log.Warnw("message rate exceeded", "username", conn.Username)
			continue
		}
		s.handleMessage(conn, data)

		select {
		case <-conn.Done():
			return
		default:
		}
	}
}

func (s *Server) handleMessage(conn *Conn, data []byte) {
	env, op, err := Decode(data)
	if err != nil {
		s.log.Debugw("malformed frame", "username", conn.Username, "error", err)
		conn.Send(&Envelope{Method: MethodError, Reason: "malformed message"})
		return
	}
	if op == domain.OpUnrecognized {
		s.log.Debugw("unrecognized message ignored", "username", conn.Username, "method", env.Method, "event", env.Event)
		return
	}

	s.deps.Metrics.MessageReceived(op.String())

	if env.Token != conn.Token {
		s.deny(conn, env, op, "token mismatch")
		return
	}
	if _, err := s.deps.Auth.ValidateToken(env.Token); err != nil {
		s.deny(conn, env, op, "invalid token")
		return
	}
	if err := s.deps.Policy.Authorize(conn.Role, conn.Username, op, s.policyTarget(op, env)); err != nil {
		s.deny(conn, env, op, "insufficient privileges")
		return
	}

	attrs := []attribute.KeyValue{
		tracing.UsernameKey.String(conn.Username),
		tracing.EventKey.String(env.Event),
	}
	if env.User != "" {
		attrs = append(attrs, tracing.SourceKey.String(env.User))
	}
	if env.Path != "" {
		attrs = append(attrs, tracing.PathKey.String(env.Path))
	}
	ctx, span := s.deps.Tracer.Start(context.Background(), "signal."+op.String(),
		trace.WithAttributes(attrs...))
	defer span.End()

	if err := s.route(ctx, conn, env, op); err != nil {
		tracing.RecordError(ctx, err)
		s.log.Debugw("operation failed", "username", conn.Username, "event", env.Event, "error", err)
		fail := response(env, ResponseFail)
		fail.Reason = reasonFor(err)
		conn.Send(fail)
	}
}

// policyTarget extracts the identity an operation acts on, for self-only
// policy rules.
func (s *Server) policyTarget(op domain.Operation, env *Envelope) string {
	if env.User != "" {
		return env.User
	}
	return env.Username
}

func (s *Server) deny(conn *Conn, env *Envelope, op domain.Operation, reason string) {
	ctx := context.Background()
	s.audit(ctx, conn.Username,
		fmt.Sprintf("denied %s: %s", op.String(), reason),
		domain.SeveritySecurity, domain.CategoryDenied)

	fail := response(env, ResponseFail)
	fail.Reason = reason
	conn.Send(fail)

	s.deps.Metrics.DenialRecorded()
	s.deps.Metrics.CloseRecorded("unauthorized")
	conn.CloseWithCode(CloseUnauthorized, "unauthorized")
	s.log.Warnw("message denied", "username", conn.Username, "event", env.Event, "reason", reason)
}

func (s *Server) route(ctx context.Context, conn *Conn, env *Envelope, op domain.Operation) error {
	switch op {
	case domain.OpEnroll:
		return s.handleEnroll(ctx, conn, env)
	case domain.OpUpdateUser:
		return s.handleUpdateUser(ctx, conn, env)
	case domain.OpDisableUser:
		return s.handleDisableUser(ctx, conn, env)
	case domain.OpUpdateMapItems:
		return s.handleUpdateMapItems(ctx, conn, env)
	case domain.OpUpdateLocation:
		return s.handleUpdateLocation(ctx, conn, env)

	case domain.OpRequestUserData:
		return s.handleRequestUserData(ctx, conn, env)
	case domain.OpRequestAllUsers:
		return s.handleRequestAllUsers(ctx, conn, env)
	case domain.OpRequestOnlineUsers:
		return s.handleRequestOnlineUsers(ctx, conn, env)
	case domain.OpRequestRecordedVideos:
		return s.handleRequestRecordedVideos(ctx, conn, env)
	case domain.OpRequestTimeline:
		return s.handleRequestTimeline(ctx, conn, env)
	case domain.OpRequestServerLog:
		return s.handleRequestServerLog(ctx, conn, env)
	case domain.OpRequestLiveStreamers:
		return s.handleRequestLiveStreamers(conn, env)
	case domain.OpRequestUserLocations:
		return s.handleRequestUserLocations(ctx, conn, env)
	case domain.OpRequestUserLocation:
		return s.handleRequestUserLocation(ctx, conn, env)
	case domain.OpRequestMapItems:
		return s.handleRequestMapItems(ctx, conn, env)
	case domain.OpRequestStartStreaming:
		return s.handleRequestStartStreaming(conn, env)

	case domain.OpStartStream:
		return s.handleStartStream(ctx, conn, env)
	case domain.OpStopStream:
		return s.handleStopStream(ctx, conn, env)
	case domain.OpStartWatch:
		return s.handleStartWatch(ctx, conn, env)
	case domain.OpStopWatch:
		return s.handleStopWatch(ctx, conn, env)
	case domain.OpPlayVideo:
		return s.handlePlayVideo(ctx, conn, env)
	case domain.OpPauseVideo:
		return s.handlePauseVideo(ctx, conn, env)
	case domain.OpResumeVideo:
		return s.handleResumeVideo(ctx, conn, env)
	case domain.OpSeekVideo:
		return s.handleSeekVideo(ctx, conn, env)
	case domain.OpGetVideoPosition:
		return s.handleGetVideoPosition(ctx, conn, env)
	case domain.OpStopVideo:
		return s.handleStopVideo(ctx, conn, env)
	case domain.OpIceCandidate:
		return s.handleIceCandidate(ctx, conn, env)

	case domain.OpSubscribe:
		s.deps.Hub.Subscribe(subscribableTopics[env.Event], conn)
		return conn.Send(response(env, ResponseSuccess))
	case domain.OpUnsubscribe:
		s.deps.Hub.Unsubscribe(subscribableTopics[env.Event], conn.ID())
		return conn.Send(response(env, ResponseSuccess))
	}
	return nil
}

// enrollment payload carries the plaintext password exactly once, over the
// already-authenticated socket; only the bcrypt hash is stored.
func (s *Server) handleEnroll(ctx context.Context, conn *Conn, env *Envelope) error {
	var user domain.User
	if err := json.Unmarshal(env.Payload, &user); err != nil {
		return fmt.Errorf("decode enroll payload: %w", err)
	}

	if err := validation.ValidateUsername(user.Username); err != nil {
		return err
	}
	if err := validation.ValidatePassword(user.Password); err != nil {
		return err
	}
	if user.ProgramStart != "" {
		if err := validation.ValidateProgramBoundary(user.ProgramStart); err != nil {
			return err
		}
	}
	if user.ProgramEnd != "" {
		if err := validation.ValidateProgramBoundary(user.ProgramEnd); err != nil {
			return err
		}
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if !user.Role.Valid() {
		return fmt.Errorf("unknown role %q", user.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.Password = string(hash)
	user.Status = domain.StatusOffline
	user.EnrolledAt = utils.Now()

	if err := s.deps.Users.Add(ctx, &user); err != nil {
		return err
	}

	s.audit(ctx, conn.Username, fmt.Sprintf("enrolled user %s", user.Username), domain.SeverityInfo, domain.CategoryDirectory)
	s.deps.Hub.NotifyUserModified(&user)
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handleUpdateUser(ctx context.Context, conn *Conn, env *Envelope) error {
	var patch domain.User
	if err := json.Unmarshal(env.Payload, &patch); err != nil {
		return fmt.Errorf("decode update payload: %w", err)
	}

	user, err := s.deps.Users.Get(ctx, patch.Username)
	if err != nil {
		return err
	}

	if patch.Name != "" {
		user.Name = patch.Name
	}
	if patch.PhoneNumber != "" {
		user.PhoneNumber = patch.PhoneNumber
	}
	if patch.Role != "" {
		if !patch.Role.Valid() {
			return fmt.Errorf("unknown role %q", patch.Role)
		}
		user.Role = patch.Role
	}
	if patch.ProgramStart != "" {
		if err := validation.ValidateProgramBoundary(patch.ProgramStart); err != nil {
			return err
		}
		user.ProgramStart = patch.ProgramStart
	}
	if patch.ProgramEnd != "" {
		if err := validation.ValidateProgramBoundary(patch.ProgramEnd); err != nil {
			return err
		}
		user.ProgramEnd = patch.ProgramEnd
	}
	if patch.Password != "" {
		if err := validation.ValidatePassword(patch.Password); err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(patch.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		user.Password = string(hash)
	}

	if err := s.deps.Users.Update(ctx, user); err != nil {
		return err
	}

	s.audit(ctx, conn.Username, fmt.Sprintf("updated user %s", user.Username), domain.SeverityInfo, domain.CategoryDirectory)
	s.deps.Hub.NotifyUserModified(user)
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handleDisableUser(ctx context.Context, conn *Conn, env *Envelope) error {
	target := env.User
	if target == "" {
		return fmt.Errorf("missing target user")
	}

	if err := s.deps.Users.Disable(ctx, target); err != nil {
		return err
	}

	if tc, ok := s.deps.Registry.ByUsername(target); ok {
		s.deps.Metrics.CloseRecorded("disabled")
		tc.CloseWithCode(CloseAccountDisabled, ReasonAccountDisabled)
	}

	s.audit(ctx, conn.Username, fmt.Sprintf("disabled user %s", target), domain.SeverityWarning, domain.CategoryDirectory)
	s.deps.Hub.NotifyUserStatus(target, domain.StatusDisabled)
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handleUpdateMapItems(ctx context.Context, conn *Conn, env *Envelope) error {
	var items []*domain.MapItem
	if err := json.Unmarshal(env.Payload, &items); err != nil {
		return fmt.Errorf("decode map items payload: %w", err)
	}

	if err := s.deps.MapItems.ReplaceAll(ctx, items); err != nil {
		return err
	}

	s.audit(ctx, conn.Username, fmt.Sprintf("replaced map items (%d)", len(items)), domain.SeverityInfo, domain.CategoryDirectory)
	s.deps.Hub.NotifyMapItemsChanged(items)
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handleUpdateLocation(ctx context.Context, conn *Conn, env *Envelope) error {
	var loc domain.Location
	if err := json.Unmarshal(env.Payload, &loc); err != nil {
		return fmt.Errorf("decode location payload: %w", err)
	}
	if err := validation.ValidateCoordinates(loc.Lat, loc.Lng); err != nil {
		return err
	}

	if err := s.deps.Locations.Put(ctx, conn.Username, loc); err != nil {
		return err
	}

	s.deps.Hub.NotifyLocationChanged(conn.Username, loc)
	return nil
}

func (s *Server) handleRequestUserData(ctx context.Context, conn *Conn, env *Envelope) error {
	target := env.User
	if target == "" {
		target = conn.Username
	}

	user, err := s.deps.Users.Get(ctx, target)
	if err != nil {
		return err
	}

	return s.sendPayload(conn, env, sanitize(user))
}

func (s *Server) handleRequestAllUsers(ctx context.Context, conn *Conn, env *Envelope) error {
	users, err := s.deps.Users.ListAll(ctx)
	if err != nil {
		return err
	}
	return s.sendPayload(conn, env, sanitizeAll(users))
}

func (s *Server) handleRequestOnlineUsers(ctx context.Context, conn *Conn, env *Envelope) error {
	users, err := s.deps.Users.ListByStatus(ctx, domain.StatusOnline)
	if err != nil {
		return err
	}
	return s.sendPayload(conn, env, sanitizeAll(users))
}

func (s *Server) handleRequestRecordedVideos(ctx context.Context, conn *Conn, env *Envelope) error {
	day, err := parseOptionalDay(env.Date)
	if err != nil {
		return err
	}

	videos, err := s.deps.Videos.Query(ctx, env.User, day)
	if err != nil {
		return err
	}
	return s.sendPayload(conn, env, videos)
}

func (s *Server) handleRequestTimeline(ctx context.Context, conn *Conn, env *Envelope) error {
	if env.User == "" {
		return fmt.Errorf("missing target user")
	}
	day, err := parseOptionalDay(env.Date)
	if err != nil {
		return err
	}

	entries, err := s.deps.Audit.OnDate(ctx, env.User, day)
	if err != nil {
		return err
	}
	return s.sendPayload(conn, env, entries)
}

func (s *Server) handleRequestServerLog(ctx context.Context, conn *Conn, env *Envelope) error {
	day, err := parseOptionalDay(env.Date)
	if err != nil {
		return err
	}

	entries, err := s.deps.Audit.OnDate(ctx, "", day)
	if err != nil {
		return err
	}
	return s.sendPayload(conn, env, entries)
}

func (s *Server) handleRequestLiveStreamers(conn *Conn, env *Envelope) error {
	owners := s.deps.Coordinator.LiveStreamers()

	streamers := make([]domain.LiveStreamer, 0, len(owners))
	for _, owner := range owners {
		name := owner
		if oc, ok := s.deps.Registry.ByUsername(owner); ok {
			name = oc.Name
		}
		streamers = append(streamers, domain.LiveStreamer{Name: name, Username: owner})
	}
	return s.sendPayload(conn, env, streamers)
}

func (s *Server) handleRequestUserLocations(ctx context.Context, conn *Conn, env *Envelope) error {
	locations, err := s.deps.Locations.All(ctx)
	if err != nil {
		return err
	}
	return s.sendPayload(conn, env, locations)
}

func (s *Server) handleRequestUserLocation(ctx context.Context, conn *Conn, env *Envelope) error {
	if env.User == "" {
		return fmt.Errorf("missing target user")
	}

	loc, ok, err := s.deps.Locations.Get(ctx, env.User)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no known location for %s", env.User)
	}
	return s.sendPayload(conn, env, loc)
}

func (s *Server) handleRequestMapItems(ctx context.Context, conn *Conn, env *Envelope) error {
	items, err := s.deps.MapItems.List(ctx)
	if err != nil {
		return err
	}
	return s.sendPayload(conn, env, items)
}

// handleRequestStartStreaming relays an operator's ask to the target client,
// which answers with its own startVideoStreamRequest.
func (s *Server) handleRequestStartStreaming(conn *Conn, env *Envelope) error {
	target, ok := s.deps.Registry.ByUsername(env.User)
	if !ok {
		return fmt.Errorf("user %s is not connected", env.User)
	}

	if err := target.Send(&Envelope{
		Method: MethodRequest,
		Event:  env.Event,
		From:   conn.Username,
	}); err != nil {
		return fmt.Errorf("forward to %s: %w", env.User, err)
	}
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handleStartStream(ctx context.Context, conn *Conn, env *Envelope) error {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: env.SDPOffer}

	answer, sess, err := s.deps.Coordinator.StartStreaming(ctx, conn.AsUser(), offer)
	if err != nil {
		return err
	}

	s.deps.Metrics.SessionStarted()
	s.audit(ctx, conn.Username, fmt.Sprintf("started recording to %s", sess.StoragePath), domain.SeverityInfo, domain.CategoryMedia)

	out := response(env, ResponseSuccess)
	out.SDPAnswer = answer.SDP
	return conn.Send(out)
}

func (s *Server) handleStopStream(ctx context.Context, conn *Conn, env *Envelope) error {
	if err := s.deps.Coordinator.StopStreaming(ctx, conn.AsUser()); err != nil {
		return err
	}

	s.deps.Metrics.SessionStopped()
	s.audit(ctx, conn.Username, "stopped recording", domain.SeverityInfo, domain.CategoryMedia)
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handleStartWatch(ctx context.Context, conn *Conn, env *Envelope) error {
	if env.User == "" {
		return fmt.Errorf("missing stream source")
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: env.SDPOffer}

	_, answer, err := s.deps.Coordinator.StartWatching(ctx, conn.Username, env.User, offer)
	if err != nil {
		return err
	}

	s.deps.Metrics.WatchLegAttached()
	s.audit(ctx, conn.Username, fmt.Sprintf("watching live stream of %s", env.User), domain.SeverityInfo, domain.CategoryMedia)

	out := response(env, ResponseSuccess)
	out.SDPAnswer = answer.SDP
	out.User = env.User
	return conn.Send(out)
}

func (s *Server) handleStopWatch(ctx context.Context, conn *Conn, env *Envelope) error {
	if err := s.deps.Coordinator.StopWatching(ctx, conn.Username, env.User); err != nil {
		return err
	}

	s.deps.Metrics.WatchLegDetached()
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handlePlayVideo(ctx context.Context, conn *Conn, env *Envelope) error {
	if env.Path == "" {
		return fmt.Errorf("missing video path")
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: env.SDPOffer}

	answer, err := s.deps.Coordinator.StartPlayback(ctx, conn.Username, env.Path, offer)
	if err != nil {
		return err
	}

	s.deps.Metrics.PlaybackStarted()
	s.audit(ctx, conn.Username, fmt.Sprintf("playing back %s", env.Path), domain.SeverityInfo, domain.CategoryMedia)

	out := response(env, ResponseSuccess)
	out.SDPAnswer = answer.SDP
	return conn.Send(out)
}

func (s *Server) handlePauseVideo(ctx context.Context, conn *Conn, env *Envelope) error {
	if err := s.deps.Coordinator.PausePlayback(ctx, conn.Username); err != nil {
		return err
	}
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handleResumeVideo(ctx context.Context, conn *Conn, env *Envelope) error {
	if err := s.deps.Coordinator.ResumePlayback(ctx, conn.Username); err != nil {
		return err
	}
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handleSeekVideo(ctx context.Context, conn *Conn, env *Envelope) error {
	if env.Position == nil {
		return fmt.Errorf("missing seek position")
	}
	if err := s.deps.Coordinator.SeekPlayback(ctx, conn.Username, *env.Position); err != nil {
		return err
	}
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handleGetVideoPosition(ctx context.Context, conn *Conn, env *Envelope) error {
	pos, err := s.deps.Coordinator.PlaybackPosition(ctx, conn.Username)
	if err != nil {
		return err
	}

	out := response(env, ResponseSuccess)
	out.Position = &pos
	return conn.Send(out)
}

func (s *Server) handleStopVideo(ctx context.Context, conn *Conn, env *Envelope) error {
	if err := s.deps.Coordinator.StopPlayback(ctx, conn.Username); err != nil {
		return err
	}
	s.deps.Metrics.PlaybackStopped()
	return conn.Send(response(env, ResponseSuccess))
}

func (s *Server) handleIceCandidate(ctx context.Context, conn *Conn, env *Envelope) error {
	if env.Candidate == nil || env.Candidate.IceFor == "" {
		return fmt.Errorf("missing candidate")
	}

	scope := services.IceScope(env.Candidate.IceFor)
	return s.deps.Coordinator.AddCandidate(ctx, conn.Username, scope, env.User, env.Candidate.ICECandidateInit)
}

// forwardPipelineEvent relays an asynchronous engine notification to the
// client it belongs to. Installed as the coordinator's notifier.
func (s *Server) forwardPipelineEvent(username string, ev services.OutboundEvent) {
	conn, ok := s.deps.Registry.ByUsername(username)
	if !ok {
		return
	}

	var env *Envelope
	switch ev.Kind {
	case ports.EventIceCandidate:
		env = &Envelope{
			Method: MethodMedia,
			Event:  "iceCandidate",
			Candidate: &CandidateInfo{
				IceFor:           string(ev.Scope),
				ICECandidateInit: *ev.Candidate,
			},
		}
	case ports.EventVideoInfo:
		raw, err := json.Marshal(ev.Info)
		if err != nil {
			s.log.Errorw("encode video info", "username", username, "error", err)
			return
		}
		env = &Envelope{Method: MethodMedia, Event: "videoInfo", Payload: raw}
	case ports.EventEndOfStream:
		env = &Envelope{Method: MethodMedia, Event: "playEnd"}
	default:
		return
	}

	if err := conn.Send(env); err != nil {
		s.log.Debugw("dropping pipeline event for gone client", "username", username, "error", err)
	}
}

// teardown releases everything a departed connection owned. Runs once per
// connection, after the read loop has returned; every step is a no-op when
// the resource is already gone.
func (s *Server) teardown(conn *Conn) {
	ctx := context.Background()
	username := conn.Username

	s.deps.Coordinator.ReleaseOwned(ctx, conn.AsUser())
	s.deps.Hub.RemoveAll(conn.ID())
	s.deps.Registry.Remove(conn.ID())

	if err := s.deps.Locations.Remove(ctx, username); err != nil {
		s.log.Warnw("failed to drop location", "username", username, "error", err)
	}

	// A disable already published DISABLED; do not overwrite it with OFFLINE.
	user, err := s.deps.Users.Get(ctx, username)
	if err == nil && user.Status != domain.StatusDisabled {
		if err := s.deps.Users.SetStatus(ctx, username, domain.StatusOffline); err != nil {
			s.log.Warnw("failed to mark user offline", "username", username, "error", err)
		}
		s.deps.Hub.NotifyUserStatus(username, domain.StatusOffline)
	}

	s.audit(ctx, username, "logged out", domain.SeverityInfo, domain.CategorySession)
	s.deps.Metrics.ConnectionClosed()
	conn.Close()
	s.log.Infow("client disconnected", "username", username, "conn", conn.ID())
}

func (s *Server) audit(ctx context.Context, actor, description string, sev domain.AuditSeverity, cat domain.AuditCategory) {
	entry := &domain.AuditEntry{
		Actor:       actor,
		Description: description,
		Severity:    sev,
		Category:    cat,
		At:          utils.Now(),
	}
	if err := s.deps.Audit.Append(ctx, entry); err != nil {
		s.log.Warnw("failed to append audit entry", "actor", actor, "error", err)
	}
}

func (s *Server) sendPayload(conn *Conn, env *Envelope, payload interface{}) error {
	out, err := payloadResponse(env, payload)
	if err != nil {
		return err
	}
	return conn.Send(out)
}

// sanitize strips the password hash before a user record leaves the server.
func sanitize(user *domain.User) *domain.User {
	clean := *user
	clean.Password = ""
	return &clean
}

func sanitizeAll(users []*domain.User) []*domain.User {
	out := make([]*domain.User, 0, len(users))
	for _, u := range users {
		out = append(out, sanitize(u))
	}
	return out
}

func parseOptionalDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return utils.ParseDay(s)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return "user not found"
	case errors.Is(err, domain.ErrDuplicateUser):
		return "user already exists"
	case errors.Is(err, domain.ErrAlreadyStreaming):
		return "already streaming"
	case errors.Is(err, domain.ErrNotStreaming):
		return "not streaming"
	case errors.Is(err, domain.ErrNoActiveStream):
		return "no active stream"
	case errors.Is(err, domain.ErrPlaybackNotFound):
		return "no playback session"
	default:
		return err.Error()
	}
}
