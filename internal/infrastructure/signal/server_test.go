package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
	"github.com/cristivoicu/appserver/internal/core/services"
	"github.com/cristivoicu/appserver/internal/infrastructure/monitoring"
	"github.com/cristivoicu/appserver/internal/infrastructure/repositories/memory"
	"github.com/cristivoicu/appserver/pkg/config"
	"github.com/cristivoicu/appserver/pkg/logger"
	"github.com/cristivoicu/appserver/pkg/tracing"
)

// one collector per test binary; prometheus registration is global
var testMetrics = monitoring.NewPrometheusCollector()

// enginePipeline is the minimal scripted engine the dispatcher tests need.
type enginePipeline struct {
	seq    int
	events chan ports.PipelineEvent
}

func newEnginePipeline() *enginePipeline {
	return &enginePipeline{events: make(chan ports.PipelineEvent, 4)}
}

func (e *enginePipeline) CreateRecordingEndpoint(ctx context.Context, owner string) (domain.EndpointHandle, string, error) {
	e.seq++
	return domain.EndpointHandle(fmt.Sprintf("ep-%d", e.seq)), fmt.Sprintf("/recordings/%s/%d.webm", owner, e.seq), nil
}

func (e *enginePipeline) Negotiate(ctx context.Context, ep domain.EndpointHandle, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (e *enginePipeline) AttachWatcher(ctx context.Context, ep domain.EndpointHandle, offer webrtc.SessionDescription) (domain.WatcherHandle, webrtc.SessionDescription, error) {
	e.seq++
	return domain.WatcherHandle(fmt.Sprintf("w-%d", e.seq)), webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (e *enginePipeline) DetachWatcher(ctx context.Context, w domain.WatcherHandle) error { return nil }

func (e *enginePipeline) ReleaseEndpoint(ctx context.Context, ep domain.EndpointHandle) error {
	return nil
}

func (e *enginePipeline) CreatePlayback(ctx context.Context, path string, offer webrtc.SessionDescription) (domain.PlayerHandle, webrtc.SessionDescription, error) {
	e.seq++
	return domain.PlayerHandle(fmt.Sprintf("p-%d", e.seq)), webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (e *enginePipeline) Play(ctx context.Context, p domain.PlayerHandle) error  { return nil }
func (e *enginePipeline) Pause(ctx context.Context, p domain.PlayerHandle) error { return nil }

func (e *enginePipeline) Seek(ctx context.Context, p domain.PlayerHandle, position int64) error {
	return nil
}

func (e *enginePipeline) Position(ctx context.Context, p domain.PlayerHandle) (int64, error) {
	return 0, nil
}

func (e *enginePipeline) ReleasePlayback(ctx context.Context, p domain.PlayerHandle) error {
	return nil
}

func (e *enginePipeline) AddCandidate(ctx context.Context, target string, cand webrtc.ICECandidateInit) error {
	return nil
}

func (e *enginePipeline) Events() <-chan ports.PipelineEvent { return e.events }

type testHarness struct {
	server *Server
	users  ports.UserRepository
	videos ports.VideoRepository
	audit  *memory.MemoryAuditRepository
	hub    *Hub
	auth   services.AuthService
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	cfg := config.Default()
	log := logger.Nop()

	users := memory.NewMemoryUserRepository()
	videos := memory.NewMemoryVideoRepository()
	audit := memory.NewMemoryAuditRepository().(*memory.MemoryAuditRepository)
	hub := NewHub(log)
	coordinator := services.NewCoordinator(newEnginePipeline(), videos, hub, log)
	auth := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.DefaultProgramEnd)

	server := NewServer(cfg, Deps{
		Registry:    NewRegistry(),
		Hub:         hub,
		Coordinator: coordinator,
		Policy:      services.NewPolicy(),
		Auth:        auth,
		Users:       users,
		Videos:      videos,
		Audit:       audit,
		MapItems:    memory.NewMemoryMapItemRepository(),
		Locations:   memory.NewMemoryLocationStore(),
		Metrics:     testMetrics,
		Tracer:      tracing.Tracer(),
	}, log)

	return &testHarness{server: server, users: users, videos: videos, audit: audit, hub: hub, auth: auth}
}

// connect seeds the account, registers a connection and issues it a token,
// mirroring what the handshake does after a successful upgrade.
func (h *testHarness) connect(t *testing.T, username string, role domain.Role) *Conn {
	t.Helper()
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	account := &domain.User{Username: username, Password: string(hash), Name: username, Role: role, Status: domain.StatusOffline}
	if addErr := h.users.Add(ctx, account); addErr != nil {
		account, err = h.users.Get(ctx, username)
		require.NoError(t, err)
	}

	conn := NewConn(nil, account, 30*time.Second, 10*time.Second, 16)
	token, err := h.auth.IssueToken(account)
	require.NoError(t, err)
	conn.Token = token

	require.NoError(t, h.server.deps.Registry.Register(conn))
	require.NoError(t, h.users.SetStatus(ctx, username, domain.StatusOnline))
	return conn
}

// frame renders a message carrying the connection's token.
func frame(t *testing.T, conn *Conn, fields map[string]interface{}) []byte {
	t.Helper()
	fields["token"] = conn.Token
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return data
}

// nextFrame pops one queued outbound envelope, or nil when none is pending.
func nextFrame(t *testing.T, conn *Conn) *Envelope {
	t.Helper()
	select {
	case data := <-conn.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return &env
	default:
		return nil
	}
}

func isClosed(conn *Conn) bool {
	select {
	case <-conn.Done():
		return true
	default:
		return false
	}
}

func TestDenyNonAdminAdminOperation(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "alice", domain.RoleUser)

	h.server.handleMessage(alice, frame(t, alice, map[string]interface{}{
		"method": "update", "event": "disableUser", "user": "bob",
	}))

	// exactly one fail response
	env := nextFrame(t, alice)
	require.NotNil(t, env)
	assert.Equal(t, ResponseFail, env.Response)
	assert.Nil(t, nextFrame(t, alice))

	// closed with the denial code
	assert.True(t, isClosed(alice))
	assert.Equal(t, CloseUnauthorized, alice.closeCode)

	// exactly one security audit entry
	entries, err := h.audit.OnDate(context.Background(), "alice", time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SeveritySecurity, entries[0].Severity)
	assert.Equal(t, domain.CategoryDenied, entries[0].Category)
}

func TestDenyTokenMismatch(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "alice", domain.RoleAdmin)

	data, err := json.Marshal(map[string]interface{}{
		"method": "request", "event": "requestAllUsers", "token": "stolen",
	})
	require.NoError(t, err)
	h.server.handleMessage(alice, data)

	env := nextFrame(t, alice)
	require.NotNil(t, env)
	assert.Equal(t, ResponseFail, env.Response)
	assert.True(t, isClosed(alice))
	assert.Equal(t, CloseUnauthorized, alice.closeCode)
}

func TestUnrecognizedIgnored(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "alice", domain.RoleUser)

	h.server.handleMessage(alice, frame(t, alice, map[string]interface{}{
		"method": "update", "event": "selfDestruct",
	}))

	assert.Nil(t, nextFrame(t, alice))
	assert.False(t, isClosed(alice))
}

func TestEnrollStoresHashedPassword(t *testing.T) {
	h := newTestHarness(t)
	admin := h.connect(t, "boss", domain.RoleAdmin)

	payload, _ := json.Marshal(map[string]string{
		"username": "newbie", "password": "secret99", "name": "New Person", "role": "USER",
	})
	h.server.handleMessage(admin, frame(t, admin, map[string]interface{}{
		"method": "update", "event": "enroll", "payload": json.RawMessage(payload),
	}))

	env := nextFrame(t, admin)
	require.NotNil(t, env)
	assert.Equal(t, ResponseSuccess, env.Response)

	stored, err := h.users.Get(context.Background(), "newbie")
	require.NoError(t, err)
	assert.NotEqual(t, "secret99", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret99")))
	assert.Equal(t, domain.RoleUser, stored.Role)
}

func TestDisableUserClosesTargetAndPublishes(t *testing.T) {
	h := newTestHarness(t)
	admin := h.connect(t, "boss", domain.RoleAdmin)
	alice := h.connect(t, "alice", domain.RoleUser)

	watcher := &stubSubscriber{id: "watcher"}
	h.hub.Subscribe(TopicUserStatus, watcher)

	h.server.handleMessage(admin, frame(t, admin, map[string]interface{}{
		"method": "update", "event": "disableUser", "user": "alice",
	}))

	env := nextFrame(t, admin)
	require.NotNil(t, env)
	assert.Equal(t, ResponseSuccess, env.Response)

	// target closed with the administrative disable code
	assert.True(t, isClosed(alice))
	assert.Equal(t, CloseAccountDisabled, alice.closeCode)
	assert.Equal(t, ReasonAccountDisabled, alice.closeReason)

	// storage reflects the disable
	stored, err := h.users.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisabled, stored.Status)

	// subscribers see the transition
	watcher.mu.Lock()
	defer watcher.mu.Unlock()
	require.Len(t, watcher.got, 1)
	assert.Equal(t, "alice", watcher.got[0].Username)
	assert.Equal(t, string(domain.StatusDisabled), watcher.got[0].Status)
}

func TestStartStreamDuplicateKeepsSingleRecording(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "alice", domain.RoleUser)

	start := func() *Envelope {
		h.server.handleMessage(alice, frame(t, alice, map[string]interface{}{
			"method": "media", "event": "startVideoStreamRequest", "sdpOffer": "v=0",
		}))
		return nextFrame(t, alice)
	}

	first := start()
	require.NotNil(t, first)
	assert.Equal(t, ResponseSuccess, first.Response)
	assert.NotEmpty(t, first.SDPAnswer)

	second := start()
	require.NotNil(t, second)
	assert.Equal(t, ResponseFail, second.Response)
	assert.Equal(t, "already streaming", second.Reason)

	// a denied duplicate never minted a second storage path
	videos, err := h.videos.Query(context.Background(), "alice", time.Time{})
	require.NoError(t, err)
	assert.Len(t, videos, 1)

	// and the connection stays up; a duplicate is an error, not an attack
	assert.False(t, isClosed(alice))
}

func TestRequestUserDataSanitized(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "alice", domain.RoleUser)

	h.server.handleMessage(alice, frame(t, alice, map[string]interface{}{
		"method": "request", "event": "requestUserData", "user": "alice",
	}))

	env := nextFrame(t, alice)
	require.NotNil(t, env)
	require.NotEmpty(t, env.Payload)

	var got domain.User
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "alice", got.Username)
	assert.Empty(t, got.Password)
}

func TestTeardownReleasesEverything(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "alice", domain.RoleUser)

	h.server.handleMessage(alice, frame(t, alice, map[string]interface{}{
		"method": "media", "event": "startVideoStreamRequest", "sdpOffer": "v=0",
	}))
	require.NotNil(t, nextFrame(t, alice))

	watcher := &stubSubscriber{id: "watcher"}
	h.hub.Subscribe(TopicUserStatus, watcher)

	h.server.teardown(alice)

	// presence went offline exactly once
	watcher.mu.Lock()
	statusFrames := len(watcher.got)
	watcher.mu.Unlock()
	assert.Equal(t, 1, statusFrames)

	stored, err := h.users.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffline, stored.Status)

	// session is gone and the identity can reconnect
	assert.Empty(t, h.server.deps.Coordinator.LiveStreamers())
	_, ok := h.server.deps.Registry.ByUsername("alice")
	assert.False(t, ok)
}
