package media

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
	"github.com/cristivoicu/appserver/pkg/retry"
)

const eventBuffer = 64

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("pipeline error %d: %s", e.Code, e.Message)
}

// rpcFrame is any inbound frame: a response carries an id, a server-initiated
// notification carries a method.
type rpcFrame struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Client speaks JSON-RPC to the media pipeline service over a single
// websocket. Calls multiplex over the connection by request id; notifications
// surface on the event channel. Implements ports.MediaPipeline.
type Client struct {
	ws          *websocket.Conn
	callTimeout time.Duration
	log         *zap.SugaredLogger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan *rpcFrame

	events chan ports.PipelineEvent
	done   chan struct{}
}

// Dial connects to the pipeline service, retrying with backoff so a restart
// of the engine does not take the signaling server down with it.
func Dial(ctx context.Context, url string, callTimeout time.Duration, attempts int, log *zap.SugaredLogger) (*Client, error) {
	var ws *websocket.Conn

	cfg := retry.DefaultConfig()
	if attempts > 0 {
		cfg.MaxAttempts = attempts
	}
	err := retry.Retry(ctx, cfg, func() error {
		conn, _, dialErr := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if dialErr != nil {
			return dialErr
		}
		ws = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial media pipeline at %s: %w", url, err)
	}

	c := &Client{
		ws:          ws,
		callTimeout: callTimeout,
		log:         log,
		pending:     make(map[uint64]chan *rpcFrame),
		events:      make(chan ports.PipelineEvent, eventBuffer),
		done:        make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Events() <-chan ports.PipelineEvent {
	return c.events
}

// Close tears the connection down. In-flight calls fail with a closed error.
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	return c.ws.Close()
}

func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan *rpcFrame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s request: %w", method, err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case frame := <-ch:
		if frame.Error != nil {
			return frame.Error
		}
		if result != nil {
			if err := json.Unmarshal(frame.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: pipeline call timed out", method)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("%s: pipeline connection closed", method)
	}
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Errorw("media pipeline connection lost", "error", err)
			}
			c.failPending()
			return
		}

		var frame rpcFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warnw("malformed pipeline frame", "error", err)
			continue
		}

		if frame.ID != nil {
			c.mu.Lock()
			ch, ok := c.pending[*frame.ID]
			c.mu.Unlock()
			if ok {
				ch <- &frame
			}
			continue
		}

		c.dispatchNotification(&frame)
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- &rpcFrame{Error: &rpcError{Code: -1, Message: "connection lost"}}
		delete(c.pending, id)
	}
}

// notificationParams covers every server-initiated notification; the handle
// fields discriminate which resource the event belongs to.
type notificationParams struct {
	EndpointID string                   `json:"endpointId,omitempty"`
	WatcherID  string                   `json:"watcherId,omitempty"`
	PlayerID   string                   `json:"playerId,omitempty"`
	Candidate  *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Info       *ports.VideoInfo         `json:"info,omitempty"`
}

func (c *Client) dispatchNotification(frame *rpcFrame) {
	var params notificationParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		c.log.Warnw("malformed pipeline notification", "method", frame.Method, "error", err)
		return
	}

	ev := ports.PipelineEvent{
		Endpoint: domain.EndpointHandle(params.EndpointID),
		Watcher:  domain.WatcherHandle(params.WatcherID),
		Player:   domain.PlayerHandle(params.PlayerID),
	}

	switch frame.Method {
	case "onIceCandidate":
		if params.Candidate == nil {
			return
		}
		ev.Kind = ports.EventIceCandidate
		ev.Candidate = params.Candidate
	case "endOfStream":
		ev.Kind = ports.EventEndOfStream
	case "videoInfo":
		if params.Info == nil {
			return
		}
		ev.Kind = ports.EventVideoInfo
		ev.Info = params.Info
	default:
		c.log.Debugw("unknown pipeline notification ignored", "method", frame.Method)
		return
	}

	select {
	case c.events <- ev:
	default:
		c.log.Warnw("pipeline event buffer full, dropping event", "kind", ev.Kind)
	}
}

func (c *Client) CreateRecordingEndpoint(ctx context.Context, owner string) (domain.EndpointHandle, string, error) {
	var result struct {
		EndpointID  string `json:"endpointId"`
		StoragePath string `json:"storagePath"`
	}
	params := map[string]string{"owner": owner}
	if err := c.call(ctx, "createRecorder", params, &result); err != nil {
		return "", "", err
	}
	return domain.EndpointHandle(result.EndpointID), result.StoragePath, nil
}

func (c *Client) Negotiate(ctx context.Context, ep domain.EndpointHandle, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	var result struct {
		SDPAnswer string `json:"sdpAnswer"`
	}
	params := map[string]string{"endpointId": string(ep), "sdpOffer": offer.SDP}
	if err := c.call(ctx, "negotiate", params, &result); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: result.SDPAnswer}, nil
}

func (c *Client) AttachWatcher(ctx context.Context, ep domain.EndpointHandle, offer webrtc.SessionDescription) (domain.WatcherHandle, webrtc.SessionDescription, error) {
	var result struct {
		WatcherID string `json:"watcherId"`
		SDPAnswer string `json:"sdpAnswer"`
	}
	params := map[string]string{"endpointId": string(ep), "sdpOffer": offer.SDP}
	if err := c.call(ctx, "attachWatcher", params, &result); err != nil {
		return "", webrtc.SessionDescription{}, err
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: result.SDPAnswer}
	return domain.WatcherHandle(result.WatcherID), answer, nil
}

func (c *Client) DetachWatcher(ctx context.Context, w domain.WatcherHandle) error {
	return c.call(ctx, "detachWatcher", map[string]string{"watcherId": string(w)}, nil)
}

func (c *Client) ReleaseEndpoint(ctx context.Context, ep domain.EndpointHandle) error {
	return c.call(ctx, "releaseEndpoint", map[string]string{"endpointId": string(ep)}, nil)
}

func (c *Client) CreatePlayback(ctx context.Context, path string, offer webrtc.SessionDescription) (domain.PlayerHandle, webrtc.SessionDescription, error) {
	var result struct {
		PlayerID  string `json:"playerId"`
		SDPAnswer string `json:"sdpAnswer"`
	}
	params := map[string]string{"path": path, "sdpOffer": offer.SDP}
	if err := c.call(ctx, "createPlayer", params, &result); err != nil {
		return "", webrtc.SessionDescription{}, err
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: result.SDPAnswer}
	return domain.PlayerHandle(result.PlayerID), answer, nil
}

func (c *Client) Play(ctx context.Context, p domain.PlayerHandle) error {
	return c.call(ctx, "play", map[string]string{"playerId": string(p)}, nil)
}

func (c *Client) Pause(ctx context.Context, p domain.PlayerHandle) error {
	return c.call(ctx, "pause", map[string]string{"playerId": string(p)}, nil)
}

func (c *Client) Seek(ctx context.Context, p domain.PlayerHandle, position int64) error {
	params := map[string]interface{}{"playerId": string(p), "position": position}
	return c.call(ctx, "seek", params, nil)
}

func (c *Client) Position(ctx context.Context, p domain.PlayerHandle) (int64, error) {
	var result struct {
		Position int64 `json:"position"`
	}
	if err := c.call(ctx, "getPosition", map[string]string{"playerId": string(p)}, &result); err != nil {
		return 0, err
	}
	return result.Position, nil
}

func (c *Client) ReleasePlayback(ctx context.Context, p domain.PlayerHandle) error {
	return c.call(ctx, "releasePlayer", map[string]string{"playerId": string(p)}, nil)
}

func (c *Client) AddCandidate(ctx context.Context, target string, cand webrtc.ICECandidateInit) error {
	params := map[string]interface{}{"sessionId": target, "candidate": cand}
	return c.call(ctx, "addIceCandidate", params, nil)
}
