package signal

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

const (
	MethodUpdate      = "update"
	MethodRequest     = "request"
	MethodMedia       = "media"
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
	MethodToken       = "token"
	MethodError       = "error"
)

const (
	ResponseSuccess = "success"
	ResponseFail    = "fail"
)

// CandidateInfo carries one ICE candidate plus the negotiation it belongs to.
type CandidateInfo struct {
	IceFor string `json:"iceFor,omitempty"`
	webrtc.ICECandidateInit
}

// Envelope is the two-level method/event wire format shared by every text
// frame. Responses echo method and event and add response or payload. The
// extra top-level fields belong to specific events; which ones are honored is
// decided per operation, never by the envelope itself.
type Envelope struct {
	Method   string          `json:"method"`
	Event    string          `json:"event,omitempty"`
	Token    string          `json:"token,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Response string          `json:"response,omitempty"`
	Reason   string          `json:"reason,omitempty"`

	User      string         `json:"user,omitempty"`
	From      string         `json:"from,omitempty"`
	Date      string         `json:"date,omitempty"`
	Path      string         `json:"path,omitempty"`
	SDPOffer  string         `json:"sdpOffer,omitempty"`
	SDPAnswer string         `json:"sdpAnswer,omitempty"`
	Position  *int64         `json:"position,omitempty"`
	Candidate *CandidateInfo `json:"candidate,omitempty"`
	Status    string         `json:"status,omitempty"`
	Username  string         `json:"username,omitempty"`
}

// opTable maps the method/event pair onto the closed operation set.
var opTable = map[string]map[string]domain.Operation{
	MethodUpdate: {
		"enroll":      domain.OpEnroll,
		"updateUser":  domain.OpUpdateUser,
		"disableUser": domain.OpDisableUser,
		"mapItems":    domain.OpUpdateMapItems,
		"location":    domain.OpUpdateLocation,
	},
	MethodRequest: {
		"requestUserData":       domain.OpRequestUserData,
		"requestAllUsers":       domain.OpRequestAllUsers,
		"requestOnlineUsers":    domain.OpRequestOnlineUsers,
		"requestRecordedVideos": domain.OpRequestRecordedVideos,
		"requestTimeline":       domain.OpRequestTimeline,
		"requestServerLog":      domain.OpRequestServerLog,
		"requestLiveStreamers":  domain.OpRequestLiveStreamers,
		"requestUserLocations":  domain.OpRequestUserLocations,
		"requestUserLocation":   domain.OpRequestUserLocation,
		"requestMapItems":       domain.OpRequestMapItems,
		"requestStartStreaming": domain.OpRequestStartStreaming,
	},
	MethodMedia: {
		"startVideoStreamRequest": domain.OpStartStream,
		"stopVideoStreamRequest":  domain.OpStopStream,
		"startLiveVideoWatch":     domain.OpStartWatch,
		"stopLiveVideoWatch":      domain.OpStopWatch,
		"playVideoRequest":        domain.OpPlayVideo,
		"pauseVideoRequest":       domain.OpPauseVideo,
		"resumeVideoRequest":      domain.OpResumeVideo,
		"seekVideoRequest":        domain.OpSeekVideo,
		"getVideoPositionRequest": domain.OpGetVideoPosition,
		"stopVideoRequest":        domain.OpStopVideo,
		"iceCandidate":            domain.OpIceCandidate,
	},
}

// subscribableTopics are the events accepted under subscribe/unsubscribe.
var subscribableTopics = map[string]Topic{
	"userUpdated":   TopicUserUpdated,
	"userStatus":    TopicUserStatus,
	"liveStreamers": TopicLiveStreamers,
	"mapItems":      TopicMapItems,
	"location":      TopicLocation,
}

// Decode parses a text frame and classifies it. A malformed frame returns an
// error; a well-formed frame with an unknown method or event decodes to
// OpUnrecognized so the dispatcher can ignore it (forward compatibility is
// preferred over rejection).
func Decode(data []byte) (*Envelope, domain.Operation, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, domain.OpUnrecognized, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Method == "" {
		return &env, domain.OpUnrecognized, fmt.Errorf("malformed envelope: missing method")
	}

	switch env.Method {
	case MethodSubscribe:
		if _, ok := subscribableTopics[env.Event]; ok {
			return &env, domain.OpSubscribe, nil
		}
		return &env, domain.OpUnrecognized, nil
	case MethodUnsubscribe:
		if _, ok := subscribableTopics[env.Event]; ok {
			return &env, domain.OpUnsubscribe, nil
		}
		return &env, domain.OpUnrecognized, nil
	}

	events, ok := opTable[env.Method]
	if !ok {
		return &env, domain.OpUnrecognized, nil
	}
	op, ok := events[env.Event]
	if !ok {
		return &env, domain.OpUnrecognized, nil
	}
	return &env, op, nil
}

// response builds a success/fail echo for an inbound envelope.
func response(env *Envelope, outcome string) *Envelope {
	return &Envelope{Method: env.Method, Event: env.Event, Response: outcome}
}

// payloadResponse builds an echo carrying a JSON payload.
func payloadResponse(env *Envelope, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return &Envelope{Method: env.Method, Event: env.Event, Payload: raw}, nil
}
