package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

func TestDecodeKnownOperations(t *testing.T) {
	tests := []struct {
		frame string
		want  domain.Operation
	}{
		{`{"method":"update","event":"enroll","token":"t"}`, domain.OpEnroll},
		{`{"method":"update","event":"disableUser","user":"alice"}`, domain.OpDisableUser},
		{`{"method":"update","event":"location"}`, domain.OpUpdateLocation},
		{`{"method":"request","event":"requestAllUsers"}`, domain.OpRequestAllUsers},
		{`{"method":"request","event":"requestStartStreaming","user":"bob"}`, domain.OpRequestStartStreaming},
		{`{"method":"media","event":"startVideoStreamRequest","sdpOffer":"v=0"}`, domain.OpStartStream},
		{`{"method":"media","event":"stopLiveVideoWatch","user":"alice"}`, domain.OpStopWatch},
		{`{"method":"media","event":"iceCandidate","candidate":{"iceFor":"iceForRec","candidate":"c"}}`, domain.OpIceCandidate},
		{`{"method":"subscribe","event":"liveStreamers"}`, domain.OpSubscribe},
		{`{"method":"unsubscribe","event":"userStatus"}`, domain.OpUnsubscribe},
	}

	for _, tc := range tests {
		env, op, err := Decode([]byte(tc.frame))
		require.NoError(t, err, tc.frame)
		require.NotNil(t, env)
		assert.Equal(t, tc.want, op, tc.frame)
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	frames := []string{
		`{"method":"update","event":"dropAllTables"}`,
		`{"method":"bogus","event":"enroll"}`,
		`{"method":"subscribe","event":"everything"}`,
		`{"method":"unsubscribe","event":"nothing"}`,
		`{"method":"media","event":""}`,
	}

	for _, frame := range frames {
		_, op, err := Decode([]byte(frame))
		assert.NoError(t, err, frame)
		assert.Equal(t, domain.OpUnrecognized, op, frame)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, frame := range []string{``, `not json`, `{"event":"enroll"}`, `[1,2,3]`} {
		_, op, err := Decode([]byte(frame))
		assert.Error(t, err, frame)
		assert.Equal(t, domain.OpUnrecognized, op, frame)
	}
}

func TestDecodeCandidatePayload(t *testing.T) {
	frame := `{"method":"media","event":"iceCandidate","user":"alice",` +
		`"candidate":{"iceFor":"iceForLive","candidate":"candidate:1","sdpMid":"0"}}`

	env, op, err := Decode([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, domain.OpIceCandidate, op)
	require.NotNil(t, env.Candidate)
	assert.Equal(t, "iceForLive", env.Candidate.IceFor)
	assert.Equal(t, "candidate:1", env.Candidate.Candidate)
	require.NotNil(t, env.Candidate.SDPMid)
	assert.Equal(t, "0", *env.Candidate.SDPMid)
	assert.Equal(t, "alice", env.User)
}

func TestResponseEchoesMethodAndEvent(t *testing.T) {
	env := &Envelope{Method: MethodMedia, Event: "startVideoStreamRequest"}

	out := response(env, ResponseFail)
	assert.Equal(t, MethodMedia, out.Method)
	assert.Equal(t, "startVideoStreamRequest", out.Event)
	assert.Equal(t, ResponseFail, out.Response)

	payload, err := payloadResponse(env, map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, string(payload.Payload))
}
