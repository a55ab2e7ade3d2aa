package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

func TestAuthorize(t *testing.T) {
	p := NewPolicy()

	tests := []struct {
		name    string
		role    domain.Role
		op      domain.Operation
		target  string
		allowed bool
	}{
		{"admin passes admin-only op", domain.RoleAdmin, domain.OpDisableUser, "alice", true},
		{"admin passes unlisted op", domain.RoleAdmin, domain.OpRequestServerLog, "", true},
		{"user starts own stream", domain.RoleUser, domain.OpStartStream, "", true},
		{"user stops own stream", domain.RoleUser, domain.OpStopStream, "", true},
		{"user relays candidates", domain.RoleUser, domain.OpIceCandidate, "", true},
		{"user reports location", domain.RoleUser, domain.OpUpdateLocation, "", true},
		{"user reads own data", domain.RoleUser, domain.OpRequestUserData, "alice", true},
		{"user subscribes", domain.RoleUser, domain.OpSubscribe, "", true},
		{"user unsubscribes", domain.RoleUser, domain.OpUnsubscribe, "", true},
		{"user denied another's data", domain.RoleUser, domain.OpRequestUserData, "bob", false},
		{"user denied enroll", domain.RoleUser, domain.OpEnroll, "", false},
		{"user denied disable", domain.RoleUser, domain.OpDisableUser, "bob", false},
		{"user denied watching", domain.RoleUser, domain.OpStartWatch, "bob", false},
		{"user denied server log", domain.RoleUser, domain.OpRequestServerLog, "", false},
		{"user denied playback start", domain.RoleUser, domain.OpPlayVideo, "", false},
		{"user denied playback pause", domain.RoleUser, domain.OpPauseVideo, "", false},
		{"privileged I denied playback seek", domain.RolePrivilegedI, domain.OpSeekVideo, "", false},
		{"admin controls playback", domain.RoleAdmin, domain.OpStopVideo, "", true},
		{"privileged II watches", domain.RolePrivilegedII, domain.OpStartWatch, "alice", true},
		{"privileged II stops watching", domain.RolePrivilegedII, domain.OpStopWatch, "alice", true},
		{"privileged I watches", domain.RolePrivilegedI, domain.OpStartWatch, "alice", true},
		{"privileged II denied enroll", domain.RolePrivilegedII, domain.OpEnroll, "", false},
		{"privileged I denied map edits", domain.RolePrivilegedI, domain.OpUpdateMapItems, "", false},
		{"unrecognized always denied", domain.RoleAdmin, domain.OpUnrecognized, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Authorize(tc.role, "alice", tc.op, tc.target)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrUnauthorized)
			}
		})
	}
}
