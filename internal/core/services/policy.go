package services

import (
	"fmt"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

// rule decides who may perform one operation. ADMIN passes every rule.
type rule struct {
	minRole  domain.Role
	selfOnly bool // non-admins may only target themselves
}

// policyTable is the complete authorization policy. Operations absent from
// the table are admin-only.
var policyTable = map[domain.Operation]rule{
	// every authenticated identity acts on its own resources
	domain.OpUpdateLocation:  {minRole: domain.RoleUser},
	domain.OpStartStream:     {minRole: domain.RoleUser},
	domain.OpStopStream:      {minRole: domain.RoleUser},
	domain.OpIceCandidate:    {minRole: domain.RoleUser},
	domain.OpSubscribe:       {minRole: domain.RoleUser},
	domain.OpUnsubscribe:     {minRole: domain.RoleUser},
	domain.OpRequestUserData: {minRole: domain.RoleUser, selfOnly: true},

	// privileged roles supervise live streams of lesser roles
	domain.OpStartWatch: {minRole: domain.RolePrivilegedII},
	domain.OpStopWatch:  {minRole: domain.RolePrivilegedII},

	// playback of stored recordings stays admin-only, like OpPlayVideo:
	// the player controls are absent here on purpose so the whole playback
	// surface falls under the admin-only default.
}

// Policy decides, given an identity and a requested operation, allow or deny.
type Policy struct{}

func NewPolicy() *Policy { return &Policy{} }

// Authorize returns nil when actor (with role) may perform op against target.
// Target is the username the operation acts on; empty means the actor's own
// data. Any denial is domain.ErrUnauthorized.
func (p *Policy) Authorize(role domain.Role, actor string, op domain.Operation, target string) error {
	if op == domain.OpUnrecognized {
		return fmt.Errorf("%w: unrecognized operation", domain.ErrUnauthorized)
	}
	if role == domain.RoleAdmin {
		return nil
	}

	r, ok := policyTable[op]
	if !ok {
		return fmt.Errorf("%w: %s requires ADMIN", domain.ErrUnauthorized, op)
	}
	if !role.AtLeast(r.minRole) {
		return fmt.Errorf("%w: %s requires at least %s", domain.ErrUnauthorized, op, r.minRole)
	}
	if r.selfOnly && target != "" && target != actor {
		return fmt.Errorf("%w: %s limited to own data", domain.ErrUnauthorized, op)
	}
	return nil
}
