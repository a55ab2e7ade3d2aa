package domain

import "time"

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RolePrivilegedI  Role = "PRIVILEGED_I"
	RolePrivilegedII Role = "PRIVILEGED_II"
	RoleUser         Role = "USER"
)

// roleRank orders roles for privilege comparison, ADMIN highest.
var roleRank = map[Role]int{
	RoleUser:         1,
	RolePrivilegedII: 2,
	RolePrivilegedI:  3,
	RoleAdmin:        4,
}

// AtLeast reports whether r carries at least the privileges of other.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

type Status string

const (
	StatusOnline   Status = "ONLINE"
	StatusOffline  Status = "OFFLINE"
	StatusDisabled Status = "DISABLED"
)

// User is an application-level account, independent of any single connection.
// Accounts are never hard-deleted; a removed account moves to StatusDisabled.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Password     string    `json:"password,omitempty"` // bcrypt hash at rest
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	ProgramStart string    `json:"programStart,omitempty"` // shift boundaries, HH:MM
	ProgramEnd   string    `json:"programEnd,omitempty"`
	EnrolledAt   time.Time `json:"enrolledAt"`
}

// Location is a user's last reported position.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LiveStreamer is the directory entry published to liveStreamers subscribers.
type LiveStreamer struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}
