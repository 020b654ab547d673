package gateway

import "strings"

// Status is a member's current standing in a chat as reported by the platform.
type Status string

const (
	StatusMember        Status = "member"
	StatusAdministrator Status = "administrator"
	StatusCreator       Status = "creator"
	StatusRestricted    Status = "restricted"
	StatusLeft          Status = "left"
	StatusKicked        Status = "kicked"
	StatusNotFound      Status = "not_found"
)

// ParseStatus maps a platform status string onto Status.
// Unrecognized values map to StatusNotFound.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusMember:
		return StatusMember
	case StatusAdministrator:
		return StatusAdministrator
	case StatusCreator:
		return StatusCreator
	case StatusRestricted:
		return StatusRestricted
	case StatusLeft:
		return StatusLeft
	case StatusKicked:
		return StatusKicked
	default:
		return StatusNotFound
	}
}

// Present reports whether the status counts as being in the chat
// (member, administrator or creator).
func (s Status) Present() bool {
	switch s {
	case StatusMember, StatusAdministrator, StatusCreator:
		return true
	default:
		return false
	}
}

// Admin reports whether the status carries admin rights.
func (s Status) Admin() bool {
	return s == StatusAdministrator || s == StatusCreator
}
