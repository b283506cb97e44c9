package domain

import "github.com/google/uuid"

// ProfileVerificationStatus mirrors the latest request's outcome onto the profile.
// A nil mirror (cleared) together with IsVerified=true means approved.
type ProfileVerificationStatus string

const (
	ProfilePending  ProfileVerificationStatus = "pending"
	ProfileRejected ProfileVerificationStatus = "rejected"
)

// ProfileMirror is the profile update applied in the same transaction as a decision.
type ProfileMirror struct {
	UserID             uuid.UUID
	IsVerified         bool
	VerificationStatus *ProfileVerificationStatus
}

// MirrorFor derives the profile mirror for a request status.
func MirrorFor(userID uuid.UUID, status RequestStatus) ProfileMirror {
	m := ProfileMirror{UserID: userID}
	switch status {
	case StatusApproved:
		m.IsVerified = true
	case StatusRejected:
		s := ProfileRejected
		m.VerificationStatus = &s
	default:
		s := ProfilePending
		m.VerificationStatus = &s
	}
	return m
}
