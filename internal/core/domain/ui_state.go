package domain

import "time"

// UIState is the small vocabulary the upload screen understands.
type UIState string

const (
	UIIdle       UIState = "idle"
	UIProcessing UIState = "processing"
	UIPending    UIState = "pending"
	UIVerified   UIState = "verified"
	UIError      UIState = "error"
)

const (
	PollProcessing = 3 * time.Second
	PollPending    = 30 * time.Second
)

// UIStateFor maps an internal status to the UI vocabulary.
func UIStateFor(s RequestStatus) UIState {
	switch s {
	case StatusPendingOCR, StatusProcessing:
		return UIProcessing
	case StatusPending:
		return UIPending
	case StatusApproved:
		return UIVerified
	case StatusRejected:
		return UIError
	default:
		return UIIdle
	}
}

// PollIntervalFor returns how long a poller should wait; zero means stop polling.
func PollIntervalFor(s UIState) time.Duration {
	switch s {
	case UIProcessing:
		return PollProcessing
	case UIPending:
		return PollPending
	default:
		return 0
	}
}
