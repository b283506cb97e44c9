package domain

import "time"

// Processing stages recorded in Signals.Stage.
const (
	StageSign     = "sign"
	StageDownload = "download"
	StageOCR      = "ocr"
	StageClassify = "classify"
	StageFinalize = "finalize"
)

// RejectReasonKeywordNotMatched marks a content rejection by the classifier.
const RejectReasonKeywordNotMatched = "ai_keyword_not_matched"

// Signals is the diagnostic bundle stored alongside every automated decision.
type Signals struct {
	WorkerID        string    `json:"worker_id,omitempty"`
	Attempt         int       `json:"attempt,omitempty"`
	Stage           string    `json:"stage,omitempty"`
	KeywordHits     []string  `json:"keyword_hits"`
	Markers         []string  `json:"markers"`
	HasIDLikeNumber bool      `json:"has_id_like_number"`
	IDLikeCount     int       `json:"id_like_count"`
	TextLength      int       `json:"text_length"`
	OCRProvider     string    `json:"ocr_provider,omitempty"`
	RejectReason    string    `json:"reject_reason,omitempty"`
	Error           string    `json:"error,omitempty"`
	At              time.Time `json:"at"`
}
