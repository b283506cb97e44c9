package httpapi

import (
	"StudentVerify/internal/core/ports"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// httpNudger calls a worker's POST /process-ocr.
type httpNudger struct {
	url    string
	secret string
	client *http.Client
	log    zerolog.Logger
}

var _ ports.Nudger = (*httpNudger)(nil)

// NewHTTPNudger targets workerURL (without the path).
func NewHTTPNudger(workerURL, secret string, timeout time.Duration, baseLogger *zerolog.Logger) ports.Nudger {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpNudger{
		url:    workerURL + "/process-ocr",
		secret: secret,
		client: &http.Client{Timeout: timeout},
		log:    baseLogger.With().Str("component", "http_nudger").Logger(),
	}
}

func (n *httpNudger) Nudge(ctx context.Context, requestID uuid.UUID) error {
	body, err := json.Marshal(processRequest{RequestID: requestID.String()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.secret)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("nudge worker: %w", err)
	}
	defer resp.Body.Close()

	var out processResponse
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("nudge worker: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&out); err != nil {
		return fmt.Errorf("nudge worker: decode: %w", err)
	}
	n.log.Debug().Str("request_id", requestID.String()).Int("claimed", out.Claimed).Msg("Worker nudged")
	return nil
}
