package documents

import (
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// FetcherConfig bounds a single download. Timeout applies to signing and
// to the download separately.
type FetcherConfig struct {
	Timeout      time.Duration
	MaxBytes     int64
	SignedURLTTL time.Duration
}

// signedFetcher resolves a storage path to a signed URL and downloads it.
type signedFetcher struct {
	signer ports.URLSigner
	client *http.Client
	cfg    FetcherConfig
	log    zerolog.Logger
}

var _ ports.DocumentFetcher = (*signedFetcher)(nil)

// NewSignedFetcher creates the document fetcher. Zero config values use defaults.
func NewSignedFetcher(signer ports.URLSigner, cfg FetcherConfig, baseLogger *zerolog.Logger) ports.DocumentFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 12 << 20
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 180 * time.Second
	}
	return &signedFetcher{
		signer: signer,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		log:    baseLogger.With().Str("component", "document_fetcher").Logger(),
	}
}

// Fetch signs and downloads the document. Failures are StageErrors
// (sign_failed / download_failed) so the processor can retry them.
func (f *signedFetcher) Fetch(ctx context.Context, path string) (*ports.Document, error) {
	// 1. Sign
	sctx, cancelSign := context.WithTimeout(ctx, f.cfg.Timeout)
	url, err := f.signer.SignedURL(sctx, path, f.cfg.SignedURLTTL)
	timedOut := sctx.Err() != nil
	cancelSign()
	if err != nil {
		msg := err.Error()
		if timedOut {
			msg = "timeout"
		}
		return nil, domain.NewStageError(domain.StageSign, domain.CodeSignFailed, msg)
	}

	// 2. Download
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewStageError(domain.StageDownload, domain.CodeDownloadFailed, "bad signed url")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		// The error text embeds the signed URL; keep it out of last_error.
		msg := "request failed"
		if ctx.Err() != nil || os.IsTimeout(err) {
			msg = "timeout"
		}
		return nil, domain.NewStageError(domain.StageDownload, domain.CodeDownloadFailed, msg)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, domain.NewStageError(domain.StageDownload, domain.CodeDownloadFailed, fmt.Sprintf("status %d", resp.StatusCode))
	}
	if resp.ContentLength > f.cfg.MaxBytes {
		return nil, domain.NewStageError(domain.StageDownload, domain.CodeDownloadFailed, "file too large")
	}

	// 3. Read with a hard cap
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, domain.NewStageError(domain.StageDownload, domain.CodeDownloadFailed, "read body")
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, domain.NewStageError(domain.StageDownload, domain.CodeDownloadFailed, "file too large")
	}
	if len(body) == 0 {
		return nil, domain.NewStageError(domain.StageDownload, domain.CodeDownloadFailed, "empty file")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	f.log.Debug().Str("path", path).Int("bytes", len(body)).Str("content_type", contentType).Msg("Document downloaded")
	return &ports.Document{Bytes: body, ContentType: contentType}, nil
}
