package documents

import (
	"StudentVerify/internal/core/ports"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	supa "github.com/supabase-community/supabase-go"
)

// supabaseSigner issues short-lived signed URLs for private objects.
type supabaseSigner struct {
	baseURL string
	bucket  string
	sign    func(bucket, path string, expiresIn int) (string, error)
	log     zerolog.Logger
}

var _ ports.URLSigner = (*supabaseSigner)(nil)

// NewSupabaseSigner creates a signer backed by Supabase Storage using the service key.
func NewSupabaseSigner(supabaseURL, serviceKey, bucket string, baseLogger *zerolog.Logger) (ports.URLSigner, error) {
	client, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("init supabase client: %w", err)
	}

	log := baseLogger.With().Str("component", "supabase_signer").Str("bucket", bucket).Logger()
	log.Info().Msg("Supabase storage signer initialized")

	return &supabaseSigner{
		baseURL: strings.TrimRight(supabaseURL, "/"),
		bucket:  bucket,
		sign: func(bucket, path string, expiresIn int) (string, error) {
			resp, err := client.Storage.CreateSignedUrl(bucket, path, expiresIn)
			if err != nil {
				return "", err
			}
			return resp.SignedURL, nil
		},
		log: log,
	}, nil
}

type signResult struct {
	url string
	err error
}

// SignedURL never logs the returned URL; it carries a bearer token.
// The storage client takes no context, so the call runs aside and is
// abandoned when ctx ends.
func (s *supabaseSigner) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	done := make(chan signResult, 1)
	go func() {
		url, err := s.sign(s.bucket, path, seconds)
		done <- signResult{url: url, err: err}
	}()

	var res signResult
	select {
	case res = <-done:
	case <-ctx.Done():
		s.log.Warn().Err(ctx.Err()).Str("path", path).Msg("Signed URL request abandoned")
		return "", ctx.Err()
	}

	if res.err != nil {
		s.log.Warn().Err(res.err).Str("path", path).Msg("Failed to create signed URL")
		return "", res.err
	}
	if res.url == "" {
		return "", fmt.Errorf("empty signed url for %s", path)
	}
	return s.absolute(res.url), nil
}

// absolute turns a storage-relative signed path into a full URL.
func (s *supabaseSigner) absolute(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	if strings.HasPrefix(url, "/storage/v1/") {
		return s.baseURL + url
	}
	return s.baseURL + "/storage/v1" + url
}
