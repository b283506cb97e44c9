package ocr

import (
	"StudentVerify/internal/core/ports"
	"StudentVerify/internal/shared/config"
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// New selects the provider named by OCR_PROVIDER. The returned close func is never nil.
func New(ctx context.Context, cfg config.OCRConfig, baseLogger *zerolog.Logger) (ports.OCRProvider, func() error, error) {
	switch cfg.Provider {
	case ProviderOCRSpace, "":
		p := NewOCRSpace(OCRSpaceConfig{
			APIURL:   cfg.APIURL,
			APIKey:   cfg.APIKey,
			Language: cfg.Language,
			Engine:   cfg.Engine,
			Timeout:  cfg.Timeout,
		}, baseLogger)
		return p, func() error { return nil }, nil
	case ProviderGCPVision:
		return NewGCPVision(ctx, cfg.CredentialsFile, cfg.Language, cfg.Timeout, baseLogger)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
