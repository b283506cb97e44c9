package ocr

import (
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
)

const ProviderGCPVision = "gcp_vision"

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// annotateFilesFunc handles PDFs, which BatchAnnotateImages rejects.
type annotateFilesFunc func(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest) (*visionpb.BatchAnnotateFilesResponse, error)

type visionProvider struct {
	annotate      annotateFunc
	annotateFiles annotateFilesFunc
	closer        func() error
	timeout  time.Duration
	language string
	log      zerolog.Logger
}

var _ ports.OCRProvider = (*visionProvider)(nil)

// NewGCPVision creates the Cloud Vision provider. credentials is a file path,
// inline JSON, or empty for application default credentials.
func NewGCPVision(ctx context.Context, credentials, language string, timeout time.Duration, baseLogger *zerolog.Logger) (ports.OCRProvider, func() error, error) {
	var opts []option.ClientOption
	if creds := strings.TrimSpace(credentials); creds != "" {
		if strings.HasPrefix(creds, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			opts = append(opts, option.WithCredentialsFile(creds))
		}
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("vision client: %w", err)
	}

	p := newVisionProvider(
		func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return client.BatchAnnotateImages(ctx, req)
		},
		func(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest) (*visionpb.BatchAnnotateFilesResponse, error) {
			return client.BatchAnnotateFiles(ctx, req)
		},
		language, timeout, baseLogger,
	)
	p.closer = client.Close
	return p, p.Close, nil
}

func newVisionProvider(annotate annotateFunc, annotateFiles annotateFilesFunc, language string, timeout time.Duration, baseLogger *zerolog.Logger) *visionProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &visionProvider{
		annotate:      annotate,
		annotateFiles: annotateFiles,
		timeout:       timeout,
		language:      visionLanguage(language),
		log:           baseLogger.With().Str("component", "gcp_vision").Logger(),
	}
}

func (p *visionProvider) Name() string { return ProviderGCPVision }

// Close releases the gRPC connection.
func (p *visionProvider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// ExtractText runs DOCUMENT_TEXT_DETECTION on the image bytes. PDFs go
// through the file endpoint, which reads the first five pages.
func (p *visionProvider) ExtractText(ctx context.Context, doc *ports.Document) (string, error) {
	if len(doc.Bytes) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if isPDF(doc) {
		return p.extractPDF(ctx, doc)
	}

	req := &visionpb.AnnotateImageRequest{
		Image:        &visionpb.Image{Content: doc.Bytes},
		Features:     textFeatures(),
		ImageContext: p.imageContext(),
	}

	resp, err := p.annotate(ctx, &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{req}})
	if err != nil {
		return "", p.callError(ctx, err, "BatchAnnotateImages")
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	return pageText(resp.Responses[0])
}

func (p *visionProvider) extractPDF(ctx context.Context, doc *ports.Document) (string, error) {
	if p.annotateFiles == nil {
		return "", domain.NewStageError(domain.StageOCR, domain.CodeOCRFailed, "pdf not supported")
	}

	req := &visionpb.AnnotateFileRequest{
		InputConfig:  &visionpb.InputConfig{Content: doc.Bytes, MimeType: "application/pdf"},
		Features:     textFeatures(),
		ImageContext: p.imageContext(),
	}
	resp, err := p.annotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{Requests: []*visionpb.AnnotateFileRequest{req}})
	if err != nil {
		return "", p.callError(ctx, err, "BatchAnnotateFiles")
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}

	file := resp.Responses[0]
	if err := statusError(file.Error); err != nil {
		return "", err
	}
	var pages []string
	for _, page := range file.Responses {
		if page == nil {
			continue
		}
		text, err := pageText(page)
		if err != nil {
			return "", err
		}
		if text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n"), nil
}

func (p *visionProvider) callError(ctx context.Context, err error, op string) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewStageError(domain.StageOCR, domain.CodeOCRTimeout, "")
	}
	p.log.Warn().Err(err).Str("op", op).Msg("Vision request failed")
	return domain.NewStageError(domain.StageOCR, domain.CodeOCRFailed, "annotate failed")
}

func (p *visionProvider) imageContext() *visionpb.ImageContext {
	if p.language == "" {
		return nil
	}
	return &visionpb.ImageContext{LanguageHints: []string{p.language}}
}

func textFeatures() []*visionpb.Feature {
	return []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}}
}

// pageText never returns text alongside a provider error flag.
func pageText(r *visionpb.AnnotateImageResponse) (string, error) {
	if err := statusError(r.GetError()); err != nil {
		return "", err
	}
	if r.FullTextAnnotation == nil {
		return "", nil
	}
	return strings.TrimSpace(r.FullTextAnnotation.Text), nil
}

// statusError treats any non-OK code or message as a failure.
func statusError(st *status.Status) error {
	if st == nil || (st.GetCode() == 0 && st.GetMessage() == "") {
		return nil
	}
	msg := st.GetMessage()
	if msg == "" {
		msg = codes.Code(st.GetCode()).String()
	}
	return domain.NewStageError(domain.StageOCR, domain.CodeOCRFailed, msg)
}

func isPDF(doc *ports.Document) bool {
	return strings.Contains(strings.ToLower(doc.ContentType), "pdf") || bytes.HasPrefix(doc.Bytes, []byte("%PDF-"))
}

// visionLanguage maps OCR.space three-letter codes to BCP-47 hints.
func visionLanguage(code string) string {
	switch strings.ToLower(code) {
	case "rus":
		return "ru"
	case "eng":
		return "en"
	case "ukr":
		return "uk"
	case "", "auto":
		return ""
	default:
		return code
	}
}
