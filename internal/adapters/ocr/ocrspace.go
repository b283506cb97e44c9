// Package ocr holds the text-extraction providers.
package ocr

import (
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const ProviderOCRSpace = "ocrspace"

// OCRSpaceConfig configures the OCR.space client.
type OCRSpaceConfig struct {
	APIURL   string
	APIKey   string
	Language string
	Engine   int
	Timeout  time.Duration
}

type ocrSpaceClient struct {
	client *http.Client
	cfg    OCRSpaceConfig
	log    zerolog.Logger
}

var _ ports.OCRProvider = (*ocrSpaceClient)(nil)

// NewOCRSpace creates the OCR.space provider.
func NewOCRSpace(cfg OCRSpaceConfig, baseLogger *zerolog.Logger) ports.OCRProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Language == "" {
		cfg.Language = "rus"
	}
	if cfg.Engine == 0 {
		cfg.Engine = 2
	}
	return &ocrSpaceClient{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		log:    baseLogger.With().Str("component", "ocr_space").Logger(),
	}
}

func (c *ocrSpaceClient) Name() string { return ProviderOCRSpace }

type ocrSpaceResponse struct {
	ParsedResults []struct {
		ParsedText        string `json:"ParsedText"`
		FileParseExitCode int    `json:"FileParseExitCode"`
		ErrorMessage      string `json:"ErrorMessage"`
	} `json:"ParsedResults"`
	OCRExitCode           int             `json:"OCRExitCode"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"` // string or []string
}

// ExtractText uploads the document as multipart form data.
func (c *ocrSpaceClient) ExtractText(ctx context.Context, doc *ports.Document) (string, error) {
	// 1. Build the form
	body, contentType, err := c.buildForm(doc)
	if err != nil {
		return "", domain.NewStageError(domain.StageOCR, domain.CodeOCRFailed, "build request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, body)
	if err != nil {
		return "", domain.NewStageError(domain.StageOCR, domain.CodeOCRFailed, "bad api url")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("apikey", c.cfg.APIKey)

	// 2. Call the provider
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || os.IsTimeout(err) {
			return "", domain.NewStageError(domain.StageOCR, domain.CodeOCRTimeout, "")
		}
		return "", domain.NewStageError(domain.StageOCR, domain.CodeOCRFailed, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		c.log.Warn().Int("status", resp.StatusCode).Msg("OCR provider returned non-2xx")
		return "", domain.OCRHTTPError(resp.StatusCode)
	}

	// 3. Decode
	var parsed ocrSpaceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&parsed); err != nil {
		return "", domain.NewStageError(domain.StageOCR, domain.CodeOCRFailed, "invalid response")
	}
	if parsed.IsErroredOnProcessing {
		return "", domain.NewStageError(domain.StageOCR, domain.CodeOCRFailed, providerMessage(parsed))
	}

	parts := make([]string, 0, len(parsed.ParsedResults))
	for _, r := range parsed.ParsedResults {
		if t := strings.TrimSpace(r.ParsedText); t != "" {
			parts = append(parts, t)
		}
	}
	text := strings.Join(parts, "\n")

	c.log.Debug().
		Dur("took", time.Since(start)).
		Int("pages", len(parsed.ParsedResults)).
		Int("chars", len([]rune(text))).
		Msg("OCR completed")
	return text, nil
}

func (c *ocrSpaceClient) buildForm(doc *ports.Document) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"language":          c.cfg.Language,
		"OCREngine":         strconv.Itoa(c.cfg.Engine),
		"isOverlayRequired": "false",
		"detectOrientation": "true",
		"scale":             "true",
	}
	if ft := fileType(doc.ContentType); ft != "" {
		fields["filetype"] = ft
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	part, err := w.CreateFormFile("file", "document"+extension(doc.ContentType))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(doc.Bytes); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func providerMessage(r ocrSpaceResponse) string {
	var list []string
	if err := json.Unmarshal(r.ErrorMessage, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	var single string
	if err := json.Unmarshal(r.ErrorMessage, &single); err == nil && single != "" {
		return single
	}
	for _, pr := range r.ParsedResults {
		if pr.ErrorMessage != "" {
			return pr.ErrorMessage
		}
	}
	return fmt.Sprintf("exit code %d", r.OCRExitCode)
}

func fileType(contentType string) string {
	switch {
	case strings.Contains(contentType, "pdf"):
		return "PDF"
	case strings.Contains(contentType, "png"):
		return "PNG"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return "JPG"
	default:
		return ""
	}
}

func extension(contentType string) string {
	if ft := fileType(contentType); ft != "" {
		return "." + strings.ToLower(ft)
	}
	return ".jpg"
}

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("unknown OCR provider")
