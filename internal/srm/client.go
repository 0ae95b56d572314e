package srm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"srmchat/internal/config"
	"srmchat/internal/models"
)

const (
	defaultChatTimeout   = 90 * time.Second
	defaultOCRTimeout    = 60 * time.Second
	defaultHealthTimeout = 10 * time.Second
)

// ErrExtractionFailed marks an extraction response with success == false.
var ErrExtractionFailed = errors.New("extraction failed")

// Client handles communication with the remote SRM services: the
// conversational endpoint and the OCR extraction endpoints.
type Client struct {
	baseURL      string
	chatClient   *http.Client // chat replies can be slow
	ocrClient    *http.Client
	healthClient *http.Client
}

// NewClient creates a client from the SRM config block.
func NewClient(cfg config.SRMConfig) *Client {
	chatTimeout := secondsOr(cfg.ChatTimeoutSeconds, defaultChatTimeout)
	ocrTimeout := secondsOr(cfg.OCRTimeoutSeconds, defaultOCRTimeout)
	healthTimeout := secondsOr(cfg.HealthTimeoutSeconds, defaultHealthTimeout)
	return &Client{
		baseURL:      cfg.BaseURL,
		chatClient:   &http.Client{Timeout: chatTimeout},
		ocrClient:    &http.Client{Timeout: ocrTimeout},
		healthClient: &http.Client{Timeout: healthTimeout},
	}
}

func secondsOr(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// Chat sends the enriched message plus history to the conversational
// endpoint.
func (c *Client) Chat(ctx context.Context, chatReq models.ChatRequest) (*models.ChatResponse, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.chatClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chat failed with status %d", resp.StatusCode)
	}
	var chatResp models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &chatResp, nil
}

// ExtractBill runs full structured extraction on one attachment.
func (c *Client) ExtractBill(ctx context.Context, filename string, data []byte) (*models.BillInfo, error) {
	result, err := c.postFile(ctx, "/ocr/extract-bill", filename, data)
	if err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, fmt.Errorf("%w: empty data", ErrExtractionFailed)
	}
	return result.Data, nil
}

// ExtractCIL runs the single-field CIL extraction.
func (c *Client) ExtractCIL(ctx context.Context, filename string, data []byte) (string, error) {
	result, err := c.postFile(ctx, "/ocr/extract-cil", filename, data)
	if err != nil {
		return "", err
	}
	if result.Data == nil || result.Data.CIL == "" {
		return "", fmt.Errorf("%w: no cil in response", ErrExtractionFailed)
	}
	return result.Data.CIL, nil
}

func (c *Client) postFile(ctx context.Context, path, filename string, data []byte) (*models.OCRResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.ocrClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("extraction failed with status %d", resp.StatusCode)
	}
	var result models.OCRResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	if !result.Success {
		if result.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrExtractionFailed, result.Error)
		}
		return nil, ErrExtractionFailed
	}
	return &result, nil
}

// Health probes the remote service health endpoint.
func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.healthClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health failed with status %d", resp.StatusCode)
	}
	var health models.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &health, nil
}
