// ocr.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// OCRResult is the contract consumed from the external OCR collaborator.
type OCRResult struct {
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"` // 0-100
	Provider         string  `json:"provider"`
	FallbackUsed     bool    `json:"fallbackUsed"`
	ProcessingTimeMs int64   `json:"processingTimeMs"`
}

// CaptureContext describes how the photograph was taken. Low-quality mobile
// captures raise the contextual risk adjustment downstream.
type CaptureContext struct {
	CaptureMethod string `json:"captureMethod"` // e.g. mobile_camera, scanner
	DeviceType    string `json:"deviceType"`
	ImageQuality  string `json:"imageQuality"`
}

// OCRClient is the consumed text-extraction contract.
type OCRClient interface {
	ExtractText(ctx context.Context, image []byte, providerHint string, capture CaptureContext) (*OCRResult, error)
}

// httpOCRClient talks to the standalone OCR service over HTTP.
type httpOCRClient struct {
	baseURL string
	client  *http.Client
}

// NewOCRClient builds an OCR client against the configured service URL.
func NewOCRClient(baseURL string, timeout time.Duration) OCRClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpOCRClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// ExtractText uploads the image to the OCR service and decodes its reply.
func (c *httpOCRClient) ExtractText(ctx context.Context, image []byte, providerHint string, capture CaptureContext) (*OCRResult, error) {
	start := time.Now()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "form.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image content: %v", err)
	}

	fields := map[string]string{
		"provider":       providerHint,
		"capture_method": capture.CaptureMethod,
		"device_type":    capture.DeviceType,
		"image_quality":  capture.ImageQuality,
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to add %s field: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/extract_text", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to OCR service failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read OCR response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCR service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result OCRResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode OCR response: %v", err)
	}
	if result.ProcessingTimeMs == 0 {
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
	}
	return &result, nil
}

// isOCRServiceOnline checks whether the OCR service answers its health
// endpoint.
func isOCRServiceOnline(healthURL string) bool {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(healthURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
