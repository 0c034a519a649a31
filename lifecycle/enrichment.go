package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	perrors "github.com/parleylabs/parley/pkg/errors"
	"github.com/parleylabs/parley/pkg/httputil"
)

const transcriptsPath = "/transcripts"

// Enricher requests post-call enrichment for a completed recording and
// returns the enrichment job identifier.
type Enricher interface {
	RequestTranscript(ctx context.Context, recordingID, recordingURL string) (string, error)
}

// HTTPEnricher implements Enricher against the analytics platform's
// transcript API.
type HTTPEnricher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPEnricher creates an enrichment client for the given base URL.
func NewHTTPEnricher(baseURL string) *HTTPEnricher {
	return &HTTPEnricher{
		baseURL:    baseURL,
		httpClient: httputil.NewHTTPClient(httputil.DefaultEnrichmentTimeout),
	}
}

type transcriptRequest struct {
	RequestID    string `json:"request_id"`
	RecordingID  string `json:"recording_id"`
	RecordingURL string `json:"recording_url"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RequestTranscript asks the analytics platform to transcribe a recording.
func (e *HTTPEnricher) RequestTranscript(ctx context.Context, recordingID, recordingURL string) (string, error) {
	body, err := json.Marshal(transcriptRequest{
		RequestID:    uuid.NewString(),
		RecordingID:  recordingID,
		RecordingURL: recordingURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+transcriptsPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create transcript request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcript request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", perrors.Upstream("lifecycle", "RequestTranscript", resp.StatusCode, nil).
			WithDetails(map[string]any{"recording_id": recordingID})
	}

	var parsed transcriptResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse transcript response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("transcript response contained no id")
	}

	return parsed.ID, nil
}
