package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LocalFinalizer runs finalization in-process against the Service.
type LocalFinalizer struct {
	svc *Service
}

func NewLocalFinalizer(svc *Service) *LocalFinalizer {
	return &LocalFinalizer{svc: svc}
}

func (l *LocalFinalizer) Finalize(ctx context.Context, req FinalizeRequest) error {
	return l.svc.FinalizeAcceptance(ctx, req)
}

// HTTPFinalizer posts to a remote finalize-invitation endpoint. A non-2xx
// response aborts with the server's error message when one is supplied.
type HTTPFinalizer struct {
	url    string
	client *http.Client
}

func NewHTTPFinalizer(url string, client *http.Client) *HTTPFinalizer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFinalizer{url: url, client: client}
}

func (h *HTTPFinalizer) Finalize(ctx context.Context, req FinalizeRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	message := strings.TrimSpace(payload.Error)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("finalize invitation: %s", message)
}
