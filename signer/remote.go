package signer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RemoteProvider signs digests through an HTTP signing service.
//
// The service receives {"address", "hash"} with the 0x-prefixed digest and
// answers with {"signature"} holding a 65-byte signature in hex.
type RemoteProvider struct {
	endpoint string
	apiKey   string
	address  string
	client   *http.Client
}

// NewRemoteProvider creates a RemoteProvider for the key with the given
// address.
func NewRemoteProvider(endpoint, apiKey, address string) (*RemoteProvider, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("endpoint required")
	}
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("address required")
	}

	return &RemoteProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		address:  strings.ToLower(address),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// Sign signs a digest using the remote API.
func (s *RemoteProvider) Sign(hash []byte) ([]byte, error) {
	return s.SignContext(context.Background(), hash)
}

// SignContext signs a digest, bounded by ctx.
func (s *RemoteProvider) SignContext(ctx context.Context, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("payload must be 32 bytes, got %d", len(hash))
	}

	reqBody, err := json.Marshal(map[string]any{
		"address": s.address,
		"hash":    "0x" + hex.EncodeToString(hash),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build sign request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call remote signer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote signer http %d", resp.StatusCode)
	}

	var out struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode remote signature: %w", err)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(out.Signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode remote signature: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature length %d", len(sig))
	}

	return sig, nil
}

// GetAddress returns the address the remote key signs for.
func (s *RemoteProvider) GetAddress() string {
	return s.address
}
