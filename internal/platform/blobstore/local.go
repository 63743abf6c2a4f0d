package blobstore

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// LocalSigner fabricates upload URLs without talking to any storage backend.
// Used in development and tests.
type LocalSigner struct {
	BaseURL string

	mu     sync.Mutex
	signed []string
}

func NewLocalSigner(baseURL string) *LocalSigner {
	if baseURL == "" {
		baseURL = "http://localhost:9000/uploads"
	}
	return &LocalSigner{BaseURL: baseURL}
}

func (s *LocalSigner) SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	s.signed = append(s.signed, key)
	s.mu.Unlock()
	return fmt.Sprintf("%s/%s?expires=%d&ct=%s",
		s.BaseURL, key, time.Now().Add(ttl).Unix(), url.QueryEscape(contentType)), nil
}

// SignedKeys returns the keys signed so far, for test assertions.
func (s *LocalSigner) SignedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.signed))
	copy(out, s.signed)
	return out
}
