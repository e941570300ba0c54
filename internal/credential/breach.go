package credential

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BreachClient looks up hash suffixes for a 5-character SHA-1 prefix.
// The k-anonymity model means the password itself never leaves the process.
type BreachClient interface {
	CheckPrefix(ctx context.Context, prefix string) ([]string, error)
}

// RangeClient queries a haveibeenpwned-compatible range endpoint.
type RangeClient struct {
	baseURL string
	client  *http.Client
}

// NewRangeClient creates a breach range client. An empty baseURL selects the
// public haveibeenpwned endpoint.
func NewRangeClient(baseURL string, timeout time.Duration) *RangeClient {
	if baseURL == "" {
		baseURL = "https://api.pwnedpasswords.com/range"
	}
	return &RangeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// CheckPrefix fetches the suffix list for the given 5-character prefix.
// Response lines look like "SUFFIX:COUNT"; only the suffixes are returned.
func (c *RangeClient) CheckPrefix(ctx context.Context, prefix string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+prefix, nil)
	if err != nil {
		return nil, fmt.Errorf("credential.RangeClient.CheckPrefix: %w", err)
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential.RangeClient.CheckPrefix: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credential.RangeClient.CheckPrefix: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("credential.RangeClient.CheckPrefix: %w", err)
	}

	var suffixes []string
	for _, line := range strings.Split(string(body), "\n") {
		suffix, _, ok := strings.Cut(strings.TrimSpace(line), ":")
		if ok && suffix != "" {
			suffixes = append(suffixes, strings.ToUpper(suffix))
		}
	}
	return suffixes, nil
}

// CheckPassword reports whether the password appears in the breach corpus.
// It hashes with SHA-1, sends only the first 5 hex characters, and matches
// the remaining 35 locally.
func CheckPassword(ctx context.Context, client BreachClient, password string) (bool, error) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, want := digest[:5], digest[5:]

	suffixes, err := client.CheckPrefix(ctx, prefix)
	if err != nil {
		return false, err
	}

	for _, suffix := range suffixes {
		if suffix == want {
			return true, nil
		}
	}
	return false, nil
}
