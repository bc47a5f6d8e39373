package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"threatlens/models"

	"github.com/go-redis/redis/v8"
)

// LeakClient queries a DeHashed-compatible credential-leak API for a
// domain. Responses are cached in Redis so repeated analyses of the same
// domain do not burn API quota.
type LeakClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewLeakClient(endpoint, apiKey string, timeout time.Duration, cache *redis.Client, cacheTTL time.Duration) *LeakClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LeakClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

type leakSearchRequest struct {
	Query    string `json:"query"`
	Page     int    `json:"page"`
	Size     int    `json:"size"`
	Wildcard bool   `json:"wildcard"`
	Regex    bool   `json:"regex"`
	DeDupe   bool   `json:"de_dupe"`
}

type leakSearchResponse struct {
	Entries []struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		HashedPassword string `json:"hashed_password"`
	} `json:"entries"`
}

// CheckDomain returns leak counts and records for a domain. A transient
// API failure surfaces as an error; callers degrade to a zero-signal
// leak score rather than failing the job.
func (c *LeakClient) CheckDomain(ctx context.Context, domain string) (*models.LeakResult, error) {
	cacheKey := "leak:" + domain
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var result models.LeakResult
			if json.Unmarshal(cached, &result) == nil {
				return &result, nil
			}
		}
	}

	resp, err := c.search(ctx, "domain:"+domain)
	if err != nil {
		return nil, err
	}

	result := &models.LeakResult{}
	for _, entry := range resp.Entries {
		if entry.Email != "" {
			result.NumEmails++
		}
		if entry.Password != "" {
			result.NumPasswords++
		}
		if entry.HashedPassword != "" {
			result.NumHashes++
		}
		result.Records = append(result.Records, models.LeakRecord{
			Email:          entry.Email,
			Password:       entry.Password,
			HashedPassword: entry.HashedPassword,
		})
	}

	if c.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			if err := c.cache.Set(ctx, cacheKey, data, c.cacheTTL).Err(); err != nil {
				log.Printf("[LeakClient] cache write failed for %s: %v", domain, err)
			}
		}
	}
	return result, nil
}

func (c *LeakClient) search(ctx context.Context, query string) (*leakSearchResponse, error) {
	payload, err := json.Marshal(leakSearchRequest{
		Query:  query,
		Page:   1,
		Size:   10000,
		DeDupe: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DeHashed-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("leak lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("leak lookup returned status %d", resp.StatusCode)
	}

	var parsed leakSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("leak lookup decode: %w", err)
	}
	return &parsed, nil
}
