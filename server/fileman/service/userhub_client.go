package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	commonlog "interview_server/server/common/log"
	userdomain "interview_server/server/userhub/domain"
)

const (
	userHubBasePath      = "/api/internal/v1/users"
	resolvedUserCacheTTL = 60 * time.Second
)

// UserHubClient talks to the userhub internal API: user resolution for
// authorization and share targets, plus maintenance of the denormalized
// resume-documents list. Resolved users are cached in redis because every
// share request resolves its target.
type UserHubClient struct {
	endpoints []string
	http      *http.Client
	redis     *redis.Client
}

func NewUserHubClient(rdb *redis.Client, endpoints ...string) *UserHubClient {
	normalized := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return &UserHubClient{
		endpoints: normalized,
		http:      &http.Client{Timeout: 5 * time.Second},
		redis:     rdb,
	}
}

type ResolvedUser struct {
	ID    string              `json:"id"`
	Role  userdomain.UserRole `json:"role"`
	Name  string              `json:"name"`
	Email string              `json:"email"`
}

func (c *UserHubClient) ResolveUser(ctx context.Context, userID string) (ResolvedUser, error) {
	cacheKey := "userhub:resolved:" + userID
	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached ResolvedUser
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var out ResolvedUser
	if err := c.post(ctx, userHubBasePath+"/resolve", map[string]string{"user_id": userID}, &out); err != nil {
		return ResolvedUser{}, err
	}

	if c.redis != nil {
		if raw, err := json.Marshal(out); err == nil {
			if err := c.redis.Set(ctx, cacheKey, raw, resolvedUserCacheTTL).Err(); err != nil {
				commonlog.Debugf("cache resolved user %s: %v", userID, err)
			}
		}
	}
	return out, nil
}

func (c *UserHubClient) AddResumeDocument(ctx context.Context, userID string, doc userdomain.ResumeDocument) error {
	payload := map[string]any{"user_id": userID, "document": doc}
	var out struct {
		OK bool `json:"ok"`
	}
	return c.post(ctx, userHubBasePath+"/resume-docs", payload, &out)
}

func (c *UserHubClient) RemoveResumeDocument(ctx context.Context, userID, binaryObjectID string) error {
	payload := map[string]string{"user_id": userID, "binary_object_id": binaryObjectID}
	var out struct {
		OK bool `json:"ok"`
	}
	return c.post(ctx, userHubBasePath+"/resume-docs/remove", payload, &out)
}

func (c *UserHubClient) post(ctx context.Context, path string, payload any, out any) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("userhub endpoint is not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for _, endpoint := range c.endpoints {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+path, bytes.NewReader(body))
		if reqErr != nil {
			lastErr = reqErr
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			lastErr = fmt.Errorf("userhub request failed endpoint=%s: %w", endpoint, doErr)
			continue
		}
		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("userhub status %d endpoint=%s", resp.StatusCode, endpoint)
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			return fmt.Errorf("userhub endpoint=%s: %w", endpoint, userdomain.ErrUserNotFound)
		}
		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return fmt.Errorf("userhub status %d endpoint=%s", resp.StatusCode, endpoint)
		}

		decodeErr := json.NewDecoder(resp.Body).Decode(out)
		_ = resp.Body.Close()
		return decodeErr
	}
	return lastErr
}
