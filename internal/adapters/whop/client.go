// Package whop wraps the Whop platform API: user token verification, user
// and experience lookups, membership queries and direct messages.
package whop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/dyncarl8-oss/auto-welcome/pkg/redis"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const serviceName = "whop"

// tokenCacheTTL bounds how long a verified user token result is reused.
const tokenCacheTTL = 5 * time.Minute

// membershipCacheTTL bounds how long a membership lookup is reused.
const membershipCacheTTL = 10 * time.Minute

// Client handles communication with the Whop API
type Client struct {
	APIBase    string
	APIKey     string
	HTTPClient *http.Client

	// appPublicKey verifies user tokens locally when configured. When nil,
	// verification falls back to the /v5/me endpoint.
	appPublicKey interface{}

	// redisService caches token verification results. Optional.
	redisService redis.RedisServiceInterface
}

// NewClient creates a new Whop API client. appPublicKeyPEM may be empty, in
// which case user tokens are verified against the API instead of locally.
func NewClient(apiBase, apiKey, appPublicKeyPEM string, redisService redis.RedisServiceInterface) (*Client, error) {
	client := &Client{
		APIBase: apiBase,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		redisService: redisService,
	}

	if appPublicKeyPEM != "" {
		key, err := jwt.ParseECPublicKeyFromPEM([]byte(appPublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse app public key: %w", err)
		}
		client.appPublicKey = key
	}

	return client, nil
}

// User is a Whop user profile
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Experience is an installed app surface within a company
type Experience struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Company struct {
		ID string `json:"id"`
	} `json:"company"`
}

// AccessResult reports whether and how a user can reach an experience
type AccessResult struct {
	HasAccess   bool   `json:"has_access"`
	AccessLevel string `json:"access_level"`
}

// Membership is a user's membership record within a company
type Membership struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	PlanID    string `json:"plan_id"`
	CompanyID string `json:"company_id"`
}

// Member is one entry of the company member listing
type Member struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// memberListResponse is one page of the member listing
type memberListResponse struct {
	Data       []Member `json:"data"`
	Pagination struct {
		CurrentPage int `json:"current_page"`
		TotalPages  int `json:"total_page"`
		TotalCount  int `json:"total_count"`
	} `json:"pagination"`
}

// DirectMessage is a sent direct message record
type DirectMessage struct {
	ID string `json:"id"`
}

// VerifyUserToken validates a user token from the x-whop-user-token header
// and returns the user ID it belongs to. Tokens are ES256 JWTs signed with
// the app's key; when no public key is configured the token is checked
// against the API instead. Results are cached briefly.
func (c *Client) VerifyUserToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("empty user token: %w", apperr.ErrUnauthorized)
	}

	var cacheKey string
	if c.redisService != nil {
		cacheKey = c.redisService.GenerateKey(redis.TOKEN_VERIFY, token)
		if cached, err := c.redisService.GetValue(ctx, cacheKey); err == nil && cached != "" {
			return cached, nil
		}
	}

	userID, err := c.verifyToken(ctx, token)
	if err != nil {
		return "", err
	}

	if c.redisService != nil && cacheKey != "" {
		if err := c.redisService.SetValue(ctx, cacheKey, userID, tokenCacheTTL); err != nil {
			logger.Base().Debug("failed to cache token verification", zap.Error(err))
		}
	}

	return userID, nil
}

func (c *Client) verifyToken(ctx context.Context, token string) (string, error) {
	if c.appPublicKey != nil {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return c.appPublicKey, nil
		}, jwt.WithValidMethods([]string{"ES256"}))
		if err != nil {
			return "", fmt.Errorf("invalid user token: %v: %w", err, apperr.ErrUnauthorized)
		}

		subject, err := parsed.Claims.GetSubject()
		if err != nil || subject == "" {
			return "", fmt.Errorf("user token missing subject: %w", apperr.ErrUnauthorized)
		}
		return subject, nil
	}

	// No local key configured. Ask the API who the token belongs to.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBase+"/v5/me", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var user User
	if err := c.do(req, &user); err != nil {
		return "", fmt.Errorf("token verification failed: %v: %w", err, apperr.ErrUnauthorized)
	}
	if user.ID == "" {
		return "", fmt.Errorf("token verification returned no user: %w", apperr.ErrUnauthorized)
	}

	return user.ID, nil
}

// GetUser fetches a user profile
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	req, err := c.newAppRequest(ctx, http.MethodGet, "/v5/app/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := c.do(req, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// GetExperience fetches an experience, including its owning company
func (c *Client) GetExperience(ctx context.Context, experienceID string) (*Experience, error) {
	req, err := c.newAppRequest(ctx, http.MethodGet, "/v5/app/experiences/"+url.PathEscape(experienceID), nil)
	if err != nil {
		return nil, err
	}

	var experience Experience
	if err := c.do(req, &experience); err != nil {
		return nil, err
	}

	return &experience, nil
}

// CheckExperienceAccess reports whether a user can reach an experience and
// at what level (admin, customer or no_access)
func (c *Client) CheckExperienceAccess(ctx context.Context, userID, experienceID string) (*AccessResult, error) {
	endpoint := fmt.Sprintf("/v5/app/users/%s/access/%s", url.PathEscape(userID), url.PathEscape(experienceID))
	req, err := c.newAppRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var result AccessResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// GetMembership fetches a membership record. The webhook path uses this to
// recover the company ID when the event payload omits it, so results are
// cached briefly to absorb redelivered events.
func (c *Client) GetMembership(ctx context.Context, membershipID string) (*Membership, error) {
	var cacheKey string
	if c.redisService != nil {
		cacheKey = c.redisService.GenerateKey(redis.MEMBER_LOOKUP, membershipID)
		if cached, err := c.redisService.GetValue(ctx, cacheKey); err == nil && cached != "" {
			var membership Membership
			if err := json.Unmarshal([]byte(cached), &membership); err == nil {
				return &membership, nil
			}
		}
	}

	req, err := c.newAppRequest(ctx, http.MethodGet, "/v5/app/memberships/"+url.PathEscape(membershipID), nil)
	if err != nil {
		return nil, err
	}

	var membership Membership
	if err := c.do(req, &membership); err != nil {
		return nil, err
	}

	if c.redisService != nil && cacheKey != "" {
		if data, err := json.Marshal(&membership); err == nil {
			if err := c.redisService.SetValue(ctx, cacheKey, string(data), membershipCacheTTL); err != nil {
				logger.Base().Debug("failed to cache membership lookup", zap.Error(err))
			}
		}
	}

	return &membership, nil
}

// CountMembers walks the paginated member listing of a company and returns
// the total member count
func (c *Client) CountMembers(ctx context.Context, companyID string) (int, error) {
	total := 0
	page := 1

	for {
		endpoint := fmt.Sprintf("/v5/app/members?company_id=%s&page=%d&per=50", url.QueryEscape(companyID), page)
		req, err := c.newAppRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return 0, err
		}

		var resp memberListResponse
		if err := c.do(req, &resp); err != nil {
			return 0, err
		}

		total += len(resp.Data)

		if resp.Pagination.TotalPages <= page || len(resp.Data) == 0 {
			break
		}
		page++
	}

	return total, nil
}

// SendDirectMessage sends a direct message to a user. The DM channel ID is
// the recipient's user ID. Permission failures surface as external service
// errors that classify as permission denied, so callers can tell a missing
// message:write grant apart from transient delivery failures.
func (c *Client) SendDirectMessage(ctx context.Context, toUserID, content string) (*DirectMessage, error) {
	body := map[string]string{
		"channel_id": toUserID,
		"content":    content,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newAppRequest(ctx, http.MethodPost, "/api/v5/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := extractErrorMessage(bodyBytes)
		extErr := apperr.External(serviceName, resp.StatusCode, message)
		if extErr.PermissionDenied() {
			logger.Base().Error("direct message rejected for missing permission",
				zap.String("user_id", toUserID),
				zap.String("message", message))
		}
		return nil, extErr
	}

	var message DirectMessage
	if err := json.Unmarshal(bodyBytes, &message); err != nil {
		return nil, fmt.Errorf("failed to decode message response: %w", err)
	}

	logger.Base().Info("direct message sent",
		zap.String("user_id", toUserID),
		zap.String("message_id", message.ID))
	return &message, nil
}

// newAppRequest builds a request authenticated with the app API key
func (c *Client) newAppRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.APIBase+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executes a request and decodes a JSON response into out. Non-2xx
// responses become external service errors.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.External(serviceName, resp.StatusCode, extractErrorMessage(bodyBytes))
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// extractErrorMessage pulls a human readable message out of an error body,
// falling back to the raw body text
func extractErrorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(body))
}
