package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/whop"
	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/internal/repository"
	"github.com/dyncarl8-oss/auto-welcome/internal/services/welcome"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// whopSignatureHeader carries the signature in t=<ts>,v1=<hex> form
const whopSignatureHeader = "x-whop-signature"

// membership event names that mean a new member joined; the platform has
// used both dotted and underscored forms
var memberJoinedActions = map[string]bool{
	"membership.went_valid":     true,
	"membership.created":        true,
	"membership_went_valid":     true,
	"app_membership_went_valid": true,
}

// WhopWebhookHandler handles membership events from the host platform
type WhopWebhookHandler struct {
	repos         repository.RepositoryManager
	whopClient    *whop.Client
	service       *welcome.Service
	webhookSecret string
}

// NewWhopWebhookHandler creates a new platform webhook handler
func NewWhopWebhookHandler(repos repository.RepositoryManager, whopClient *whop.Client, service *welcome.Service, webhookSecret string) *WhopWebhookHandler {
	return &WhopWebhookHandler{
		repos:         repos,
		whopClient:    whopClient,
		service:       service,
		webhookSecret: webhookSecret,
	}
}

// SetupWhopWebhookRoutes registers the platform webhook routes
func (h *WhopWebhookHandler) SetupWhopWebhookRoutes(router *mux.Router) {
	router.HandleFunc("/api/whop/webhook", h.HandleWebhook).Methods("POST")
	router.HandleFunc("/api/whop/webhook/test", h.WebhookTest).Methods("GET")
}

// whopWebhookEvent is the envelope of a platform webhook
type whopWebhookEvent struct {
	Action string           `json:"action"`
	Data   whopInnerPayload `json:"data"`
}

type whopInnerPayload struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	User   *struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Username string `json:"username"`
	} `json:"user"`
	AccessPass *struct {
		Name string `json:"name"`
	} `json:"access_pass"`
	Plan *struct {
		ID string `json:"id"`
	} `json:"plan"`
	PlanID  string `json:"plan_id"`
	Company *struct {
		ID string `json:"id"`
	} `json:"company"`
	CompanyID  string `json:"company_id"`
	BizID      string `json:"biz_id"`
	BusinessID string `json:"business_id"`
}

// HandleWebhook processes a membership event. Signature failures return 401
// when a secret is configured; any failure after verification still returns
// 200 so the platform does not retry indefinitely.
func (h *WhopWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if h.webhookSecret != "" {
		if !h.verifySignature(r.Header.Get(whopSignatureHeader), body) {
			writeError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	} else {
		logger.Base().Warn("WHOP_WEBHOOK_SECRET not set, webhook signature verification skipped")
	}

	var event whopWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Base().Warn("unparseable webhook payload", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Invalid payload"})
		return
	}

	logger.Base().Info("platform webhook received", zap.String("action", event.Action))

	if !memberJoinedActions[event.Action] {
		logger.Base().Debug("no handler for webhook action", zap.String("action", event.Action))
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}

	message := h.processMemberJoined(r, &event.Data)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": message})
}

// verifySignature checks the t=<ts>,v1=<hex> header against an HMAC-SHA256
// of timestamp + "." + raw body
func (h *WhopWebhookHandler) verifySignature(header string, body []byte) bool {
	if header == "" {
		logger.Base().Warn("missing webhook signature header")
		return false
	}

	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}
	if timestamp == "" || signature == "" {
		logger.Base().Warn("invalid webhook signature format")
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		logger.Base().Warn("webhook signature mismatch", zap.String("timestamp", timestamp))
		return false
	}
	return true
}

// processMemberJoined resolves the tenant and starts the welcome flow. The
// returned message is surfaced in the 200 response body for debugging.
func (h *WhopWebhookHandler) processMemberJoined(r *http.Request, data *whopInnerPayload) string {
	ctx := r.Context()

	memberID := data.ID
	userID := data.UserID
	if userID == "" && data.User != nil {
		userID = data.User.ID
	}
	if memberID == "" || userID == "" {
		logger.Base().Warn("webhook payload missing member or user id")
		return "Invalid payload"
	}

	companyID := h.resolveCompanyID(r, data, memberID)
	if companyID == "" {
		// Without a company there is no safe way to pick a tenant, so the
		// event is dropped rather than guessed at.
		logger.Base().Warn("no company id resolvable for membership event, skipping",
			zap.String("member_id", memberID),
			zap.String("user_id", userID))
		return "Company not resolvable"
	}

	creator, err := h.repos.Creator().GetByCompanyID(ctx, companyID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			logger.Base().Info("no creator for company, skipping",
				zap.String("company_id", companyID))
			return "Company not setup yet"
		}
		logger.Base().Error("creator lookup failed", zap.Error(err))
		return "Lookup failed"
	}
	if !creator.IsSetupComplete {
		logger.Base().Info("creator setup incomplete, skipping",
			zap.String("creator_id", creator.ID))
		return "Creator setup incomplete"
	}

	event := &welcome.MemberJoined{
		WhopUserID:    userID,
		WhopMemberID:  memberID,
		WhopCompanyID: companyID,
		Name:          "New Member",
	}
	if data.User != nil {
		if data.User.Email != "" {
			email := data.User.Email
			event.Email = &email
		}
		if data.User.Username != "" {
			username := data.User.Username
			event.Username = &username
			event.Name = username
		}
	}
	if data.AccessPass != nil && data.AccessPass.Name != "" {
		plan := data.AccessPass.Name
		event.PlanName = &plan
	} else if data.Plan != nil && data.Plan.ID != "" {
		plan := data.Plan.ID
		event.PlanName = &plan
	} else if data.PlanID != "" {
		plan := data.PlanID
		event.PlanName = &plan
	}

	// Prefer the live profile over the webhook snapshot for display names.
	if user, err := h.whopClient.GetUser(ctx, userID); err != nil {
		logger.Base().Warn("failed to fetch joining member's profile",
			zap.String("user_id", userID),
			zap.Error(err))
	} else {
		if user.Name != "" {
			event.Name = user.Name
		} else if user.Username != "" {
			event.Name = user.Username
		}
		if user.Username != "" {
			username := user.Username
			event.Username = &username
		}
	}

	video, err := h.service.OnMemberJoined(ctx, creator, event)
	if err != nil {
		logger.Base().Error("welcome flow failed for new member",
			zap.String("user_id", userID),
			zap.String("creator_id", creator.ID),
			zap.Error(err))
		return "Processing failed"
	}
	if video == nil {
		return "Customer already has video"
	}

	logger.Base().Info("welcome video started for new member",
		zap.String("user_id", userID),
		zap.String("video_id", video.ID))
	return "Processing started"
}

// resolveCompanyID tries the payload's company fields, then falls back to a
// membership lookup
func (h *WhopWebhookHandler) resolveCompanyID(r *http.Request, data *whopInnerPayload, memberID string) string {
	if data.Company != nil && data.Company.ID != "" {
		return data.Company.ID
	}
	if data.CompanyID != "" {
		return data.CompanyID
	}
	if data.BizID != "" {
		return data.BizID
	}
	if data.BusinessID != "" {
		return data.BusinessID
	}

	membership, err := h.whopClient.GetMembership(r.Context(), memberID)
	if err != nil {
		logger.Base().Warn("membership lookup for company resolution failed",
			zap.String("member_id", memberID),
			zap.Error(err))
		return ""
	}
	return membership.CompanyID
}

// WebhookTest reports whether the webhook endpoint and its configuration
// are in place
func (h *WhopWebhookHandler) WebhookTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "Webhook endpoint is accessible",
		"webhookUrl": "/api/whop/webhook",
		"environment": map[string]bool{
			"hasApiKey":        os.Getenv("WHOP_API_KEY") != "",
			"hasWebhookSecret": h.webhookSecret != "",
			"hasAppId":         os.Getenv("WHOP_APP_ID") != "",
		},
		"instructions": "Send a POST request to /api/whop/webhook with a membership event payload",
	})
}
