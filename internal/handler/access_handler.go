package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/whop"
	"github.com/dyncarl8-oss/auto-welcome/internal/repository"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AccessHandler handles iframe entry: token validation, access level
// resolution and user lookups
type AccessHandler struct {
	whopClient  *whop.Client
	creatorRepo repository.CreatorRepository
}

// NewAccessHandler creates a new access handler
func NewAccessHandler(whopClient *whop.Client, creatorRepo repository.CreatorRepository) *AccessHandler {
	return &AccessHandler{
		whopClient:  whopClient,
		creatorRepo: creatorRepo,
	}
}

// SetupAccessRoutes registers the access and user routes
func (h *AccessHandler) SetupAccessRoutes(router *mux.Router) {
	router.HandleFunc("/api/validate-access", h.ValidateAccess).Methods("POST")
	router.HandleFunc("/api/user", h.GetUser).Methods("GET")
}

type validateAccessRequest struct {
	ExperienceID string `json:"experienceId"`
}

// ValidateAccess verifies the user token, checks the user's access level on
// the experience, and resolves the owning company. The app's frontend calls
// this on load to decide between the admin and member views.
func (h *AccessHandler) ValidateAccess(w http.ResponseWriter, r *http.Request) {
	var req validateAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExperienceID == "" {
		writeError(w, http.StatusBadRequest, "experienceId is required")
		return
	}

	token := r.Header.Get(userTokenHeader)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error":       "Missing x-whop-user-token header. Ensure you're accessing this app through Whop or using the dev proxy for local development.",
			"hasAccess":   false,
			"accessLevel": "no_access",
		})
		return
	}

	userID, err := h.whopClient.VerifyUserToken(r.Context(), token)
	if err != nil {
		writeAppError(w, err)
		return
	}

	result, err := h.whopClient.CheckExperienceAccess(r.Context(), userID, req.ExperienceID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var userName, username string
	if user, err := h.whopClient.GetUser(r.Context(), userID); err != nil {
		logger.Base().Warn("failed to fetch user details during access validation",
			zap.String("user_id", userID),
			zap.Error(err))
	} else {
		userName = user.Name
		if userName == "" {
			userName = user.Username
		}
		username = user.Username
	}

	// Resolve the owning company from the experience. For admins a creator
	// record can fill in when the experience lookup fails.
	var companyID string
	if experience, err := h.whopClient.GetExperience(r.Context(), req.ExperienceID); err != nil {
		logger.Base().Warn("failed to fetch experience for company resolution",
			zap.String("experience_id", req.ExperienceID),
			zap.Error(err))
		if result.AccessLevel == "admin" {
			if creator, err := h.creatorRepo.GetByWhopUserID(r.Context(), userID); err == nil && creator.WhopCompanyID != "" {
				companyID = creator.WhopCompanyID
			}
		}
	} else {
		companyID = experience.Company.ID
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hasAccess":    result.HasAccess,
		"accessLevel":  result.AccessLevel,
		"userId":       userID,
		"userName":     userName,
		"username":     username,
		"companyId":    companyID,
		"experienceId": req.ExperienceID,
	})
}

// GetUser returns the authenticated user's profile
func (h *AccessHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(userTokenHeader)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "No user token provided")
		return
	}

	userID, err := h.whopClient.VerifyUserToken(r.Context(), token)
	if err != nil {
		writeAppError(w, err)
		return
	}

	user, err := h.whopClient.GetUser(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}
