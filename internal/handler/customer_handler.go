package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/whop"
	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/internal/domain"
	"github.com/dyncarl8-oss/auto-welcome/internal/repository"
	"github.com/dyncarl8-oss/auto-welcome/internal/services/welcome"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// CustomerHandler handles the member-facing view
type CustomerHandler struct {
	repos      repository.RepositoryManager
	whopClient *whop.Client
	service    *welcome.Service
}

// NewCustomerHandler creates a new customer handler
func NewCustomerHandler(repos repository.RepositoryManager, whopClient *whop.Client, service *welcome.Service) *CustomerHandler {
	return &CustomerHandler{
		repos:      repos,
		whopClient: whopClient,
		service:    service,
	}
}

// SetupCustomerRoutes registers member routes on a subrouter that already
// carries AuthMiddleware
func (h *CustomerHandler) SetupCustomerRoutes(router *mux.Router) {
	router.HandleFunc("/welcome-status", h.WelcomeStatus).Methods("GET")
	router.HandleFunc("/trigger-test-video", h.TriggerTestVideo).Methods("POST")
	router.HandleFunc("/reset-test-status", h.ResetTestStatus).Methods("POST")
	router.HandleFunc("/track-view", h.TrackView).Methods("POST")
}

// findCustomer searches every creator's customer list for the user. The
// member view does not know which community opened it, so the lookup spans
// tenants by user ID.
func (h *CustomerHandler) findCustomer(r *http.Request, userID string) (*domain.Customer, error) {
	creators, err := h.repos.Creator().GetAll(r.Context())
	if err != nil {
		return nil, err
	}

	for _, creator := range creators {
		customer, err := h.repos.Customer().GetByWhopUserID(r.Context(), creator.ID, userID)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// firstSetupCreator returns the first creator with completed setup
func (h *CustomerHandler) firstSetupCreator(r *http.Request) (*domain.Creator, error) {
	creators, err := h.repos.Creator().GetAll(r.Context())
	if err != nil {
		return nil, err
	}
	for _, creator := range creators {
		if creator.IsSetupComplete {
			return creator, nil
		}
	}
	return nil, nil
}

// tenantContext is the optional body of member requests, pinning the
// community the request belongs to
type tenantContext struct {
	CompanyID    string `json:"companyId"`
	ExperienceID string `json:"experienceId"`
}

// resolveCreator picks the creator a member request is for. An explicit
// company or experience in the body pins the tenant. Without one the first
// fully set up creator is used, which is only safe on single-community
// installs.
func (h *CustomerHandler) resolveCreator(r *http.Request) (*domain.Creator, error) {
	var tc tenantContext
	if r.Body != nil {
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&tc)
	}

	companyID := tc.CompanyID
	if companyID == "" && tc.ExperienceID != "" {
		experience, err := h.whopClient.GetExperience(r.Context(), tc.ExperienceID)
		if err != nil {
			return nil, err
		}
		companyID = experience.Company.ID
	}

	if companyID != "" {
		creator, err := h.repos.Creator().GetByCompanyID(r.Context(), companyID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return creator, err
	}

	logger.Base().Warn("member request without company context, falling back to first configured creator",
		zap.String("user_id", userIDFromContext(r.Context())))
	return h.firstSetupCreator(r)
}

// WelcomeStatus reports the state of the member's welcome video so the
// member view can show a matching message
func (h *CustomerHandler) WelcomeStatus(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	customer, err := h.findCustomer(r, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if customer == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"hasWelcomeVideo": false,
			"videoStatus":     nil,
			"message":         "Your personal video message is being prepared 🎥",
			"userName":        "there",
			"userId":          userID,
		})
		return
	}

	displayName := customer.Name
	if displayName == "" && customer.Username != nil {
		displayName = *customer.Username
	}
	if displayName == "" {
		displayName = "there"
	}

	videos, err := h.repos.Video().GetByCustomer(r.Context(), customer.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var latest *domain.Video
	if len(videos) > 0 {
		// GetByCustomer returns newest first.
		latest = videos[0]
	}

	message := "Check your DMs for a personal message 🎥"
	var videoStatus interface{}
	var videoURL interface{}
	if latest != nil {
		videoStatus = latest.Status
		if latest.VideoURL != nil {
			videoURL = *latest.VideoURL
		}
		switch latest.Status {
		case domain.VideoStatusGenerating, domain.VideoStatusPending:
			message = "Your personal welcome video is being created... Check back in a moment! 🎬"
		case domain.VideoStatusSent, domain.VideoStatusDelivered:
			message = "We just sent you a personal video message - check your DMs 🎥"
		case domain.VideoStatusFailed:
			message = "Welcome to our community! 👋"
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hasWelcomeVideo": customer.FirstVideoSent,
		"videoStatus":     videoStatus,
		"videoUrl":        videoURL,
		"message":         message,
		"userName":        displayName,
		"userId":          userID,
	})
}

// TriggerTestVideo lets a member request a test welcome video. The body may
// carry a companyId or experienceId to pin the community
func (h *CustomerHandler) TriggerTestVideo(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	creator, err := h.resolveCreator(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if creator == nil {
		writeError(w, http.StatusBadRequest, "No admin has completed setup yet. Please ask the admin to upload an avatar and set a message template first.")
		return
	}

	name := "Member"
	var email, username *string
	if user, err := h.whopClient.GetUser(r.Context(), userID); err != nil {
		logger.Base().Warn("failed to fetch user details for test video",
			zap.String("user_id", userID),
			zap.Error(err))
	} else {
		if user.Name != "" {
			name = user.Name
		} else if user.Username != "" {
			name = user.Username
		}
		if user.Email != "" {
			email = &user.Email
		}
		if user.Username != "" {
			username = &user.Username
		}
	}

	plan := "Test Plan"
	customer, _, err := h.repos.Customer().CreateIfAbsent(r.Context(), &domain.CreateCustomerRequest{
		CreatorID:     creator.ID,
		WhopUserID:    userID,
		WhopMemberID:  fmt.Sprintf("member_test_%d", time.Now().UnixMilli()),
		WhopCompanyID: &creator.WhopCompanyID,
		Name:          name,
		Email:         email,
		Username:      username,
		PlanName:      &plan,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	video, err := h.service.GenerateWelcomeVideo(r.Context(), creator, customer, true)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       "🎬 Your welcome video is being generated! It will be sent to your DMs automatically when ready (usually 1-2 minutes).",
		"videoId":       video.ID,
		"heygenVideoId": video.HeyGenVideoID,
		"script":        video.PersonalizedScript,
	})
}

// TrackView records that the member opened their welcome video. The first
// view of a sent video also confirms DM delivery before counting the view
func (h *CustomerHandler) TrackView(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	customer, err := h.findCustomer(r, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "No welcome video found")
		return
	}

	videos, err := h.repos.Video().GetByCustomer(r.Context(), customer.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	// GetByCustomer returns newest first; take the latest delivered one.
	var latest *domain.Video
	for _, video := range videos {
		switch video.Status {
		case domain.VideoStatusSent, domain.VideoStatusDelivered, domain.VideoStatusViewed:
			latest = video
		}
		if latest != nil {
			break
		}
	}
	if latest == nil {
		writeError(w, http.StatusNotFound, "No delivered video to track")
		return
	}

	if latest.Status == domain.VideoStatusSent {
		if latest, err = h.service.MarkDelivered(r.Context(), latest.ID); err != nil {
			writeAppError(w, err)
			return
		}
	}

	video, err := h.service.MarkViewed(r.Context(), latest.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"status":    video.Status,
		"viewCount": video.ViewCount,
	})
}

// ResetTestStatus clears the member's first-video flag and fails any
// in-flight generation so the test flow can run again
func (h *CustomerHandler) ResetTestStatus(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	creator, err := h.resolveCreator(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if creator == nil {
		writeError(w, http.StatusBadRequest, "No admin has completed setup yet.")
		return
	}

	customer, err := h.repos.Customer().GetByWhopUserID(r.Context(), creator.ID, userID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		writeAppError(w, err)
		return
	}

	if customer != nil {
		sent := false
		if _, err := h.repos.Customer().Update(r.Context(), customer.ID, &domain.UpdateCustomerRequest{
			FirstVideoSent: &sent,
		}); err != nil {
			writeAppError(w, err)
			return
		}

		videos, err := h.repos.Video().GetByCustomer(r.Context(), customer.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		for _, video := range videos {
			if video.Status != domain.VideoStatusGenerating {
				continue
			}
			failed := domain.VideoStatusFailed
			reason := "Manually reset by user"
			if _, err := h.repos.Video().Update(r.Context(), video.ID, &domain.UpdateVideoRequest{
				Status:       &failed,
				ErrorMessage: &reason,
			}); err != nil {
				writeAppError(w, err)
				return
			}
		}

		logger.Base().Info("test status reset",
			zap.String("customer_id", customer.ID),
			zap.String("user_id", userID))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Test status reset successfully",
	})
}
