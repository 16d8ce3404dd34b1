package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/fishaudio"
	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/heygen"
	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/whop"
	"github.com/dyncarl8-oss/auto-welcome/internal/domain"
	"github.com/dyncarl8-oss/auto-welcome/internal/repository"
	"github.com/dyncarl8-oss/auto-welcome/internal/services/welcome"
	"github.com/dyncarl8-oss/auto-welcome/internal/storage"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

const (
	maxAvatarUploadBytes = 10 << 20
	maxAudioUploadBytes  = 20 << 20
)

// AdminHandler handles the creator dashboard API
type AdminHandler struct {
	repos        repository.RepositoryManager
	whopClient   *whop.Client
	heygenClient *heygen.Client
	fishClient   *fishaudio.Client
	uploads      storage.UploadStore
	service      *welcome.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(repos repository.RepositoryManager, whopClient *whop.Client, heygenClient *heygen.Client, fishClient *fishaudio.Client, uploads storage.UploadStore, service *welcome.Service) *AdminHandler {
	return &AdminHandler{
		repos:        repos,
		whopClient:   whopClient,
		heygenClient: heygenClient,
		fishClient:   fishClient,
		uploads:      uploads,
		service:      service,
	}
}

// SetupAdminRoutes registers the admin dashboard routes on a subrouter that
// already carries AuthMiddleware
func (h *AdminHandler) SetupAdminRoutes(router *mux.Router) {
	router.HandleFunc("/creator", h.GetCreator).Methods("GET")
	router.HandleFunc("/initialize", h.Initialize).Methods("POST")
	router.HandleFunc("/save-settings", h.SaveSettings).Methods("POST")
	router.HandleFunc("/upload-avatar", h.UploadAvatar).Methods("POST")
	router.HandleFunc("/upload-audio", h.UploadAudio).Methods("POST")
	router.HandleFunc("/reset-onboarding", h.ResetOnboarding).Methods("POST")
	router.HandleFunc("/customers", h.ListCustomers).Methods("GET")
	router.HandleFunc("/analytics", h.GetAnalytics).Methods("GET")
	router.HandleFunc("/trigger-video-for-customer", h.TriggerVideoForCustomer).Methods("POST")
	router.HandleFunc("/send-video-dm", h.SendVideoDM).Methods("POST")
	router.HandleFunc("/test-video-generation", h.TestVideoGeneration).Methods("POST")
	router.HandleFunc("/heygen/avatar-groups", h.ListAvatarGroups).Methods("GET")
	router.HandleFunc("/heygen/avatar-groups/{groupId}/avatars", h.ListGroupAvatars).Methods("GET")
	router.HandleFunc("/heygen/voices", h.ListVoices).Methods("GET")
}

// creatorForRequest loads the creator record of the authenticated user
func (h *AdminHandler) creatorForRequest(r *http.Request) (*domain.Creator, error) {
	return h.repos.Creator().GetByWhopUserID(r.Context(), userIDFromContext(r.Context()))
}

// GetCreator returns the creator's settings
func (h *AdminHandler) GetCreator(w http.ResponseWriter, r *http.Request) {
	creator, err := h.creatorForRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, creator)
}

type initializeRequest struct {
	ExperienceID string `json:"experienceId"`
}

// Initialize gets or creates the creator record for the authenticated user.
// The caller must hold admin access on the experience, and the company bound
// at creation is immutable afterwards: an existing creator belonging to a
// different company is rejected.
func (h *AdminHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExperienceID == "" {
		writeError(w, http.StatusBadRequest, "experienceId is required for multi-tenant setup")
		return
	}

	userID := userIDFromContext(r.Context())

	access, err := h.whopClient.CheckExperienceAccess(r.Context(), userID, req.ExperienceID)
	if err != nil {
		writeError(w, http.StatusForbidden, "Failed to verify your access to this experience")
		return
	}
	if access.AccessLevel != "admin" {
		logger.Base().Warn("non-admin attempted initialization",
			zap.String("user_id", userID),
			zap.String("experience_id", req.ExperienceID),
			zap.String("access_level", access.AccessLevel))
		writeError(w, http.StatusForbidden, "You must have admin access to this experience to set up the app")
		return
	}

	experience, err := h.whopClient.GetExperience(r.Context(), req.ExperienceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch company information. Please ensure you're accessing this app through Whop.")
		return
	}
	companyID := experience.Company.ID
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "Could not determine company ID. Please ensure you're accessing this app through a Whop experience.")
		return
	}

	creator, err := h.repos.Creator().GetByWhopUserID(r.Context(), userID)
	if err != nil {
		creator, err = h.repos.Creator().Create(r.Context(), &domain.CreateCreatorRequest{
			WhopUserID:    userID,
			WhopCompanyID: companyID,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		logger.Base().Info("creator initialized",
			zap.String("creator_id", creator.ID),
			zap.String("company_id", companyID))
	} else if creator.WhopCompanyID != companyID {
		logger.Base().Warn("creator attempted cross-company access",
			zap.String("user_id", userID),
			zap.String("creator_company", creator.WhopCompanyID),
			zap.String("requested_company", companyID))
		writeError(w, http.StatusForbidden, "You cannot access this company's settings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"creator": creator})
}

type saveSettingsRequest struct {
	MessageTemplate string `json:"messageTemplate"`
}

// SaveSettings updates the message template and recomputes setup
// completeness. The company id is never updatable here.
func (h *AdminHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	creator, err := h.creatorForRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var req saveSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.MessageTemplate != "" {
		if creator, err = h.repos.Creator().Update(r.Context(), creator.ID, &domain.UpdateCreatorRequest{
			MessageTemplate: &req.MessageTemplate,
		}); err != nil {
			writeAppError(w, err)
			return
		}
	}

	// Setup is complete once avatar photo, trained voice model and a
	// message template are all present.
	isSetupComplete := creator.AvatarPhotoURL != nil && *creator.AvatarPhotoURL != "" &&
		creator.FishAudioModelID != nil && *creator.FishAudioModelID != "" &&
		creator.MessageTemplate != ""

	updated, err := h.repos.Creator().Update(r.Context(), creator.ID, &domain.UpdateCreatorRequest{
		IsSetupComplete: &isSetupComplete,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	logger.Base().Info("creator settings saved",
		zap.String("creator_id", creator.ID),
		zap.Bool("setup_complete", isSetupComplete))
	writeJSON(w, http.StatusOK, map[string]interface{}{"creator": updated})
}

// UploadAvatar stores the creator's avatar photo and records its public URL
func (h *AdminHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	creator, err := h.creatorForRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	data, name, contentType, err := readUpload(r, "avatar", maxAvatarUploadBytes, "image/")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	url, err := h.uploads.Save(r.Context(), name, data, contentType)
	if err != nil {
		writeAppError(w, err)
		return
	}

	updated, err := h.repos.Creator().Update(r.Context(), creator.ID, &domain.UpdateCreatorRequest{
		AvatarPhotoURL: &url,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	logger.Base().Info("avatar uploaded",
		zap.String("creator_id", creator.ID),
		zap.String("url", url))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"url":     url,
		"message": "Avatar uploaded successfully!",
		"creator": updated,
	})
}

// UploadAudio stores a voice sample, starts training a cloned voice model
// from it, and uploads the sample to the video provider for direct use
func (h *AdminHandler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	creator, err := h.creatorForRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	data, name, contentType, err := readUpload(r, "audio", maxAudioUploadBytes, "audio/")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	model, err := h.fishClient.CreateModel(r.Context(), &fishaudio.CreateModelRequest{
		Title:       fmt.Sprintf("Voice Model - %s", creator.WhopUserID),
		Description: fmt.Sprintf("Voice model for creator %s", creator.WhopUserID),
		FileName:    name,
		VoiceSample: data,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	// The video provider classifies WebM under video, not audio.
	heygenType := contentType
	if strings.HasPrefix(contentType, "audio/webm") {
		heygenType = "video/webm"
	}
	asset, err := h.heygenClient.UploadAsset(r.Context(), heygenType, data)
	if err != nil {
		writeAppError(w, err)
		return
	}

	useAudio := true
	updated, err := h.repos.Creator().Update(r.Context(), creator.ID, &domain.UpdateCreatorRequest{
		AudioFileURL:          &asset.URL,
		UseAudioForGeneration: &useAudio,
		FishAudioModelID:      &model.ID,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	logger.Base().Info("voice sample uploaded and model training started",
		zap.String("creator_id", creator.ID),
		zap.String("model_id", model.ID),
		zap.String("model_state", model.State))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"audioUrl":         asset.URL,
		"fishAudioModelId": model.ID,
		"modelState":       model.State,
		"message":          "Voice model trained successfully!",
		"creator":          updated,
	})
}

// ResetOnboarding clears uploaded media and returns the creator to the
// initial setup state
func (h *AdminHandler) ResetOnboarding(w http.ResponseWriter, r *http.Request) {
	creator, err := h.creatorForRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	updated, err := h.repos.Creator().ResetOnboarding(r.Context(), creator.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	logger.Base().Info("creator onboarding reset", zap.String("creator_id", creator.ID))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"creator": updated,
	})
}

// videoSummary is the per-video projection shown in the customer listing
type videoSummary struct {
	ID            string             `json:"id"`
	Status        domain.VideoStatus `json:"status"`
	VideoURL      *string            `json:"videoUrl"`
	CreatedAt     time.Time          `json:"createdAt"`
	SentAt        *time.Time         `json:"sentAt"`
	ViewedAt      *time.Time         `json:"viewedAt"`
	WhopChatID    *string            `json:"whopChatId"`
	WhopMessageID *string            `json:"whopMessageId"`
	ErrorMessage  *string            `json:"errorMessage"`
}

type customerWithVideos struct {
	domain.Customer
	Videos      []videoSummary `json:"videos"`
	LatestVideo *videoSummary  `json:"latestVideo"`
}

// ListCustomers returns the creator's customers with their video history
func (h *AdminHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	creator, err := h.creatorForRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	customers, err := h.repos.Customer().GetByCreator(r.Context(), creator.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	result := make([]customerWithVideos, 0, len(customers))
	for _, customer := range customers {
		videos, err := h.repos.Video().GetByCustomer(r.Context(), customer.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}

		summaries := make([]videoSummary, 0, len(videos))
		for _, video := range videos {
			var summary videoSummary
			if err := copier.Copy(&summary, video); err != nil {
				writeAppError(w, err)
				return
			}
			summaries = append(summaries, summary)
		}

		entry := customerWithVideos{Customer: *customer, Videos: summaries}
		if len(summaries) > 0 {
			// GetByCustomer returns newest first.
			entry.LatestVideo = &summaries[0]
		}
		result = append(result, entry)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"customers": result})
}

// GetAnalytics returns delivery metrics for the creator. The member total
// comes from the platform's live member listing when the company is known,
// falling back to the local customer count.
func (h *AdminHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	creator, err := h.creatorForRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	totalCustomers := 0
	usingLiveCount := false
	if creator.WhopCompanyID != "" {
		if count, err := h.whopClient.CountMembers(r.Context(), creator.WhopCompanyID); err != nil {
			logger.Base().Warn("failed to fetch live member count, using local count",
				zap.String("company_id", creator.WhopCompanyID),
				zap.Error(err))
		} else {
			totalCustomers = count
			usingLiveCount = true
		}
	}
	if !usingLiveCount {
		customers, err := h.repos.Customer().GetByCreator(r.Context(), creator.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		totalCustomers = len(customers)
	}

	videos, err := h.repos.Video().GetByCreator(r.Context(), creator.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var sent, viewed, pending, failed, totalViews int
	for _, v := range videos {
		switch v.Status {
		case domain.VideoStatusSent, domain.VideoStatusDelivered, domain.VideoStatusViewed:
			sent++
		case domain.VideoStatusPending, domain.VideoStatusGenerating:
			pending++
		case domain.VideoStatusFailed:
			failed++
		}
		if v.Status == domain.VideoStatusViewed {
			viewed++
		}
		totalViews += v.ViewCount
	}

	averageViews := 0.0
	if len(videos) > 0 {
		averageViews = float64(totalViews) / float64(len(videos))
	}

	recent := videos
	if len(recent) > 10 {
		recent = recent[:10]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalCustomers":       totalCustomers,
		"totalVideos":          len(videos),
		"videosSent":           sent,
		"videosViewed":         viewed,
		"videosPending":        pending,
		"videosFailed":         failed,
		"totalViews":           totalViews,
		"averageViewsPerVideo": averageViews,
		"recentVideos":         recent,
	})
}

type triggerVideoRequest struct {
	CustomerID string `json:"customerId"`
}

// TriggerVideoForCustomer starts welcome video generation for one of the
// creator's existing customers
func (h *AdminHandler) TriggerVideoForCustomer(w http.ResponseWriter, r *http.Request) {
	creator, err := h.creatorForRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var req triggerVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "customerId is required")
		return
	}

	customer, err := h.repos.Customer().GetByID(r.Context(), req.CustomerID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if customer.CreatorID != creator.ID {
		writeError(w, http.StatusForbidden, "Customer does not belong to your community")
		return
	}

	video, err := h.service.GenerateWelcomeVideo(r.Context(), creator, customer, false)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"videoId": video.ID,
		"script":  video.PersonalizedScript,
	})
}

type sendVideoDMRequest struct {
	VideoID string `json:"videoId"`
}

// SendVideoDM manually delivers a completed video to its customer
func (h *AdminHandler) SendVideoDM(w http.ResponseWriter, r *http.Request) {
	creator, err := h.creatorForRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var req sendVideoDMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == "" {
		writeError(w, http.StatusBadRequest, "videoId is required")
		return
	}

	video, err := h.repos.Video().GetByID(r.Context(), req.VideoID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if video.CreatorID != creator.ID {
		writeError(w, http.StatusForbidden, "Video does not belong to your community")
		return
	}
	if video.VideoURL == nil || *video.VideoURL == "" {
		writeError(w, http.StatusBadRequest, "Video URL not available")
		return
	}

	if err := h.service.Deliver(r.Context(), video); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "DM sent successfully",
	})
}

// TestVideoGeneration generates a test welcome video for the admin
// themselves, exercising the full pipeline with the provider's test mode
func (h *AdminHandler) TestVideoGeneration(w http.ResponseWriter, r *http.Request) {
	creator, err := h.creatorForRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	userID := userIDFromContext(r.Context())
	name := "Test Member"
	var email, username *string
	if user, err := h.whopClient.GetUser(r.Context(), userID); err == nil {
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
		"message":       "Test video generation started! Check logs for progress.",
		"videoId":       video.ID,
		"heygenVideoId": video.HeyGenVideoID,
		"script":        video.PersonalizedScript,
	})
}

// ListAvatarGroups proxies the provider's avatar group listing
func (h *AdminHandler) ListAvatarGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.heygenClient.ListAvatarGroups(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"avatarGroups": groups.AvatarGroupList})
}

// ListGroupAvatars proxies the looks of one provider avatar group
func (h *AdminHandler) ListGroupAvatars(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	avatars, err := h.heygenClient.ListGroupAvatars(r.Context(), groupID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"avatars": avatars.AvatarList})
}

// ListVoices proxies the provider's stock voice listing
func (h *AdminHandler) ListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := h.heygenClient.ListVoices(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"voices": voices.Voices})
}

// readUpload reads a single multipart file field, enforcing a size cap and a
// content type prefix (image/ or audio/)
func readUpload(r *http.Request, field string, maxBytes int64, typePrefix string) ([]byte, string, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, "", "", fmt.Errorf("upload too large or malformed")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", "", fmt.Errorf("no file uploaded")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, typePrefix) {
		return nil, "", "", fmt.Errorf("only %s* files are allowed", typePrefix)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to read upload")
	}

	return data, header.Filename, contentType, nil
}
