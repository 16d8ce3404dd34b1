// Package welcome orchestrates the lifecycle of a personalized welcome
// video: script rendering, avatar video generation, and direct message
// delivery to the new member.
package welcome

import (
	"context"
	"fmt"

	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/fishaudio"
	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/heygen"
	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/whop"
	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/internal/config"
	"github.com/dyncarl8-oss/auto-welcome/internal/domain"
	"github.com/dyncarl8-oss/auto-welcome/internal/repository"
	"github.com/dyncarl8-oss/auto-welcome/internal/template"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"go.uber.org/zap"
)

// VideoGenerator is the subset of the HeyGen client the service depends on
type VideoGenerator interface {
	UploadAsset(ctx context.Context, contentType string, data []byte) (*heygen.UploadAssetResponse, error)
	GenerateAvatarIV(ctx context.Context, req *heygen.GenerateAvatarIVRequest) (*heygen.GenerateVideoResponse, error)
	GetVideoStatus(ctx context.Context, videoID string) (*heygen.VideoStatusResponse, error)
}

// VoiceCloner is the subset of the Fish Audio client the service depends on
type VoiceCloner interface {
	GetModel(ctx context.Context, modelID string) (*fishaudio.Model, error)
	Synthesize(ctx context.Context, req *fishaudio.SynthesizeRequest) ([]byte, error)
}

// Messenger is the subset of the Whop client the service depends on
type Messenger interface {
	SendDirectMessage(ctx context.Context, toUserID, content string) (*whop.DirectMessage, error)
}

// Service coordinates video generation and delivery for new members
type Service struct {
	repos     repository.RepositoryManager
	generator VideoGenerator
	voice     VoiceCloner
	messenger Messenger
}

// NewService creates a new welcome video service
func NewService(repos repository.RepositoryManager, generator VideoGenerator, voice VoiceCloner, messenger Messenger) *Service {
	return &Service{
		repos:     repos,
		generator: generator,
		voice:     voice,
		messenger: messenger,
	}
}

// MemberJoined describes a new member event from the host platform
type MemberJoined struct {
	WhopUserID    string
	WhopMemberID  string
	WhopCompanyID string
	Name          string
	Email         *string
	Username      *string
	PlanName      *string
}

// OnMemberJoined records the member and starts welcome video generation.
// The call is idempotent: a member already known to the creator, or one who
// already has a video in any state, does not get a second generation.
func (s *Service) OnMemberJoined(ctx context.Context, creator *domain.Creator, event *MemberJoined) (*domain.Video, error) {
	if !creator.IsSetupComplete {
		return nil, fmt.Errorf("creator %s: %w", creator.ID, apperr.ErrSetupIncomplete)
	}

	companyID := event.WhopCompanyID
	customer, created, err := s.repos.Customer().CreateIfAbsent(ctx, &domain.CreateCustomerRequest{
		CreatorID:     creator.ID,
		WhopUserID:    event.WhopUserID,
		WhopMemberID:  event.WhopMemberID,
		WhopCompanyID: &companyID,
		Name:          event.Name,
		Email:         event.Email,
		Username:      event.Username,
		PlanName:      event.PlanName,
	})
	if err != nil {
		return nil, err
	}

	if !created {
		// Backfill the company scope on records created before it was known.
		if companyID != "" && customer.WhopCompanyID == nil {
			if customer, err = s.repos.Customer().Update(ctx, customer.ID, &domain.UpdateCustomerRequest{
				WhopCompanyID: &companyID,
			}); err != nil {
				return nil, err
			}
		}

		count, err := s.repos.Video().CountByCustomer(ctx, customer.ID)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			logger.Base().Info("member already has a welcome video, skipping",
				zap.String("customer_id", customer.ID),
				zap.String("whop_user_id", customer.WhopUserID))
			return nil, nil
		}
	}

	return s.GenerateWelcomeVideo(ctx, creator, customer, false)
}

// GenerateWelcomeVideo renders the creator's template for the customer and
// starts an avatar video generation job. The audio source is chosen in
// order: cloned voice synthesis when a trained model exists, the creator's
// raw audio sample when enabled, and stock text-to-speech otherwise. Failure
// of an earlier source falls through to the next.
func (s *Service) GenerateWelcomeVideo(ctx context.Context, creator *domain.Creator, customer *domain.Customer, test bool) (*domain.Video, error) {
	if !creator.IsSetupComplete {
		return nil, fmt.Errorf("creator %s: %w", creator.ID, apperr.ErrSetupIncomplete)
	}
	if creator.AvatarPhotoURL == nil || *creator.AvatarPhotoURL == "" {
		return nil, fmt.Errorf("creator %s: %w", creator.ID, apperr.ErrMissingAvatar)
	}
	avatarURL := *creator.AvatarPhotoURL

	script := template.Render(creator.MessageTemplate, template.Attrs{
		Name:     &customer.Name,
		Email:    customer.Email,
		Username: customer.Username,
		PlanName: customer.PlanName,
	})

	video, err := s.repos.Video().Create(ctx, &domain.CreateVideoRequest{
		CustomerID:         customer.ID,
		CreatorID:          creator.ID,
		PersonalizedScript: script,
		Status:             domain.VideoStatusGenerating,
	})
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("Welcome video for %s", customer.Name)
	jobID, err := s.startGeneration(ctx, creator, avatarURL, script, title, test)
	if err != nil {
		s.markFailed(ctx, video.ID, err)
		return nil, err
	}

	video, err = s.repos.Video().Update(ctx, video.ID, &domain.UpdateVideoRequest{
		HeyGenVideoID: &jobID,
	})
	if err != nil {
		return nil, err
	}

	logger.Base().Info("welcome video generation started",
		zap.String("video_id", video.ID),
		zap.String("customer_id", customer.ID),
		zap.String("job_id", jobID))
	return video, nil
}

// startGeneration runs the audio source strategy and returns the provider
// job ID.
func (s *Service) startGeneration(ctx context.Context, creator *domain.Creator, avatarURL, script, title string, test bool) (string, error) {
	if creator.FishAudioModelID != nil && *creator.FishAudioModelID != "" {
		jobID, err := s.generateWithClonedVoice(ctx, creator, avatarURL, script, title, test)
		if err == nil {
			return jobID, nil
		}
		logger.Base().Warn("cloned voice generation unavailable, falling back",
			zap.String("creator_id", creator.ID),
			zap.Error(err))
	}

	if creator.UseAudioForGeneration && creator.AudioFileURL != nil && *creator.AudioFileURL != "" {
		resp, err := s.generator.GenerateAvatarIV(ctx, &heygen.GenerateAvatarIVRequest{
			AvatarImageURL: avatarURL,
			InputAudioURL:  *creator.AudioFileURL,
			Test:           test,
			Title:          title,
		})
		if err != nil {
			return "", err
		}
		return resp.VideoID, nil
	}

	voiceID := creator.VoiceID
	if voiceID == "" {
		voiceID = config.DefaultVoiceID
	}
	resp, err := s.generator.GenerateAvatarIV(ctx, &heygen.GenerateAvatarIVRequest{
		AvatarImageURL: avatarURL,
		InputText:      script,
		VoiceID:        voiceID,
		Test:           test,
		Title:          title,
	})
	if err != nil {
		return "", err
	}
	return resp.VideoID, nil
}

// generateWithClonedVoice synthesizes the script with the trained voice
// model, uploads the audio to the video provider and starts generation
func (s *Service) generateWithClonedVoice(ctx context.Context, creator *domain.Creator, avatarURL, script, title string, test bool) (string, error) {
	model, err := s.voice.GetModel(ctx, *creator.FishAudioModelID)
	if err != nil {
		return "", err
	}
	if model.State != fishaudio.ModelStateTrained {
		return "", fmt.Errorf("voice model %s not trained yet (state %s)", model.ID, model.State)
	}

	audio, err := s.voice.Synthesize(ctx, &fishaudio.SynthesizeRequest{
		Text:        script,
		ReferenceID: *creator.FishAudioModelID,
		Format:      "mp3",
	})
	if err != nil {
		return "", err
	}

	asset, err := s.generator.UploadAsset(ctx, "audio/mp3", audio)
	if err != nil {
		return "", err
	}

	resp, err := s.generator.GenerateAvatarIV(ctx, &heygen.GenerateAvatarIVRequest{
		AvatarImageURL: avatarURL,
		InputAudioURL:  asset.URL,
		Test:           test,
		Title:          title,
	})
	if err != nil {
		return "", err
	}
	return resp.VideoID, nil
}

// MarkCompleted records the finished provider output on the video
func (s *Service) MarkCompleted(ctx context.Context, videoID string, videoURL, thumbnailURL *string) (*domain.Video, error) {
	status := domain.VideoStatusCompleted
	return s.repos.Video().Update(ctx, videoID, &domain.UpdateVideoRequest{
		Status:       &status,
		VideoURL:     videoURL,
		ThumbnailURL: thumbnailURL,
	})
}

// CompleteAndDeliver marks the video completed and immediately attempts
// delivery. Both the provider webhook and the reconciliation poller land
// here, so a delivery that fails now is retried by the next poll. Redelivered
// callbacks for a video that already moved past completed are ignored: status
// never walks backwards and the member never gets the DM twice.
func (s *Service) CompleteAndDeliver(ctx context.Context, videoID string, videoURL, thumbnailURL *string) error {
	video, err := s.repos.Video().GetByID(ctx, videoID)
	if err != nil {
		return err
	}

	if video.Status == domain.VideoStatusCompleted {
		// Interrupted between completion and delivery. Retry delivery only.
		return s.Deliver(ctx, video)
	}
	if !video.Status.CanTransition(domain.VideoStatusCompleted) {
		logger.Base().Info("ignoring completion for settled video",
			zap.String("video_id", video.ID),
			zap.String("status", string(video.Status)))
		return nil
	}

	if videoURL == nil || *videoURL == "" {
		err := fmt.Errorf("provider reported success without a video url")
		s.markFailed(ctx, video.ID, err)
		return err
	}

	video, err = s.MarkCompleted(ctx, videoID, videoURL, thumbnailURL)
	if err != nil {
		return err
	}

	return s.Deliver(ctx, video)
}

// Deliver sends the completed video to the member as a direct message. The
// DM channel is the member's platform user ID. A permission failure marks
// the video failed; the creator has to re-grant the messaging permission.
func (s *Service) Deliver(ctx context.Context, video *domain.Video) error {
	if video.VideoURL == nil || *video.VideoURL == "" {
		// A completed video without a URL can never be sent; failing it here
		// keeps it out of the poller's retry set.
		err := fmt.Errorf("video %s has no URL: %w", video.ID, apperr.ErrValidation)
		s.markFailed(ctx, video.ID, err)
		return err
	}

	customer, err := s.repos.Customer().GetByID(ctx, video.CustomerID)
	if err != nil {
		return err
	}

	content := fmt.Sprintf("Hi %s! 🎥 I recorded a personal welcome message just for you. Check it out: %s",
		customer.Name, *video.VideoURL)

	channelID := customer.WhopUserID
	message, err := s.messenger.SendDirectMessage(ctx, channelID, content)
	if err != nil {
		if apperr.IsPermissionDenied(err) {
			s.markFailed(ctx, video.ID, fmt.Errorf("missing permission message:write, re-approve app permissions: %w", err))
		} else {
			s.markFailed(ctx, video.ID, err)
		}
		return err
	}

	status := domain.VideoStatusSent
	if _, err := s.repos.Video().Update(ctx, video.ID, &domain.UpdateVideoRequest{
		Status:        &status,
		WhopChatID:    &channelID,
		WhopMessageID: &message.ID,
	}); err != nil {
		return err
	}

	sent := true
	if _, err := s.repos.Customer().Update(ctx, customer.ID, &domain.UpdateCustomerRequest{
		FirstVideoSent: &sent,
	}); err != nil {
		return err
	}

	logger.Base().Info("welcome video delivered",
		zap.String("video_id", video.ID),
		zap.String("customer_id", customer.ID),
		zap.String("message_id", message.ID))
	return nil
}

// MarkDelivered records platform confirmation that the DM reached the member
func (s *Service) MarkDelivered(ctx context.Context, videoID string) (*domain.Video, error) {
	status := domain.VideoStatusDelivered
	return s.repos.Video().Update(ctx, videoID, &domain.UpdateVideoRequest{Status: &status})
}

// MarkViewed records that the member opened the video and bumps the count
func (s *Service) MarkViewed(ctx context.Context, videoID string) (*domain.Video, error) {
	video, err := s.repos.Video().GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}

	status := domain.VideoStatusViewed
	count := video.ViewCount + 1
	return s.repos.Video().Update(ctx, videoID, &domain.UpdateVideoRequest{
		Status:    &status,
		ViewCount: &count,
	})
}

// markFailed records a failure reason on the video. Best effort: the
// original error is what callers report, not a bookkeeping failure.
func (s *Service) markFailed(ctx context.Context, videoID string, cause error) {
	status := domain.VideoStatusFailed
	message := cause.Error()
	if _, err := s.repos.Video().Update(ctx, videoID, &domain.UpdateVideoRequest{
		Status:       &status,
		ErrorMessage: &message,
	}); err != nil {
		logger.Base().Error("failed to record video failure",
			zap.String("video_id", videoID),
			zap.Error(err))
	}
}

// Reconcile checks one video against the provider and advances it. Videos in
// generating poll the provider job; videos stuck in completed retry delivery.
func (s *Service) Reconcile(ctx context.Context, video *domain.Video) error {
	switch video.Status {
	case domain.VideoStatusGenerating:
		return s.reconcileGenerating(ctx, video)
	case domain.VideoStatusCompleted:
		return s.Deliver(ctx, video)
	default:
		return nil
	}
}

func (s *Service) reconcileGenerating(ctx context.Context, video *domain.Video) error {
	if video.HeyGenVideoID == nil || *video.HeyGenVideoID == "" {
		// Generation was never started; nothing will ever finish this job.
		err := fmt.Errorf("video has no generation job id")
		s.markFailed(ctx, video.ID, err)
		return err
	}

	status, err := s.generator.GetVideoStatus(ctx, *video.HeyGenVideoID)
	if err != nil {
		return err
	}

	switch status.Status {
	case heygen.JobStatusCompleted:
		return s.CompleteAndDeliver(ctx, video.ID, status.VideoURL, status.ThumbnailURL)
	case heygen.JobStatusFailed:
		cause := fmt.Errorf("generation failed")
		if status.Error != nil {
			cause = fmt.Errorf("generation failed: %s", status.Error.Message)
		}
		s.markFailed(ctx, video.ID, cause)
		return nil
	default:
		// Still in flight.
		return nil
	}
}
