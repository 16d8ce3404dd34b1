package welcome

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/fishaudio"
	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/heygen"
	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/whop"
	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/dyncarl8-oss/auto-welcome/internal/domain"
	"github.com/dyncarl8-oss/auto-welcome/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- In-memory repositories --

type fakeCreatorRepo struct {
	creators map[string]*domain.Creator
}

func (r *fakeCreatorRepo) Create(ctx context.Context, req *domain.CreateCreatorRequest) (*domain.Creator, error) {
	c := &domain.Creator{
		ID:              fmt.Sprintf("creator-%d", len(r.creators)+1),
		WhopUserID:      req.WhopUserID,
		WhopCompanyID:   req.WhopCompanyID,
		MessageTemplate: req.MessageTemplate,
		VoiceID:         req.VoiceID,
	}
	r.creators[c.ID] = c
	return c, nil
}

func (r *fakeCreatorRepo) GetByID(ctx context.Context, id string) (*domain.Creator, error) {
	if c, ok := r.creators[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("creator %s: %w", id, apperr.ErrNotFound)
}

func (r *fakeCreatorRepo) GetByWhopUserID(ctx context.Context, whopUserID string) (*domain.Creator, error) {
	for _, c := range r.creators {
		if c.WhopUserID == whopUserID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("creator for user %s: %w", whopUserID, apperr.ErrNotFound)
}

func (r *fakeCreatorRepo) GetByCompanyID(ctx context.Context, companyID string) (*domain.Creator, error) {
	for _, c := range r.creators {
		if c.WhopCompanyID == companyID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("creator for company %s: %w", companyID, apperr.ErrNotFound)
}

func (r *fakeCreatorRepo) GetAll(ctx context.Context) ([]*domain.Creator, error) {
	out := make([]*domain.Creator, 0, len(r.creators))
	for _, c := range r.creators {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeCreatorRepo) Update(ctx context.Context, id string, req *domain.UpdateCreatorRequest) (*domain.Creator, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.MessageTemplate != nil {
		c.MessageTemplate = *req.MessageTemplate
	}
	if req.AvatarPhotoURL != nil {
		c.AvatarPhotoURL = req.AvatarPhotoURL
	}
	if req.IsSetupComplete != nil {
		c.IsSetupComplete = *req.IsSetupComplete
	}
	return c, nil
}

func (r *fakeCreatorRepo) ResetOnboarding(ctx context.Context, id string) (*domain.Creator, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.AvatarPhotoURL = nil
	c.AudioFileURL = nil
	c.FishAudioModelID = nil
	c.IsSetupComplete = false
	return c, nil
}

type fakeCustomerRepo struct {
	customers map[string]*domain.Customer
}

func (r *fakeCustomerRepo) CreateIfAbsent(ctx context.Context, req *domain.CreateCustomerRequest) (*domain.Customer, bool, error) {
	for _, c := range r.customers {
		if c.CreatorID == req.CreatorID && c.WhopUserID == req.WhopUserID {
			return c, false, nil
		}
	}
	c := &domain.Customer{
		ID:            fmt.Sprintf("customer-%d", len(r.customers)+1),
		CreatorID:     req.CreatorID,
		WhopUserID:    req.WhopUserID,
		WhopMemberID:  req.WhopMemberID,
		WhopCompanyID: req.WhopCompanyID,
		Name:          req.Name,
		Email:         req.Email,
		Username:      req.Username,
		PlanName:      req.PlanName,
		JoinedAt:      time.Now().UTC(),
	}
	r.customers[c.ID] = c
	return c, true, nil
}

func (r *fakeCustomerRepo) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	if c, ok := r.customers[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("customer %s: %w", id, apperr.ErrNotFound)
}

func (r *fakeCustomerRepo) GetByWhopUserID(ctx context.Context, creatorID, whopUserID string) (*domain.Customer, error) {
	for _, c := range r.customers {
		if c.CreatorID == creatorID && c.WhopUserID == whopUserID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("customer %s: %w", whopUserID, apperr.ErrNotFound)
}

func (r *fakeCustomerRepo) GetByCreator(ctx context.Context, creatorID string) ([]*domain.Customer, error) {
	var out []*domain.Customer
	for _, c := range r.customers {
		if c.CreatorID == creatorID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCustomerRepo) Update(ctx context.Context, id string, req *domain.UpdateCustomerRequest) (*domain.Customer, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.WhopCompanyID != nil {
		c.WhopCompanyID = req.WhopCompanyID
	}
	if req.FirstVideoSent != nil {
		c.FirstVideoSent = *req.FirstVideoSent
	}
	return c, nil
}

type fakeVideoRepo struct {
	videos map[string]*domain.Video
}

func (r *fakeVideoRepo) Create(ctx context.Context, req *domain.CreateVideoRequest) (*domain.Video, error) {
	status := req.Status
	if status == "" {
		status = domain.VideoStatusPending
	}
	v := &domain.Video{
		ID:                 fmt.Sprintf("video-%d", len(r.videos)+1),
		CustomerID:         req.CustomerID,
		CreatorID:          req.CreatorID,
		PersonalizedScript: req.PersonalizedScript,
		Status:             status,
		CreatedAt:          time.Now().UTC(),
	}
	r.videos[v.ID] = v
	return v, nil
}

func (r *fakeVideoRepo) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	if v, ok := r.videos[id]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("video %s: %w", id, apperr.ErrNotFound)
}

func (r *fakeVideoRepo) GetByHeyGenID(ctx context.Context, heygenVideoID string) (*domain.Video, error) {
	for _, v := range r.videos {
		if v.HeyGenVideoID != nil && *v.HeyGenVideoID == heygenVideoID {
			return v, nil
		}
	}
	return nil, fmt.Errorf("video for job %s: %w", heygenVideoID, apperr.ErrNotFound)
}

func (r *fakeVideoRepo) GetByCustomer(ctx context.Context, customerID string) ([]*domain.Video, error) {
	var out []*domain.Video
	for _, v := range r.videos {
		if v.CustomerID == customerID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *fakeVideoRepo) GetByCreator(ctx context.Context, creatorID string) ([]*domain.Video, error) {
	var out []*domain.Video
	for _, v := range r.videos {
		if v.CreatorID == creatorID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *fakeVideoRepo) GetByStatuses(ctx context.Context, statuses ...domain.VideoStatus) ([]*domain.Video, error) {
	var out []*domain.Video
	for _, v := range r.videos {
		for _, s := range statuses {
			if v.Status == s {
				out = append(out, v)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeVideoRepo) CountByCustomer(ctx context.Context, customerID string) (int64, error) {
	videos, _ := r.GetByCustomer(ctx, customerID)
	return int64(len(videos)), nil
}

func (r *fakeVideoRepo) Update(ctx context.Context, id string, req *domain.UpdateVideoRequest) (*domain.Video, error) {
	v, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != nil {
		v.Status = *req.Status
	}
	if req.HeyGenVideoID != nil {
		v.HeyGenVideoID = req.HeyGenVideoID
	}
	if req.VideoURL != nil {
		v.VideoURL = req.VideoURL
	}
	if req.ThumbnailURL != nil {
		v.ThumbnailURL = req.ThumbnailURL
	}
	if req.WhopChatID != nil {
		v.WhopChatID = req.WhopChatID
	}
	if req.WhopMessageID != nil {
		v.WhopMessageID = req.WhopMessageID
	}
	if req.ErrorMessage != nil {
		v.ErrorMessage = req.ErrorMessage
	}
	if req.ViewCount != nil {
		v.ViewCount = *req.ViewCount
	}
	return v, nil
}

type fakeRepos struct {
	creators  *fakeCreatorRepo
	customers *fakeCustomerRepo
	videos    *fakeVideoRepo
}

func newFakeRepos() *fakeRepos {
	return &fakeRepos{
		creators:  &fakeCreatorRepo{creators: map[string]*domain.Creator{}},
		customers: &fakeCustomerRepo{customers: map[string]*domain.Customer{}},
		videos:    &fakeVideoRepo{videos: map[string]*domain.Video{}},
	}
}

func (r *fakeRepos) Creator() repository.CreatorRepository   { return r.creators }
func (r *fakeRepos) Customer() repository.CustomerRepository { return r.customers }
func (r *fakeRepos) Video() repository.VideoRepository       { return r.videos }
func (r *fakeRepos) Ping(ctx context.Context) error          { return nil }
func (r *fakeRepos) Close() error                            { return nil }

// -- Provider fakes --

type fakeGenerator struct {
	uploadedAssets []string
	requests       []*heygen.GenerateAvatarIVRequest
	generateErr    error
	statusResp     *heygen.VideoStatusResponse
	statusErr      error
}

func (g *fakeGenerator) UploadAsset(ctx context.Context, contentType string, data []byte) (*heygen.UploadAssetResponse, error) {
	g.uploadedAssets = append(g.uploadedAssets, contentType)
	return &heygen.UploadAssetResponse{AssetID: "asset-1", URL: "https://assets.example/asset-1"}, nil
}

func (g *fakeGenerator) GenerateAvatarIV(ctx context.Context, req *heygen.GenerateAvatarIVRequest) (*heygen.GenerateVideoResponse, error) {
	g.requests = append(g.requests, req)
	if g.generateErr != nil {
		return nil, g.generateErr
	}
	return &heygen.GenerateVideoResponse{VideoID: "job-1"}, nil
}

func (g *fakeGenerator) GetVideoStatus(ctx context.Context, videoID string) (*heygen.VideoStatusResponse, error) {
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return g.statusResp, nil
}

type fakeVoice struct {
	model    *fishaudio.Model
	modelErr error
	synthErr error
}

func (v *fakeVoice) GetModel(ctx context.Context, modelID string) (*fishaudio.Model, error) {
	if v.modelErr != nil {
		return nil, v.modelErr
	}
	return v.model, nil
}

func (v *fakeVoice) Synthesize(ctx context.Context, req *fishaudio.SynthesizeRequest) ([]byte, error) {
	if v.synthErr != nil {
		return nil, v.synthErr
	}
	return []byte("audio-bytes"), nil
}

type fakeMessenger struct {
	sent    []string
	channel string
	sendErr error
}

func (m *fakeMessenger) SendDirectMessage(ctx context.Context, toUserID, content string) (*whop.DirectMessage, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.channel = toUserID
	m.sent = append(m.sent, content)
	return &whop.DirectMessage{ID: "msg-1"}, nil
}

// -- Helpers --

func strPtr(s string) *string { return &s }

func completeCreator() *domain.Creator {
	return &domain.Creator{
		ID:              "creator-1",
		WhopUserID:      "user_owner",
		WhopCompanyID:   "biz_1",
		MessageTemplate: "Hi {name}! Welcome aboard.",
		AvatarPhotoURL:  strPtr("https://cdn.example/avatar.png"),
		VoiceID:         "voice-stock",
		IsSetupComplete: true,
	}
}

func newTestService() (*Service, *fakeRepos, *fakeGenerator, *fakeVoice, *fakeMessenger) {
	repos := newFakeRepos()
	gen := &fakeGenerator{}
	voice := &fakeVoice{}
	msg := &fakeMessenger{}
	return NewService(repos, gen, voice, msg), repos, gen, voice, msg
}

// -- OnMemberJoined --

func TestOnMemberJoinedRequiresCompleteSetup(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	creator := completeCreator()
	creator.IsSetupComplete = false

	_, err := svc.OnMemberJoined(context.Background(), creator, &MemberJoined{
		WhopUserID:   "user_1",
		WhopMemberID: "mem_1",
		Name:         "Ada",
	})
	assert.ErrorIs(t, err, apperr.ErrSetupIncomplete)
}

func TestOnMemberJoinedStartsGeneration(t *testing.T) {
	svc, repos, gen, _, _ := newTestService()
	creator := completeCreator()
	repos.creators.creators[creator.ID] = creator

	video, err := svc.OnMemberJoined(context.Background(), creator, &MemberJoined{
		WhopUserID:    "user_1",
		WhopMemberID:  "mem_1",
		WhopCompanyID: "biz_1",
		Name:          "Ada",
	})
	require.NoError(t, err)
	require.NotNil(t, video)

	assert.Equal(t, domain.VideoStatusGenerating, video.Status)
	require.NotNil(t, video.HeyGenVideoID)
	assert.Equal(t, "job-1", *video.HeyGenVideoID)
	assert.Equal(t, "Hi Ada! Welcome aboard.", video.PersonalizedScript)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, "https://cdn.example/avatar.png", req.AvatarImageURL)
	assert.Equal(t, "Hi Ada! Welcome aboard.", req.InputText)
	assert.Equal(t, "voice-stock", req.VoiceID)
	assert.False(t, req.Test)
}

func TestOnMemberJoinedIsIdempotent(t *testing.T) {
	svc, repos, gen, _, _ := newTestService()
	creator := completeCreator()
	repos.creators.creators[creator.ID] = creator

	event := &MemberJoined{
		WhopUserID:    "user_1",
		WhopMemberID:  "mem_1",
		WhopCompanyID: "biz_1",
		Name:          "Ada",
	}
	first, err := svc.OnMemberJoined(context.Background(), creator, event)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Replayed join event for the same member does not start another job.
	second, err := svc.OnMemberJoined(context.Background(), creator, event)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, gen.requests, 1)
}

func TestOnMemberJoinedBackfillsCompany(t *testing.T) {
	svc, repos, _, _, _ := newTestService()
	creator := completeCreator()
	repos.creators.creators[creator.ID] = creator
	repos.customers.customers["customer-1"] = &domain.Customer{
		ID:           "customer-1",
		CreatorID:    creator.ID,
		WhopUserID:   "user_1",
		WhopMemberID: "mem_1",
		Name:         "Ada",
	}

	_, err := svc.OnMemberJoined(context.Background(), creator, &MemberJoined{
		WhopUserID:    "user_1",
		WhopMemberID:  "mem_1",
		WhopCompanyID: "biz_1",
		Name:          "Ada",
	})
	require.NoError(t, err)

	customer := repos.customers.customers["customer-1"]
	require.NotNil(t, customer.WhopCompanyID)
	assert.Equal(t, "biz_1", *customer.WhopCompanyID)
}

// -- GenerateWelcomeVideo --

func TestGenerateWelcomeVideoRequiresCompleteSetup(t *testing.T) {
	svc, repos, gen, _, _ := newTestService()
	creator := completeCreator()
	creator.IsSetupComplete = false

	// Manual triggers call this directly, without the join-event gate.
	_, err := svc.GenerateWelcomeVideo(context.Background(), creator, &domain.Customer{ID: "customer-1", Name: "Ada"}, true)
	assert.ErrorIs(t, err, apperr.ErrSetupIncomplete)
	assert.Empty(t, repos.videos.videos)
	assert.Empty(t, gen.requests)
}

func TestGenerateWelcomeVideoRequiresAvatar(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	creator := completeCreator()
	creator.AvatarPhotoURL = nil

	_, err := svc.GenerateWelcomeVideo(context.Background(), creator, &domain.Customer{ID: "customer-1", Name: "Ada"}, false)
	assert.ErrorIs(t, err, apperr.ErrMissingAvatar)
}

func TestGenerateWelcomeVideoUsesClonedVoice(t *testing.T) {
	svc, repos, gen, voice, _ := newTestService()
	creator := completeCreator()
	creator.FishAudioModelID = strPtr("model-1")
	repos.creators.creators[creator.ID] = creator
	voice.model = &fishaudio.Model{ID: "model-1", State: fishaudio.ModelStateTrained}

	_, err := svc.GenerateWelcomeVideo(context.Background(), creator, &domain.Customer{ID: "customer-1", Name: "Ada"}, false)
	require.NoError(t, err)

	require.Len(t, gen.uploadedAssets, 1)
	assert.Equal(t, "audio/mp3", gen.uploadedAssets[0])
	require.Len(t, gen.requests, 1)
	assert.Equal(t, "https://assets.example/asset-1", gen.requests[0].InputAudioURL)
	assert.Empty(t, gen.requests[0].InputText)
}

func TestGenerateWelcomeVideoFallsBackWhenModelUntrained(t *testing.T) {
	svc, repos, gen, voice, _ := newTestService()
	creator := completeCreator()
	creator.FishAudioModelID = strPtr("model-1")
	repos.creators.creators[creator.ID] = creator
	voice.model = &fishaudio.Model{ID: "model-1", State: fishaudio.ModelStateTraining}

	_, err := svc.GenerateWelcomeVideo(context.Background(), creator, &domain.Customer{ID: "customer-1", Name: "Ada"}, false)
	require.NoError(t, err)

	require.Len(t, gen.requests, 1)
	assert.Empty(t, gen.requests[0].InputAudioURL)
	assert.Equal(t, "voice-stock", gen.requests[0].VoiceID)
}

func TestGenerateWelcomeVideoFallsBackToAudioSample(t *testing.T) {
	svc, repos, gen, voice, _ := newTestService()
	creator := completeCreator()
	creator.FishAudioModelID = strPtr("model-1")
	creator.UseAudioForGeneration = true
	creator.AudioFileURL = strPtr("https://assets.example/sample.webm")
	repos.creators.creators[creator.ID] = creator
	voice.modelErr = errors.New("provider down")

	_, err := svc.GenerateWelcomeVideo(context.Background(), creator, &domain.Customer{ID: "customer-1", Name: "Ada"}, false)
	require.NoError(t, err)

	require.Len(t, gen.requests, 1)
	assert.Equal(t, "https://assets.example/sample.webm", gen.requests[0].InputAudioURL)
}

func TestGenerateWelcomeVideoMarksFailedOnProviderError(t *testing.T) {
	svc, repos, gen, _, _ := newTestService()
	creator := completeCreator()
	repos.creators.creators[creator.ID] = creator
	gen.generateErr = errors.New("quota exceeded")

	_, err := svc.GenerateWelcomeVideo(context.Background(), creator, &domain.Customer{ID: "customer-1", Name: "Ada"}, false)
	require.Error(t, err)

	videos, _ := repos.videos.GetByCustomer(context.Background(), "customer-1")
	require.Len(t, videos, 1)
	assert.Equal(t, domain.VideoStatusFailed, videos[0].Status)
	require.NotNil(t, videos[0].ErrorMessage)
	assert.Contains(t, *videos[0].ErrorMessage, "quota exceeded")
}

// -- Deliver --

func deliverableVideo(repos *fakeRepos) *domain.Video {
	repos.customers.customers["customer-1"] = &domain.Customer{
		ID:         "customer-1",
		CreatorID:  "creator-1",
		WhopUserID: "user_1",
		Name:       "Ada",
	}
	v := &domain.Video{
		ID:         "video-1",
		CustomerID: "customer-1",
		CreatorID:  "creator-1",
		Status:     domain.VideoStatusCompleted,
		VideoURL:   strPtr("https://videos.example/v1.mp4"),
	}
	repos.videos.videos[v.ID] = v
	return v
}

func TestDeliverRequiresVideoURL(t *testing.T) {
	svc, repos, _, _, msg := newTestService()
	video := deliverableVideo(repos)
	video.VideoURL = nil

	err := svc.Deliver(context.Background(), video)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// The video must not linger in completed where the poller would retry
	// it forever.
	assert.Equal(t, domain.VideoStatusFailed, repos.videos.videos["video-1"].Status)
	assert.Empty(t, msg.sent)
}

func TestDeliverSendsDMAndMarksSent(t *testing.T) {
	svc, repos, _, _, msg := newTestService()
	video := deliverableVideo(repos)

	err := svc.Deliver(context.Background(), video)
	require.NoError(t, err)

	assert.Equal(t, "user_1", msg.channel)
	require.Len(t, msg.sent, 1)
	assert.Contains(t, msg.sent[0], "Hi Ada!")
	assert.Contains(t, msg.sent[0], "https://videos.example/v1.mp4")

	assert.Equal(t, domain.VideoStatusSent, video.Status)
	require.NotNil(t, video.WhopMessageID)
	assert.Equal(t, "msg-1", *video.WhopMessageID)
	assert.True(t, repos.customers.customers["customer-1"].FirstVideoSent)
}

func TestDeliverPermissionDeniedMarksFailed(t *testing.T) {
	svc, repos, _, _, msg := newTestService()
	video := deliverableVideo(repos)
	msg.sendErr = apperr.External("whop", 403, "missing permission message:write")

	err := svc.Deliver(context.Background(), video)
	require.Error(t, err)

	assert.Equal(t, domain.VideoStatusFailed, video.Status)
	require.NotNil(t, video.ErrorMessage)
	assert.Contains(t, *video.ErrorMessage, "re-approve app permissions")
}

func TestDeliverTransientErrorMarksFailed(t *testing.T) {
	svc, repos, _, _, msg := newTestService()
	video := deliverableVideo(repos)
	msg.sendErr = apperr.External("whop", 500, "internal error")

	err := svc.Deliver(context.Background(), video)
	require.Error(t, err)

	assert.Equal(t, domain.VideoStatusFailed, video.Status)
	require.NotNil(t, video.ErrorMessage)
	assert.NotContains(t, *video.ErrorMessage, "re-approve")
}

// -- CompleteAndDeliver --

func TestCompleteAndDeliverIgnoresAlreadySentVideo(t *testing.T) {
	svc, repos, _, _, msg := newTestService()
	video := deliverableVideo(repos)
	video.Status = domain.VideoStatusSent

	// A redelivered provider callback must not regress the status or DM the
	// member a second time.
	err := svc.CompleteAndDeliver(context.Background(), video.ID, strPtr("https://videos.example/v1.mp4"), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.VideoStatusSent, repos.videos.videos["video-1"].Status)
	assert.Empty(t, msg.sent)
}

func TestCompleteAndDeliverIgnoresFailedVideo(t *testing.T) {
	svc, repos, _, _, msg := newTestService()
	video := deliverableVideo(repos)
	video.Status = domain.VideoStatusFailed

	err := svc.CompleteAndDeliver(context.Background(), video.ID, strPtr("https://videos.example/v1.mp4"), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.VideoStatusFailed, repos.videos.videos["video-1"].Status)
	assert.Empty(t, msg.sent)
}

func TestCompleteAndDeliverFailsOnSuccessWithoutURL(t *testing.T) {
	svc, repos, _, _, msg := newTestService()
	repos.customers.customers["customer-1"] = &domain.Customer{
		ID:         "customer-1",
		WhopUserID: "user_1",
		Name:       "Ada",
	}
	repos.videos.videos["video-1"] = &domain.Video{
		ID:         "video-1",
		CustomerID: "customer-1",
		Status:     domain.VideoStatusGenerating,
	}

	err := svc.CompleteAndDeliver(context.Background(), "video-1", nil, nil)
	require.Error(t, err)

	assert.Equal(t, domain.VideoStatusFailed, repos.videos.videos["video-1"].Status)
	assert.Empty(t, msg.sent)
}

// -- Reconcile --

func generatingVideo(repos *fakeRepos, jobID *string) *domain.Video {
	repos.customers.customers["customer-1"] = &domain.Customer{
		ID:         "customer-1",
		CreatorID:  "creator-1",
		WhopUserID: "user_1",
		Name:       "Ada",
	}
	v := &domain.Video{
		ID:            "video-1",
		CustomerID:    "customer-1",
		CreatorID:     "creator-1",
		Status:        domain.VideoStatusGenerating,
		HeyGenVideoID: jobID,
	}
	repos.videos.videos[v.ID] = v
	return v
}

func TestReconcileFailsVideoWithoutJobID(t *testing.T) {
	svc, repos, _, _, _ := newTestService()
	video := generatingVideo(repos, nil)

	err := svc.Reconcile(context.Background(), video)
	require.Error(t, err)
	assert.Equal(t, domain.VideoStatusFailed, video.Status)
}

func TestReconcileDeliversCompletedJob(t *testing.T) {
	svc, repos, gen, _, msg := newTestService()
	video := generatingVideo(repos, strPtr("job-1"))
	gen.statusResp = &heygen.VideoStatusResponse{
		Status:   heygen.JobStatusCompleted,
		VideoURL: strPtr("https://videos.example/v1.mp4"),
	}

	err := svc.Reconcile(context.Background(), video)
	require.NoError(t, err)

	assert.Equal(t, domain.VideoStatusSent, video.Status)
	require.Len(t, msg.sent, 1)
	assert.Contains(t, msg.sent[0], "https://videos.example/v1.mp4")
}

func TestReconcileMarksFailedJob(t *testing.T) {
	svc, repos, gen, _, _ := newTestService()
	video := generatingVideo(repos, strPtr("job-1"))
	gen.statusResp = &heygen.VideoStatusResponse{
		Status: heygen.JobStatusFailed,
		Error:  &heygen.VideoStatusError{Message: "face not detected"},
	}

	err := svc.Reconcile(context.Background(), video)
	require.NoError(t, err)

	assert.Equal(t, domain.VideoStatusFailed, video.Status)
	require.NotNil(t, video.ErrorMessage)
	assert.Contains(t, *video.ErrorMessage, "face not detected")
}

func TestReconcileLeavesInFlightJobAlone(t *testing.T) {
	svc, repos, gen, _, _ := newTestService()
	video := generatingVideo(repos, strPtr("job-1"))
	gen.statusResp = &heygen.VideoStatusResponse{Status: heygen.JobStatusProcessing}

	err := svc.Reconcile(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStatusGenerating, video.Status)
}

func TestReconcileRetriesStuckDelivery(t *testing.T) {
	svc, repos, _, _, msg := newTestService()
	video := deliverableVideo(repos)

	err := svc.Reconcile(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStatusSent, video.Status)
	assert.Len(t, msg.sent, 1)
}

// -- View tracking --

func TestMarkDeliveredRecordsReadReceipt(t *testing.T) {
	svc, repos, _, _, _ := newTestService()
	repos.videos.videos["video-1"] = &domain.Video{
		ID:     "video-1",
		Status: domain.VideoStatusSent,
	}

	video, err := svc.MarkDelivered(context.Background(), "video-1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStatusDelivered, video.Status)
}

func TestMarkViewedIncrementsCount(t *testing.T) {
	svc, repos, _, _, _ := newTestService()
	repos.videos.videos["video-1"] = &domain.Video{
		ID:        "video-1",
		Status:    domain.VideoStatusDelivered,
		ViewCount: 2,
	}

	video, err := svc.MarkViewed(context.Background(), "video-1")
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStatusViewed, video.Status)
	assert.Equal(t, 3, video.ViewCount)
}
