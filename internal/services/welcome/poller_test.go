package welcome

import (
	"context"
	"testing"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/heygen"
	"github.com/dyncarl8-oss/auto-welcome/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerReconcilesOpenVideos(t *testing.T) {
	svc, repos, gen, _, msg := newTestService()
	generatingVideo(repos, strPtr("job-1"))
	gen.statusResp = &heygen.VideoStatusResponse{
		Status:   heygen.JobStatusCompleted,
		VideoURL: strPtr("https://videos.example/v1.mp4"),
	}

	p := NewPoller(svc, repos, nil, 30*time.Second)
	p.runOnce(context.Background())

	video := repos.videos.videos["video-1"]
	assert.Equal(t, domain.VideoStatusSent, video.Status)
	require.Len(t, msg.sent, 1)
}

func TestPollerIgnoresSettledVideos(t *testing.T) {
	svc, repos, gen, _, _ := newTestService()
	repos.videos.videos["video-1"] = &domain.Video{
		ID:     "video-1",
		Status: domain.VideoStatusSent,
	}
	repos.videos.videos["video-2"] = &domain.Video{
		ID:     "video-2",
		Status: domain.VideoStatusFailed,
	}

	p := NewPoller(svc, repos, nil, 30*time.Second)
	p.runOnce(context.Background())

	assert.Nil(t, gen.statusResp)
	assert.Equal(t, domain.VideoStatusSent, repos.videos.videos["video-1"].Status)
	assert.Equal(t, domain.VideoStatusFailed, repos.videos.videos["video-2"].Status)
}

func TestPollerStartStop(t *testing.T) {
	svc, repos, _, _, _ := newTestService()
	p := NewPoller(svc, repos, nil, 10*time.Millisecond)

	p.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	p.Stop()

	// Stop is idempotent.
	p.Stop()
}
