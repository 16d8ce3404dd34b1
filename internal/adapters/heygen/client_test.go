package heygen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dyncarl8-oss/auto-welcome/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadAssetSendsRawBody(t *testing.T) {
	var gotContentType, gotAPIKey string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/asset", r.URL.Path)
		gotContentType = r.Header.Get("Content-Type")
		gotAPIKey = r.Header.Get("X-Api-Key")
		gotBody, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 100,
			"data": map[string]string{"id": "asset-1", "url": "https://resource.heygen.ai/asset-1"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "key-1")
	asset, err := c.UploadAsset(context.Background(), "video/webm", []byte("webm-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "asset-1", asset.AssetID)
	assert.Equal(t, "https://resource.heygen.ai/asset-1", asset.URL)
	assert.Equal(t, "video/webm", gotContentType)
	assert.Equal(t, "key-1", gotAPIKey)
	assert.Equal(t, []byte("webm-bytes"), gotBody)
}

func TestGenerateAvatarIVDecodesJobID(t *testing.T) {
	var gotReq GenerateAvatarIVRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/video/av4/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 100,
			"data": map[string]string{"video_id": "job-1"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "key-1")
	resp, err := c.GenerateAvatarIV(context.Background(), &GenerateAvatarIVRequest{
		AvatarImageURL: "https://cdn.example/avatar.png",
		InputText:      "Hi Ada!",
		VoiceID:        "voice-1",
		Test:           true,
	})
	require.NoError(t, err)

	assert.Equal(t, "job-1", resp.VideoID)
	assert.Equal(t, "https://cdn.example/avatar.png", gotReq.AvatarImageURL)
	assert.Equal(t, "Hi Ada!", gotReq.InputText)
	assert.True(t, gotReq.Test)
}

func TestGetVideoStatusPassesJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/video_status.get", r.URL.Path)
		assert.Equal(t, "job-1", r.URL.Query().Get("video_id"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 100,
			"data": map[string]interface{}{
				"status":    "completed",
				"video_url": "https://videos.example/v1.mp4",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "key-1")
	status, err := c.GetVideoStatus(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, JobStatusCompleted, status.Status)
	require.NotNil(t, status.VideoURL)
	assert.Equal(t, "https://videos.example/v1.mp4", *status.VideoURL)
}

func TestNon2xxBecomesExternalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "key-1")
	_, err := c.GetVideoStatus(context.Background(), "job-1")
	require.Error(t, err)

	var ext *apperr.ExternalServiceError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "heygen", ext.Service)
	assert.Equal(t, http.StatusTooManyRequests, ext.StatusCode)
}

func TestListAvatarGroups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/avatar_group.list", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 100,
			"data": map[string]interface{}{
				"avatar_group_list": []map[string]string{
					{"id": "group-1", "name": "My Avatar", "train_status": "ready"},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "key-1")
	groups, err := c.ListAvatarGroups(context.Background())
	require.NoError(t, err)

	require.Len(t, groups.AvatarGroupList, 1)
	assert.Equal(t, "group-1", groups.AvatarGroupList[0].ID)
}
