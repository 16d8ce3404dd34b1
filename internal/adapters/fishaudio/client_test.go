package fishaudio

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

func TestCreateModelSendsMultipartForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/model", r.URL.Path)
		assert.Equal(t, "Bearer fish-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "My Voice", r.FormValue("title"))
		assert.Equal(t, "private", r.FormValue("visibility"))
		assert.Equal(t, "tts", r.FormValue("type"))
		assert.Equal(t, "fast", r.FormValue("train_mode"))

		file, header, err := r.FormFile("voices")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "sample.webm", header.Filename)
		sample, _ := io.ReadAll(file)
		assert.Equal(t, []byte("voice-bytes"), sample)

		json.NewEncoder(w).Encode(map[string]string{"_id": "model-1", "state": "training"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fish-key")
	model, err := c.CreateModel(context.Background(), &CreateModelRequest{
		Title:       "My Voice",
		FileName:    "sample.webm",
		VoiceSample: []byte("voice-bytes"),
	})
	require.NoError(t, err)

	assert.Equal(t, "model-1", model.ID)
	assert.Equal(t, ModelStateTraining, model.State)
}

func TestGetModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/model/model-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"_id": "model-1", "state": "trained"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fish-key")
	model, err := c.GetModel(context.Background(), "model-1")
	require.NoError(t, err)
	assert.Equal(t, ModelStateTrained, model.State)
}

func TestSynthesizeReturnsAudioBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tts", r.URL.Path)

		var req SynthesizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hi Ada!", req.Text)
		assert.Equal(t, "model-1", req.ReferenceID)
		assert.Equal(t, "mp3", req.Format)

		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fish-key")
	audio, err := c.Synthesize(context.Background(), &SynthesizeRequest{
		Text:        "Hi Ada!",
		ReferenceID: "model-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
}

func TestSynthesizeNon2xxBecomesExternalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("credits exhausted"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fish-key")
	_, err := c.Synthesize(context.Background(), &SynthesizeRequest{Text: "hi", ReferenceID: "model-1"})
	require.Error(t, err)

	var ext *apperr.ExternalServiceError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "fish-audio", ext.Service)
	assert.Equal(t, "credits exhausted", ext.Message)
}
