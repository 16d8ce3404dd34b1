package handler

import (
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// uploadContentTypes maps file extensions of stored uploads to their MIME
// types
var uploadContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".mp4":  "video/mp4",
}

// StaticHandler serves locally stored uploads (avatar photos and voice
// samples) over HTTP
type StaticHandler struct {
	uploadDir string
}

// NewStaticHandler creates a new static file handler
func NewStaticHandler(uploadDir string) *StaticHandler {
	return &StaticHandler{uploadDir: uploadDir}
}

// SetupStaticRoutes configures the upload file routes
func (h *StaticHandler) SetupStaticRoutes(router *mux.Router) {
	router.PathPrefix("/" + filepath.ToSlash(h.uploadDir) + "/").Handler(http.HandlerFunc(h.serveUpload)).Methods("GET")
	logger.Base().Info("📁 Upload file routes registered", zap.String("dir", h.uploadDir))
}

func (h *StaticHandler) serveUpload(w http.ResponseWriter, r *http.Request) {
	// Security: prevent directory traversal
	if strings.Contains(r.URL.Path, "..") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	prefix := "/" + filepath.ToSlash(h.uploadDir) + "/"
	name := strings.TrimPrefix(r.URL.Path, prefix)
	if name == r.URL.Path || name == "" || strings.Contains(name, "/") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	filePath := filepath.Join(h.uploadDir, name)

	if contentType, ok := uploadContentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		w.Header().Set("Content-Type", contentType)
	}
	h.setCacheHeaders(w, r, filePath)

	http.ServeFile(w, r, filePath)
}

// setCacheHeaders sets ETag and cache control headers
func (h *StaticHandler) setCacheHeaders(w http.ResponseWriter, r *http.Request, filePath string) {
	etag := h.generateETag(filePath)
	w.Header().Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
	w.Header().Set("Vary", "Accept-Encoding, If-None-Match")
}

// generateETag generates an ETag based on file content hash
func (h *StaticHandler) generateETag(filePath string) string {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Sprintf(`"%d"`, time.Now().Unix())
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return fmt.Sprintf(`"%d"`, time.Now().Unix())
	}

	return fmt.Sprintf(`"%x"`, hash.Sum(nil))
}
