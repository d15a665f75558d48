package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/justsurfingit/careerboost/internal/dtos"
	"github.com/justsurfingit/careerboost/internal/extractor"
	"github.com/justsurfingit/careerboost/internal/logger"
	"go.uber.org/zap"
)

// ResumeHandler stores uploaded resumes for later pipeline runs.
type ResumeHandler struct {
	UploadDir   string
	MaxFileSize int64
	Logger      *zap.Logger
}

func NewResumeHandler(uploadDir string, maxFileSize int64, log *zap.Logger) *ResumeHandler {
	return &ResumeHandler{UploadDir: uploadDir, MaxFileSize: maxFileSize, Logger: logger.OrNop(log)}
}

// Upload is the POST /resumes endpoint
func (h *ResumeHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing multipart field \"file\": " + err.Error()})
		return
	}

	format, err := extractor.DetectFormat(file.Filename)
	if err != nil {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error":     err.Error(),
			"supported": extractor.SupportedFormats(),
		})
		return
	}
	if h.MaxFileSize > 0 && file.Size > h.MaxFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file is %d bytes, limit is %d", file.Size, h.MaxFileSize),
		})
		return
	}

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare upload dir: " + err.Error()})
		return
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(file.Filename))
	dst := filepath.Join(h.UploadDir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload: " + err.Error()})
		return
	}

	h.Logger.Info("resume uploaded",
		zap.String("path", dst),
		zap.String("format", string(format)),
		zap.Int64("size", file.Size),
	)
	c.JSON(http.StatusCreated, dtos.ResumeUploadResponse{Path: dst, Format: string(format), Size: file.Size})
}

// resolveUpload maps a client supplied document path onto the upload
// directory. Only the file name is kept.
func (h *ResumeHandler) resolveUpload(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Join(h.UploadDir, filepath.Base(filepath.Clean(path)))
}
