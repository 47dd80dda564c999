package helpers

import (
	"fmt"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type UploadConfig struct {
	MaxSizeBytes     int64
	AllowedMimeTypes []string
	BaseDir          string
	// PublicPrefix is the URL path the base directory is served under.
	PublicPrefix string
}

func LogoUploadConfig(baseDir string) UploadConfig {
	return UploadConfig{
		MaxSizeBytes: 2 * 1024 * 1024, // 2MB
		AllowedMimeTypes: []string{
			"image/jpeg",
			"image/png",
			"image/gif",
			"image/webp",
			"image/svg+xml",
		},
		BaseDir:      baseDir,
		PublicPrefix: "/uploads",
	}
}

// UploadFile stores an uploaded file under BaseDir/kind and returns its
// public URL path. The content type is sniffed, not trusted from the client.
func UploadFile(c *gin.Context, fileHeader *multipart.FileHeader, kind string, config UploadConfig) (string, error) {
	if fileHeader.Size > config.MaxSizeBytes {
		return "", apperr.Validation("file", fmt.Sprintf("must be at most %d KB", config.MaxSizeBytes/1024))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return "", errors.Wrap(err, "detect upload type")
	}
	if !mimetype.EqualsAny(mtype.String(), config.AllowedMimeTypes...) {
		return "", apperr.Validation("file", "unsupported file type "+mtype.String())
	}

	dir := filepath.Join(config.BaseDir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create upload dir")
	}

	filename := uuid.NewString() + mtype.Extension()
	if err := c.SaveUploadedFile(fileHeader, filepath.Join(dir, filename)); err != nil {
		return "", errors.Wrap(err, "save upload")
	}
	return path.Join(config.PublicPrefix, kind, filename), nil
}

// DeleteUpload removes a file previously returned by UploadFile.
func DeleteUpload(config UploadConfig, publicPath string) error {
	rel, err := filepath.Rel(config.PublicPrefix, filepath.FromSlash(publicPath))
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	err = os.Remove(filepath.Join(config.BaseDir, rel))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrap(err, "delete upload")
}
