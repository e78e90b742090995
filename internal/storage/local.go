package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"
	"github.com/agehcx/hiking-app-sub000/internal/config"

	"github.com/google/uuid"
)

// PublicPath is where the server exposes the upload directory.
const PublicPath = "/uploads"

var knownExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

type Object struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Local stores uploads on disk under a single directory.
type Local struct {
	dir     string
	maxSize int64
	allowed map[string]struct{}
}

func NewLocal(cfg config.UploadConfig) (*Local, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &Local{dir: cfg.Dir, maxSize: cfg.MaxFileSize, allowed: allowed}, nil
}

func (l *Local) Dir() string {
	return l.dir
}

// Save checks size and sniffed content type before writing the file.
func (l *Local) Save(fh *multipart.FileHeader, prefix string) (Object, error) {
	if fh == nil {
		return Object{}, apperrors.FileUpload("No file uploaded")
	}
	if l.maxSize > 0 && fh.Size > l.maxSize {
		return Object{}, apperrors.FileUpload(fmt.Sprintf("File too large. Maximum size is %d bytes", l.maxSize)).WithField(fieldName(fh))
	}

	src, err := fh.Open()
	if err != nil {
		return Object{}, apperrors.FileUpload("Could not read uploaded file").Wrap(err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Object{}, apperrors.FileUpload("Could not read uploaded file").Wrap(err)
	}
	head = head[:n]
	contentType, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	if _, ok := l.allowed[contentType]; !ok {
		return Object{}, apperrors.FileUpload("File type " + contentType + " is not allowed").WithField(fieldName(fh))
	}

	name := prefix + "-" + uuid.NewString() + extensionFor(contentType)
	dst, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Object{}, apperrors.Internal(err)
	}

	size, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head), src))
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(l.dir, name))
		return Object{}, apperrors.Internal(err)
	}

	return Object{
		Name:        name,
		URL:         PublicPath + "/" + name,
		ContentType: contentType,
		Size:        size,
	}, nil
}

func (l *Local) Remove(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil
	}
	err := os.Remove(filepath.Join(l.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func extensionFor(contentType string) string {
	if ext, ok := knownExtensions[contentType]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func fieldName(fh *multipart.FileHeader) string {
	_, params, err := mime.ParseMediaType(fh.Header.Get("Content-Disposition"))
	if err != nil || params["name"] == "" {
		return "file"
	}
	return params["name"]
}
