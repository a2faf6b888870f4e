package storage

import (
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"jansetu-be/apperrors"
	"jansetu-be/models"
)

const (
	// MaxFileSize is the per-file upload ceiling (10 MiB).
	MaxFileSize = 10 << 20
	// MaxImages is the largest accepted images group per submission.
	MaxImages = 5
	// URLPrefix is the public path prefix the static route serves from.
	URLPrefix = "/uploads/"
)

// MediaStore validates uploaded files and persists them to the media
// directory under generated, collision-free names.
type MediaStore struct {
	Dir string
}

// NewMediaStore creates the media directory if needed.
func NewMediaStore(dir string) (*MediaStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &MediaStore{Dir: dir}, nil
}

// CheckImages rejects an images group before any file reaches disk.
func (m *MediaStore) CheckImages(files []*multipart.FileHeader) error {
	if len(files) > MaxImages {
		return apperrors.NewValidation("images", "at most %d images are allowed per submission", MaxImages)
	}
	for _, fh := range files {
		if err := m.check(fh, "image/", "images"); err != nil {
			return err
		}
	}
	return nil
}

// CheckAudio rejects an audioNote group before any file reaches disk.
func (m *MediaStore) CheckAudio(files []*multipart.FileHeader) error {
	if len(files) > 1 {
		return apperrors.NewValidation("audioNote", "audioNote accepts a single file")
	}
	if len(files) == 1 {
		return m.check(files[0], "audio/", "audioNote")
	}
	return nil
}

func (m *MediaStore) check(fh *multipart.FileHeader, wantPrefix, field string) error {
	if fh.Size > MaxFileSize {
		return apperrors.NewValidation(field, "file '%s' exceeds the %d MB limit", fh.Filename, MaxFileSize>>20)
	}
	mt, err := m.detect(fh)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(mt.String(), wantPrefix) {
		return apperrors.NewValidation(field, "only image and audio files are allowed")
	}
	return nil
}

func (m *MediaStore) detect(fh *multipart.FileHeader) (*mimetype.MIME, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return mimetype.DetectReader(f)
}

// Save writes one upload under a generated name and returns its metadata.
// Names combine submission millis with a random component, so concurrent
// uploads cannot collide and existing files are never overwritten.
func (m *MediaStore) Save(fh *multipart.FileHeader) (models.FileMeta, error) {
	f, err := fh.Open()
	if err != nil {
		return models.FileMeta{}, err
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return models.FileMeta{}, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return models.FileMeta{}, err
	}

	name := fmt.Sprintf("%d-%d%s", time.Now().UnixMilli(), rand.Int63n(1_000_000_000), mt.Extension())
	dst, err := os.Create(filepath.Join(m.Dir, name))
	if err != nil {
		return models.FileMeta{}, err
	}
	defer dst.Close()

	size, err := io.Copy(dst, f)
	if err != nil {
		return models.FileMeta{}, err
	}

	return models.FileMeta{
		Filename: name,
		URL:      URLPrefix + name,
		Mimetype: mt.String(),
		Size:     size,
	}, nil
}

// SaveImages persists an already-checked images group in order.
func (m *MediaStore) SaveImages(files []*multipart.FileHeader) ([]models.FileMeta, error) {
	metas := make([]models.FileMeta, 0, len(files))
	for _, fh := range files {
		meta, err := m.Save(fh)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}
