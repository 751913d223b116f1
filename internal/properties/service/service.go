package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/internal/properties/repository"
	"github.com/rentwise/portal/pkg/logger"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalid    = errors.New("invalid property")
	ErrNoStorage  = errors.New("photo storage not configured")
	ErrNoPhoto    = errors.New("property has no photo")
	ErrBadContent = errors.New("unsupported photo type")
)

// PhotoStore is the object storage used for property photos.
type PhotoStore interface {
	UploadFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	RemoveFile(ctx context.Context, key string) error
	GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Input is the editable part of a property.
type Input struct {
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	Units       int     `json:"units"`
	MonthlyRent float64 `json:"monthlyRent"`
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	if in.Units < 0 || in.MonthlyRent < 0 {
		return fmt.Errorf("%w: negative values", ErrInvalid)
	}
	return nil
}

var photoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Service scopes every operation to the owner passed in.
type Service struct {
	repo   repository.Repository
	photos PhotoStore
	urlTTL time.Duration
}

// New returns a Service. photos may be nil when no object storage is configured.
func New(repo repository.Repository, photos PhotoStore) *Service {
	return &Service{repo: repo, photos: photos, urlTTL: 15 * time.Minute}
}

func (s *Service) List(ctx context.Context, ownerID string) ([]*models.Property, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Get returns ErrNotFound for properties of other owners.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*models.Property, error) {
	p, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && p.OwnerID != ownerID) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, ownerID string, in Input) (*models.Property, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, &models.Property{
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(in.Name),
		Address:     in.Address,
		Units:       in.Units,
		MonthlyRent: in.MonthlyRent,
	})
}

func (s *Service) Update(ctx context.Context, ownerID, id string, in Input) (*models.Property, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	p.Name, p.Address, p.Units, p.MonthlyRent = strings.TrimSpace(in.Name), in.Address, in.Units, in.MonthlyRent
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return s.Get(ctx, ownerID, id)
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if p.PhotoKey != "" && s.photos != nil {
		if err := s.photos.RemoveFile(ctx, p.PhotoKey); err != nil {
			logger.Warnf("properties: remove photo %s: %v", p.PhotoKey, err)
		}
	}
	return nil
}

// AttachPhoto uploads a new photo and replaces the previous one.
func (s *Service) AttachPhoto(ctx context.Context, ownerID, id string, r io.Reader, size int64, contentType string) (*models.Property, error) {
	if s.photos == nil {
		return nil, ErrNoStorage
	}
	ext, ok := photoTypes[contentType]
	if !ok {
		return nil, ErrBadContent
	}
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	key := path.Join("properties", ownerID, p.ID, uuid.NewString()+ext)
	if err := s.photos.UploadFile(ctx, key, r, size, contentType); err != nil {
		return nil, fmt.Errorf("upload photo: %w", err)
	}
	old := p.PhotoKey
	p.PhotoKey = key
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	if old != "" {
		if err := s.photos.RemoveFile(ctx, old); err != nil {
			logger.Warnf("properties: remove photo %s: %v", old, err)
		}
	}
	return p, nil
}

// PhotoURL returns a short-lived download link.
func (s *Service) PhotoURL(ctx context.Context, ownerID, id string) (string, error) {
	if s.photos == nil {
		return "", ErrNoStorage
	}
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	if p.PhotoKey == "" {
		return "", ErrNoPhoto
	}
	return s.photos.GetPresignedURL(ctx, p.PhotoKey, s.urlTTL)
}
