package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fathima-sithara/libamarket/internal/apperr"
	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/fathima-sithara/libamarket/internal/repository"
	"github.com/fathima-sithara/libamarket/internal/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type ListingService struct {
	listings ListingStore
	images   ImageStorage
	log      *zap.Logger
}

// NewListingService accepts a nil images store; upload urls then report unavailable.
func NewListingService(listings ListingStore, images ImageStorage, log *zap.Logger) *ListingService {
	return &ListingService{listings: listings, images: images, log: log}
}

func (s *ListingService) Create(ctx context.Context, ownerID string, l domain.Listing) (*domain.Listing, error) {
	owner, err := domain.ParseID(ownerID, "user id")
	if err != nil {
		return nil, err
	}
	l.ID = primitive.NilObjectID
	l.User = owner
	l.Title = strings.TrimSpace(l.Title)
	l.Description = strings.TrimSpace(l.Description)
	if l.Images == nil {
		l.Images = []string{}
	}
	if err := validateListing(&l); err != nil {
		return nil, err
	}
	if err := s.listings.Create(ctx, &l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	s.log.Info("listing created", zap.String("listing_id", l.ID.Hex()), zap.String("user_id", ownerID))
	return &l, nil
}

func (s *ListingService) Get(ctx context.Context, id string) (*domain.Listing, error) {
	lid, err := domain.ParseID(id, "listing id")
	if err != nil {
		return nil, err
	}
	l, err := s.listings.FindByID(ctx, lid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Listing not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	return l, nil
}

func (s *ListingService) List(ctx context.Context, q domain.ListingQuery) (*domain.ListingPage, error) {
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return nil, apperr.Validation("minPrice cannot exceed maxPrice")
	}
	page, err := s.listings.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find listings: %w", err)
	}
	return page, nil
}

// Update applies a partial change. Only the owner may edit a listing.
func (s *ListingService) Update(ctx context.Context, callerID, id string, p domain.ListingPatch) (*domain.Listing, error) {
	l, err := s.owned(ctx, callerID, id, "update")
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		p.Title = &t
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		p.Description = &d
	}
	merged := *l
	applyPatch(&merged, p)
	if err := validateListing(&merged); err != nil {
		return nil, err
	}

	updated, err := s.listings.Update(ctx, l.ID, p)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Listing not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	return updated, nil
}

func (s *ListingService) Delete(ctx context.Context, callerID, id string) error {
	l, err := s.owned(ctx, callerID, id, "delete")
	if err != nil {
		return err
	}
	err = s.listings.Delete(ctx, l.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Listing not found")
	}
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	s.log.Info("listing deleted", zap.String("listing_id", l.ID.Hex()), zap.String("user_id", callerID))
	return nil
}

func (s *ListingService) ImageUploadURL(ctx context.Context, callerID, contentType string) (*storage.UploadURL, error) {
	if s.images == nil {
		return nil, apperr.Unavailable("Image uploads are not configured")
	}
	owner, err := domain.ParseID(callerID, "user id")
	if err != nil {
		return nil, err
	}
	u, err := s.images.PresignUpload(ctx, owner.Hex(), strings.ToLower(strings.TrimSpace(contentType)))
	if errors.Is(err, storage.ErrUnsupportedType) {
		return nil, apperr.Validation("Unsupported image type")
	}
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return u, nil
}

func (s *ListingService) owned(ctx context.Context, callerID, id, action string) (*domain.Listing, error) {
	caller, err := domain.ParseID(callerID, "user id")
	if err != nil {
		return nil, err
	}
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.User != caller {
		return nil, apperr.Forbidden(fmt.Sprintf("User %s is not authorized to %s this listing", callerID, action))
	}
	return l, nil
}

func applyPatch(l *domain.Listing, p domain.ListingPatch) {
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Price != nil {
		l.Price = *p.Price
	}
	if p.Category != nil {
		l.Category = *p.Category
	}
	if p.Location != nil {
		l.Location = *p.Location
	}
	if p.Images != nil {
		l.Images = *p.Images
	}
	if p.IsPromoted != nil {
		l.IsPromoted = *p.IsPromoted
	}
}

func validateListing(l *domain.Listing) error {
	switch {
	case l.Title == "":
		return apperr.Validation("Please add a title")
	case len([]rune(l.Title)) > domain.MaxTitleLen:
		return apperr.Validation(fmt.Sprintf("Title can not be more than %d characters", domain.MaxTitleLen))
	case l.Description == "":
		return apperr.Validation("Please add a description")
	case len([]rune(l.Description)) > domain.MaxDescriptionLen:
		return apperr.Validation(fmt.Sprintf("Description can not be more than %d characters", domain.MaxDescriptionLen))
	case l.Price < 0:
		return apperr.Validation("Price must be a positive number")
	case strings.TrimSpace(l.Category) == "":
		return apperr.Validation("Please add a category")
	case strings.TrimSpace(l.Location) == "":
		return apperr.Validation("Please add a location")
	case len(l.Images) > domain.MaxListingImages:
		return apperr.Validation(fmt.Sprintf("A listing can have at most %d images", domain.MaxListingImages))
	}
	return nil
}
