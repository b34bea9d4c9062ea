package api

import (
	"strconv"

	"github.com/fathima-sithara/libamarket/internal/apperr"
	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/fathima-sithara/libamarket/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ListingHandler struct {
	svc *service.ListingService
}

func NewListingHandler(svc *service.ListingService) *ListingHandler {
	return &ListingHandler{svc: svc}
}

type listingRequest struct {
	Title       string   `json:"title" validate:"required,max=100"`
	Description string   `json:"description" validate:"required,max=1000"`
	Price       *float64 `json:"price" validate:"required,min=0"`
	Category    string   `json:"category" validate:"required"`
	Location    string   `json:"location" validate:"required"`
	Images      []string `json:"images" validate:"max=10"`
	IsPromoted  bool     `json:"isPromoted"`
}

type listingPatchRequest struct {
	Title       *string   `json:"title" validate:"omitempty,max=100"`
	Description *string   `json:"description" validate:"omitempty,max=1000"`
	Price       *float64  `json:"price" validate:"omitempty,min=0"`
	Category    *string   `json:"category" validate:"omitempty,min=1"`
	Location    *string   `json:"location" validate:"omitempty,min=1"`
	Images      *[]string `json:"images" validate:"omitempty,max=10"`
	IsPromoted  *bool     `json:"isPromoted"`
}

type uploadURLRequest struct {
	ContentType string `json:"contentType" validate:"required"`
}

func (h *ListingHandler) List(c *fiber.Ctx) error {
	q, err := listingQuery(c)
	if err != nil {
		return err
	}
	page, err := h.svc.List(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"count":      len(page.Listings),
		"totalCount": page.TotalCount,
		"pagination": page.Pagination,
		"data":       page.Listings,
	})
}

func (h *ListingHandler) Get(c *fiber.Ctx) error {
	l, err := h.svc.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": l})
}

func (h *ListingHandler) Create(c *fiber.Ctx) error {
	var req listingRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	l, err := h.svc.Create(c.UserContext(), callerID(c), domain.Listing{
		Title:       req.Title,
		Description: req.Description,
		Price:       *req.Price,
		Category:    req.Category,
		Location:    req.Location,
		Images:      req.Images,
		IsPromoted:  req.IsPromoted,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": l})
}

func (h *ListingHandler) Update(c *fiber.Ctx) error {
	var req listingPatchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	l, err := h.svc.Update(c.UserContext(), callerID(c), c.Params("id"), domain.ListingPatch{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Location:    req.Location,
		Images:      req.Images,
		IsPromoted:  req.IsPromoted,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": l})
}

func (h *ListingHandler) Delete(c *fiber.Ctx) error {
	if err := h.svc.Delete(c.UserContext(), callerID(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{}})
}

func (h *ListingHandler) UploadURL(c *fiber.Ctx) error {
	var req uploadURLRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.ImageUploadURL(c.UserContext(), callerID(c), req.ContentType)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": u})
}

func listingQuery(c *fiber.Ctx) (domain.ListingQuery, error) {
	q := domain.ListingQuery{
		Category: c.Query("category"),
		Location: c.Query("location"),
		Search:   c.Query("q"),
		Sort:     c.Query("sort"),
		Select:   c.Query("select"),
	}
	var err error
	if q.MinPrice, err = floatQuery(c, "minPrice"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = floatQuery(c, "maxPrice"); err != nil {
		return q, err
	}
	if q.Page, err = intQuery(c, "page"); err != nil {
		return q, err
	}
	if q.Limit, err = intQuery(c, "limit"); err != nil {
		return q, err
	}
	return q, nil
}

func floatQuery(c *fiber.Ctx, key string) (*float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.Validation("Invalid " + key)
	}
	return &v, nil
}

// intQuery returns 0 for an absent key so the store applies its default.
func intQuery(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, apperr.Validation("Invalid " + key)
	}
	return v, nil
}
