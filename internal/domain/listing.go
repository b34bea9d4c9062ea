package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 1000
	MaxListingImages  = 10
)

type Listing struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	User        primitive.ObjectID `bson:"user" json:"user"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Price       float64            `bson:"price" json:"price"`
	Category    string             `bson:"category" json:"category"`
	Location    string             `bson:"location" json:"location"`
	Images      []string           `bson:"images" json:"images"`
	IsPromoted  bool               `bson:"is_promoted" json:"isPromoted"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
}

// ListingPatch holds the fields of a partial update; nil means unchanged.
type ListingPatch struct {
	Title       *string
	Description *string
	Price       *float64
	Category    *string
	Location    *string
	Images      *[]string
	IsPromoted  *bool
}

type ListingQuery struct {
	Category string
	Location string
	MinPrice *float64
	MaxPrice *float64
	Search   string
	Page     int
	Limit    int
	Sort     string
	Select   string
}

type Pagination struct {
	Next *PageRef `json:"next,omitempty"`
	Prev *PageRef `json:"prev,omitempty"`
}

type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type ListingPage struct {
	Listings   []Listing
	TotalCount int64
	Pagination Pagination
}
