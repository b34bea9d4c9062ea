package repository

import (
	"context"
	"strings"
	"time"

	"github.com/fathima-sithara/libamarket/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100

	// keeps (page-1)*limit far from overflow
	maxPage = 1_000_000
)

// listingFields maps API field names to stored field names for sort and select.
var listingFields = map[string]string{
	"_id":         "_id",
	"user":        "user",
	"title":       "title",
	"description": "description",
	"price":       "price",
	"category":    "category",
	"location":    "location",
	"images":      "images",
	"isPromoted":  "is_promoted",
	"createdAt":   "created_at",
}

type ListingRepository struct {
	coll  *mongo.Collection
	clock func() time.Time
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{coll: db.Collection("listings"), clock: now}
}

func (r *ListingRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "location", Value: 1}}, Options: options.Index().SetName("category_location_idx")},
		{Keys: bson.D{{Key: "title", Value: "text"}, {Key: "description", Value: "text"}}, Options: options.Index().SetName("listing_text_idx")},
		{Keys: bson.D{{Key: "created_at", Value: -1}}, Options: options.Index().SetName("created_at_idx")},
	})
	return err
}

func (r *ListingRepository) Create(ctx context.Context, l *domain.Listing) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	if l.Images == nil {
		l.Images = []string{}
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.clock()
	}
	_, err := r.coll.InsertOne(ctx, l)
	return err
}

func (r *ListingRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var l domain.Listing
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (r *ListingRepository) Update(ctx context.Context, id primitive.ObjectID, p domain.ListingPatch) (*domain.Listing, error) {
	set := patchDocument(p)
	if len(set) == 0 {
		return r.FindByID(ctx, id)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var l domain.Listing
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&l); err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (r *ListingRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Find applies filters, sort, projection and page window, and counts the
// total number of matches for pagination.
func (r *ListingRepository) Find(ctx context.Context, q domain.ListingQuery) (*domain.ListingPage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page, limit := normalizePage(q.Page, q.Limit)
	filter := listingFilter(q)

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(listingSort(q.Sort)).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	if proj := listingProjection(q.Select); proj != nil {
		opts.SetProjection(proj)
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	listings := []domain.Listing{}
	if err := cur.All(ctx, &listings); err != nil {
		return nil, err
	}
	return &domain.ListingPage{
		Listings:   listings,
		TotalCount: total,
		Pagination: paginate(page, limit, total),
	}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func paginate(page, limit int, total int64) domain.Pagination {
	var p domain.Pagination
	start, end := (page-1)*limit, page*limit
	if int64(end) < total {
		p.Next = &domain.PageRef{Page: page + 1, Limit: limit}
	}
	if start > 0 {
		p.Prev = &domain.PageRef{Page: page - 1, Limit: limit}
	}
	return p
}

func listingFilter(q domain.ListingQuery) bson.M {
	filter := bson.M{}
	if v := strings.TrimSpace(q.Category); v != "" {
		filter["category"] = v
	}
	if v := strings.TrimSpace(q.Location); v != "" {
		filter["location"] = v
	}
	price := bson.M{}
	if q.MinPrice != nil {
		price["$gte"] = *q.MinPrice
	}
	if q.MaxPrice != nil {
		price["$lte"] = *q.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}
	if v := strings.TrimSpace(q.Search); v != "" {
		filter["$text"] = bson.M{"$search": v}
	}
	return filter
}

// listingSort parses "-createdAt,price" style lists; unknown fields are dropped.
func listingSort(raw string) bson.D {
	sort := bson.D{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		dir := 1
		if strings.HasPrefix(part, "-") {
			dir = -1
			part = part[1:]
		}
		if field, ok := listingFields[part]; ok {
			sort = append(sort, bson.E{Key: field, Value: dir})
		}
	}
	if len(sort) == 0 {
		return bson.D{{Key: "created_at", Value: -1}}
	}
	return sort
}

func listingProjection(raw string) bson.M {
	proj := bson.M{}
	for _, part := range strings.Split(raw, ",") {
		if field, ok := listingFields[strings.TrimSpace(part)]; ok {
			proj[field] = 1
		}
	}
	if len(proj) == 0 {
		return nil
	}
	return proj
}

func patchDocument(p domain.ListingPatch) bson.M {
	set := bson.M{}
	if p.Title != nil {
		set["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		set["description"] = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		set["price"] = *p.Price
	}
	if p.Category != nil {
		set["category"] = strings.TrimSpace(*p.Category)
	}
	if p.Location != nil {
		set["location"] = strings.TrimSpace(*p.Location)
	}
	if p.Images != nil {
		set["images"] = *p.Images
	}
	if p.IsPromoted != nil {
		set["is_promoted"] = *p.IsPromoted
	}
	return set
}
