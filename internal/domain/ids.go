package domain

import (
	"fmt"
	"strings"

	"github.com/fathima-sithara/libamarket/internal/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParseID converts a hex object id, reporting what was malformed.
func ParseID(raw, what string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation(fmt.Sprintf("Invalid %s format", what))
	}
	return id, nil
}

// SortedPair orders two ids so a pair has one canonical storage form.
func SortedPair(a, b primitive.ObjectID) [2]primitive.ObjectID {
	if a.Hex() > b.Hex() {
		return [2]primitive.ObjectID{b, a}
	}
	return [2]primitive.ObjectID{a, b}
}

func PairKey(a, b primitive.ObjectID) string {
	p := SortedPair(a, b)
	return p[0].Hex() + ":" + p[1].Hex()
}
