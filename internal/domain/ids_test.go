package domain

import (
	"testing"

	"github.com/fathima-sithara/libamarket/internal/apperr"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestPairKey(t *testing.T) {
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()

	t.Run("should not depend on argument order", func(t *testing.T) {
		req := require.New(t)
		req.Equal(PairKey(a, b), PairKey(b, a))
		req.Equal(SortedPair(a, b), SortedPair(b, a))
	})

	t.Run("should put the smaller id first", func(t *testing.T) {
		req := require.New(t)
		p := SortedPair(b, a)
		req.Less(p[0].Hex(), p[1].Hex())
	})
}

func TestParseID(t *testing.T) {
	t.Run("should accept a hex object id", func(t *testing.T) {
		req := require.New(t)
		id := primitive.NewObjectID()
		got, err := ParseID(" "+id.Hex()+" ", "user id")
		req.NoError(err)
		req.Equal(id, got)
	})

	t.Run("should reject malformed ids as validation errors", func(t *testing.T) {
		req := require.New(t)
		_, err := ParseID("bob", "receiver id")
		req.True(apperr.Is(err, apperr.KindValidation))
		req.Equal("Invalid receiver id format", apperr.PublicMessage(err))
	})
}

func TestConversationHasParticipant(t *testing.T) {
	req := require.New(t)
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	c := Conversation{Participants: []primitive.ObjectID{a, b}}
	req.True(c.HasParticipant(a))
	req.True(c.HasParticipant(b))
	req.False(c.HasParticipant(primitive.NewObjectID()))
}
