package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// UserStore implements domain.UserDirectory over the auth "user" collection.
// Users are keyed by their "id" field, falling back to the document _id.
type UserStore struct {
	coll *mongo.Collection
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(UsersCollection)}
}

type userDoc struct {
	DocID any    `bson:"_id"`
	ID    string `bson:"id"`
	Email string `bson:"email"`
	Name  string `bson:"name"`
}

// keys returns every identifier an alert may use to reference this user.
func (d userDoc) keys() []string {
	var keys []string
	if d.ID != "" {
		keys = append(keys, d.ID)
	}
	switch v := d.DocID.(type) {
	case primitive.ObjectID:
		keys = append(keys, v.Hex())
	case string:
		if v != "" && v != d.ID {
			keys = append(keys, v)
		}
	}
	return keys
}

func contactsFilter(userIDs []string) bson.M {
	docIDs := make(bson.A, 0, len(userIDs))
	for _, id := range userIDs {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			docIDs = append(docIDs, oid)
			continue
		}
		docIDs = append(docIDs, id)
	}
	return bson.M{"$or": bson.A{
		bson.M{"id": bson.M{"$in": userIDs}},
		bson.M{"_id": bson.M{"$in": docIDs}},
	}}
}

// ResolveContacts loads every requested user in one query.
func (s *UserStore) ResolveContacts(ctx context.Context, userIDs []string) (map[string]domain.Contact, error) {
	out := make(map[string]domain.Contact, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1, "id": 1, "email": 1, "name": 1})
	cur, err := s.coll.Find(ctx, contactsFilter(userIDs), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: resolve contacts: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var d userDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("mongo: decode user: %w", err)
		}
		if d.Email == "" {
			continue
		}
		for _, id := range d.keys() {
			out[id] = domain.Contact{UserID: id, Email: d.Email, Name: d.Name}
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo: iterate users: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.UserDirectory = (*UserStore)(nil)
