package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerateID generates a new MongoDB ObjectID
func GenerateID() primitive.ObjectID {
	return primitive.NewObjectID()
}

// Now returns the current time in UTC. Stored timestamps are always UTC;
// cancel-window comparisons depend on it.
func Now() time.Time {
	return time.Now().UTC()
}

// SortAscending creates an ascending sort option
func SortAscending(field string) bson.D {
	return bson.D{{Key: field, Value: 1}}
}

// SortDescending creates a descending sort option
func SortDescending(field string) bson.D {
	return bson.D{{Key: field, Value: -1}}
}

// CaseInsensitiveRegex builds a case-insensitive substring match, used
// for material number and name search.
func CaseInsensitiveRegex(value string) bson.M {
	return bson.M{"$regex": value, "$options": "i"}
}
