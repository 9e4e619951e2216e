// Package contextkey holds the request context keys set by the server middleware.
package contextkey

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type key string

// UserIDKey stores the authenticated caller's ID.
const UserIDKey key = "userID"

func WithUserID(ctx context.Context, id primitive.ObjectID) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// UserID returns the caller's ID and whether the request was authenticated.
func UserID(ctx context.Context) (primitive.ObjectID, bool) {
	id, ok := ctx.Value(UserIDKey).(primitive.ObjectID)
	return id, ok
}
