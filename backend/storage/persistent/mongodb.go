package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jghoshh/goalpal/backend/models"
)

const (
	usersCollection          = "users"
	goalsCollection          = "goals"
	friendRequestsCollection = "friendRequests"
	pushTokensCollection     = "pushTokens"
)

// MongoStorage is a struct representing a MongoDB storage.
// It provides an interface to perform CRUD operations on various collections in the MongoDB database.
type MongoStorage struct {
	client *mongo.Client
	dbName string
}

// NewMongoStorage creates a new instance of MongoStorage.
// This function doesn't establish a connection to the MongoDB server.
// To connect to the server, use the Connect method of the returned MongoStorage instance.
func NewMongoStorage() *MongoStorage {
	return &MongoStorage{}
}

func (m *MongoStorage) collection(name string) *mongo.Collection {
	return m.client.Database(m.dbName).Collection(name)
}

// Connect establishes a connection to the MongoDB server at the given URI and a database name.
// Sets up indexes and unique constraints as necessary.
// Returns an error if any issues are encountered.
func (m *MongoStorage) Connect(dbName, uri string) error {

	// Set a timeout for the connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("error connecting to MongoDB: %v", err)
	}

	m.client = client
	m.dbName = dbName

	indexes := []struct {
		collection string
		model      mongo.IndexModel
	}{
		// Every user has a unique, lower-cased email.
		{usersCollection, mongo.IndexModel{Keys: bson.M{"email": 1}, Options: options.Index().SetUnique(true)}},
		// Friend set lookups during account deletion.
		{usersCollection, mongo.IndexModel{Keys: bson.M{"friends": 1}}},
		// "My goals ordered by position".
		{goalsCollection, mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "order", Value: 1}}}},
		{goalsCollection, mongo.IndexModel{Keys: bson.M{"shared_with": 1}}},
		{friendRequestsCollection, mongo.IndexModel{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "status", Value: 1}}}},
		{friendRequestsCollection, mongo.IndexModel{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "status", Value: 1}}}},
		// A device token belongs to exactly one user at a time.
		{pushTokensCollection, mongo.IndexModel{Keys: bson.M{"token": 1}, Options: options.Index().SetUnique(true)}},
		{pushTokensCollection, mongo.IndexModel{Keys: bson.M{"user_id": 1}}},
	}

	for _, idx := range indexes {
		if _, err := m.collection(idx.collection).Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("error creating index on %s: %v", idx.collection, err)
		}
	}

	return nil
}

// Disconnect closes the connection to the MongoDB server.
// It should be called when the MongoStorage instance is no longer needed.
// Returns an error if the disconnection process fails.
func (m *MongoStorage) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.client.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %v", err)
	}

	return nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func toUpdateResult(result *mongo.UpdateResult) *UpdateResult {
	return &UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}
}

// AddUser adds a new user document to the 'users' collection.
// Returns ErrDuplicate if a user with the same email already exists.
func (m *MongoStorage) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Friends == nil {
		user.Friends = []primitive.ObjectID{}
	}
	result, err := m.collection(usersCollection).InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	user.ID = result.InsertedID.(primitive.ObjectID)
	return user, nil
}

func (m *MongoStorage) findUser(ctx context.Context, filter interface{}) (*models.User, error) {
	user := &models.User{}
	err := m.collection(usersCollection).FindOne(ctx, filter).Decode(user)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

// FindUserByID finds a user by id. Returns ErrNotFound if there is none.
func (m *MongoStorage) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id})
}

// FindUserByEmail finds a user by their (already lower-cased) email.
func (m *MongoStorage) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"email": email})
}

// FindUsersByIDs returns the users whose ids are in ids. Missing ids are skipped.
func (m *MongoStorage) FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	cursor, err := m.collection(usersCollection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (m *MongoStorage) AddFriend(ctx context.Context, userID, friendID primitive.ObjectID) (*UpdateResult, error) {
	result, err := m.collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$addToSet": bson.M{"friends": friendID}},
	)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return toUpdateResult(result), nil
}

func (m *MongoStorage) RemoveFriend(ctx context.Context, userID, friendID primitive.ObjectID) (*UpdateResult, error) {
	result, err := m.collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"friends": friendID}},
	)
	if err != nil {
		return nil, err
	}
	return toUpdateResult(result), nil
}

func (m *MongoStorage) PullFriendEverywhere(ctx context.Context, friendID primitive.ObjectID) (*UpdateResult, error) {
	result, err := m.collection(usersCollection).UpdateMany(ctx,
		bson.M{"friends": friendID},
		bson.M{"$pull": bson.M{"friends": friendID}},
	)
	if err != nil {
		return nil, err
	}
	return toUpdateResult(result), nil
}

// DeleteUser deletes only the user document. Cascading is the caller's responsibility,
// so every step of an account deletion stays independently re-runnable.
func (m *MongoStorage) DeleteUser(ctx context.Context, id primitive.ObjectID) (*DeleteResult, error) {
	result, err := m.collection(usersCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// UpsertPushToken assigns token to userID. If another user held the token it is reassigned.
func (m *MongoStorage) UpsertPushToken(ctx context.Context, token string, userID primitive.ObjectID) error {
	now := time.Now()
	_, err := m.collection(pushTokensCollection).UpdateOne(ctx,
		bson.M{"token": token},
		bson.M{
			"$set":         bson.M{"user_id": userID, "updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *MongoStorage) findPushTokens(ctx context.Context, filter interface{}) ([]models.PushToken, error) {
	cursor, err := m.collection(pushTokensCollection).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	tokens := []models.PushToken{}
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (m *MongoStorage) FindPushTokensByUsers(ctx context.Context, userIDs []primitive.ObjectID) ([]models.PushToken, error) {
	if len(userIDs) == 0 {
		return []models.PushToken{}, nil
	}
	return m.findPushTokens(ctx, bson.M{"user_id": bson.M{"$in": userIDs}})
}

func (m *MongoStorage) FindAllPushTokens(ctx context.Context) ([]models.PushToken, error) {
	return m.findPushTokens(ctx, bson.M{})
}

func (m *MongoStorage) DeletePushTokensByUser(ctx context.Context, userID primitive.ObjectID) (*DeleteResult, error) {
	result, err := m.collection(pushTokensCollection).DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

func (m *MongoStorage) AddFriendRequest(ctx context.Context, req *models.FriendRequest) (*models.FriendRequest, error) {
	result, err := m.collection(friendRequestsCollection).InsertOne(ctx, req)
	if err != nil {
		return nil, err
	}
	req.ID = result.InsertedID.(primitive.ObjectID)
	return req, nil
}

func (m *MongoStorage) FindFriendRequestByID(ctx context.Context, id primitive.ObjectID) (*models.FriendRequest, error) {
	req := &models.FriendRequest{}
	err := m.collection(friendRequestsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(req)
	if err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

func (m *MongoStorage) FindPendingFriendRequestBetween(ctx context.Context, a, b primitive.ObjectID) (*models.FriendRequest, error) {
	filter := bson.M{
		"status": models.FriendRequestPending,
		"$or": bson.A{
			bson.M{"sender_id": a, "recipient_id": b},
			bson.M{"sender_id": b, "recipient_id": a},
		},
	}
	req := &models.FriendRequest{}
	err := m.collection(friendRequestsCollection).FindOne(ctx, filter).Decode(req)
	if err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

func (m *MongoStorage) FindFriendRequests(ctx context.Context, query FriendRequestQuery) ([]models.FriendRequest, error) {
	filter := bson.M{}
	if !query.SenderID.IsZero() {
		filter["sender_id"] = query.SenderID
	}
	if !query.RecipientID.IsZero() {
		filter["recipient_id"] = query.RecipientID
	}
	if query.Status != "" {
		filter["status"] = query.Status
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := m.collection(friendRequestsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	requests := []models.FriendRequest{}
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// TransitionFriendRequest is a compare-and-set on the request status.
func (m *MongoStorage) TransitionFriendRequest(ctx context.Context, id primitive.ObjectID, from, to models.FriendRequestStatus) error {
	result, err := m.collection(friendRequestsCollection).UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStorage) DeleteFriendRequestsByUser(ctx context.Context, userID primitive.ObjectID) (*DeleteResult, error) {
	result, err := m.collection(friendRequestsCollection).DeleteMany(ctx, bson.M{
		"$or": bson.A{bson.M{"sender_id": userID}, bson.M{"recipient_id": userID}},
	})
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// AddGoal adds a new goal document to the 'goals' collection.
func (m *MongoStorage) AddGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	if goal.SubItems == nil {
		goal.SubItems = []models.SubItem{}
	}
	if goal.SharedWith == nil {
		goal.SharedWith = []primitive.ObjectID{}
	}
	result, err := m.collection(goalsCollection).InsertOne(ctx, goal)
	if err != nil {
		return nil, err
	}
	goal.ID = result.InsertedID.(primitive.ObjectID)
	return goal, nil
}

func (m *MongoStorage) FindGoalByID(ctx context.Context, id primitive.ObjectID) (*models.Goal, error) {
	goal := &models.Goal{}
	err := m.collection(goalsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(goal)
	if err != nil {
		return nil, notFound(err)
	}
	return goal, nil
}

func (m *MongoStorage) findGoals(ctx context.Context, filter interface{}) ([]models.Goal, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}})
	cursor, err := m.collection(goalsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	goals := []models.Goal{}
	if err := cursor.All(ctx, &goals); err != nil {
		return nil, err
	}
	return goals, nil
}

func (m *MongoStorage) FindGoalsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Goal, error) {
	return m.findGoals(ctx, bson.M{"user_id": ownerID})
}

func (m *MongoStorage) FindGoalsByOwnerOrShared(ctx context.Context, userID primitive.ObjectID) ([]models.Goal, error) {
	return m.findGoals(ctx, bson.M{"$or": bson.A{
		bson.M{"user_id": userID},
		bson.M{"shared_with": userID},
	}})
}

// ReplaceGoal replaces the whole goal document; concurrent writers resolve as last write wins.
func (m *MongoStorage) ReplaceGoal(ctx context.Context, goal *models.Goal) error {
	result, err := m.collection(goalsCollection).ReplaceOne(ctx, bson.M{"_id": goal.ID}, goal)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStorage) SetGoalOrder(ctx context.Context, goalID, ownerID primitive.ObjectID, order int) error {
	result, err := m.collection(goalsCollection).UpdateOne(ctx,
		bson.M{"_id": goalID, "user_id": ownerID},
		bson.M{"$set": bson.M{"order": order, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStorage) DeleteGoal(ctx context.Context, id primitive.ObjectID) (*DeleteResult, error) {
	result, err := m.collection(goalsCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

func (m *MongoStorage) DeleteGoalsByOwner(ctx context.Context, ownerID primitive.ObjectID) (*DeleteResult, error) {
	result, err := m.collection(goalsCollection).DeleteMany(ctx, bson.M{"user_id": ownerID})
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

func (m *MongoStorage) PullSharedUser(ctx context.Context, userID primitive.ObjectID) (*UpdateResult, error) {
	result, err := m.collection(goalsCollection).UpdateMany(ctx,
		bson.M{"shared_with": userID},
		bson.M{"$pull": bson.M{"shared_with": userID}},
	)
	if err != nil {
		return nil, err
	}
	return toUpdateResult(result), nil
}

func (m *MongoStorage) GoalCount(ctx context.Context, ownerID primitive.ObjectID) (int64, error) {
	return m.collection(goalsCollection).CountDocuments(ctx, bson.M{"user_id": ownerID})
}
