// Package repository stores running sessions in MongoDB.
//
// The no-lost-update guarantee of AppendFeatures under concurrent calls is only
// exercised by the integration tests, which need a MongoDB server and are
// skipped unless RUNNING_TEST_MONGO_URI is set:
//
//	RUNNING_TEST_MONGO_URI=mongodb://localhost:27017 go test ./services/running-service/internal/repository/...
package repository

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/model"
)

// RunningSessionRepository defines the interface for running session database operations.
type RunningSessionRepository interface {
	// AppendFeatures creates the session identified by (UserID, SessionKey) if it does not
	// exist and appends the features to it, in a single atomic operation.
	AppendFeatures(ctx context.Context, params AppendFeaturesParams) (*model.RunningSession, error)

	// GetSessionByUserAndKey returns mongo.ErrNoDocuments when the session does not exist.
	GetSessionByUserAndKey(ctx context.Context, userID int64, sessionKey string) (*model.RunningSession, error)

	// ListSessionsByUser returns the most recently created sessions first.
	ListSessionsByUser(ctx context.Context, params ListSessionsParams) ([]*model.RunningSession, error)

	// GetLatestSessionNum returns mongo.ErrNoDocuments when the user has no sessions.
	GetLatestSessionNum(ctx context.Context, userID int64) (int, error)

	// DeleteSessionsByUser removes every session of the user and returns how many were deleted.
	DeleteSessionsByUser(ctx context.Context, userID int64) (int64, error)
}

// AppendFeaturesParams defines the parameters for appending features to a session.
type AppendFeaturesParams struct {
	UserID     int64
	SessionKey string
	SessionNum int
	Features   []model.Feature
}

// ListSessionsParams defines the parameters for listing sessions of a user.
type ListSessionsParams struct {
	UserID int64
	Limit  int64
}

const runningSessionCollection = "running_sessions"

const defaultListLimit = 10

type runningSessionMongoRepository struct {
	db  *mongo.Database
	now func() time.Time
}

func NewRunningSessionMongoRepository(
	ctx context.Context,
	logger *zerolog.Logger,
	db *mongo.Database,
) RunningSessionRepository {
	collection := db.Collection(runningSessionCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "sessionKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "sessionNum", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create running session indexes")
	}

	return &runningSessionMongoRepository{db: db, now: time.Now}
}

func (r *runningSessionMongoRepository) AppendFeatures(
	ctx context.Context,
	params AppendFeaturesParams,
) (*model.RunningSession, error) {
	result := r.db.Collection(runningSessionCollection).FindOneAndUpdate(
		ctx,
		sessionFilter(params.UserID, params.SessionKey),
		appendFeaturesUpdate(params, r.now()),
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)
	if result.Err() != nil {
		return nil, result.Err()
	}

	var session model.RunningSession
	if err := result.Decode(&session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *runningSessionMongoRepository) GetSessionByUserAndKey(
	ctx context.Context,
	userID int64,
	sessionKey string,
) (*model.RunningSession, error) {
	result := r.db.Collection(runningSessionCollection).FindOne(ctx, sessionFilter(userID, sessionKey))
	if result.Err() != nil {
		return nil, result.Err()
	}

	var session model.RunningSession
	if err := result.Decode(&session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *runningSessionMongoRepository) ListSessionsByUser(
	ctx context.Context,
	params ListSessionsParams,
) ([]*model.RunningSession, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.db.Collection(runningSessionCollection).Find(ctx, bson.M{"userId": params.UserID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	sessions := []*model.RunningSession{}
	for cursor.Next(ctx) {
		var session model.RunningSession
		if err := cursor.Decode(&session); err != nil {
			return nil, err
		}
		sessions = append(sessions, &session)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *runningSessionMongoRepository) GetLatestSessionNum(ctx context.Context, userID int64) (int, error) {
	result := r.db.Collection(runningSessionCollection).FindOne(
		ctx,
		bson.M{"userId": userID},
		options.FindOne().
			SetSort(bson.D{{Key: "sessionNum", Value: -1}}).
			SetProjection(bson.M{"sessionNum": 1}),
	)
	if result.Err() != nil {
		return 0, result.Err()
	}

	var latest struct {
		SessionNum int `bson:"sessionNum"`
	}
	if err := result.Decode(&latest); err != nil {
		return 0, err
	}

	return latest.SessionNum, nil
}

func (r *runningSessionMongoRepository) DeleteSessionsByUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.Collection(runningSessionCollection).DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}

func sessionFilter(userID int64, sessionKey string) bson.M {
	return bson.M{
		"userId":     userID,
		"sessionKey": sessionKey,
	}
}

// appendFeaturesUpdate writes the immutable fields only when the upsert inserts
// the document and always pushes the batch, so creating and appending are the
// same operation.
func appendFeaturesUpdate(params AppendFeaturesParams, now time.Time) bson.M {
	features := params.Features
	if features == nil {
		features = []model.Feature{}
	}

	return bson.M{
		"$setOnInsert": bson.M{
			"userId":     params.UserID,
			"sessionKey": params.SessionKey,
			"sessionNum": params.SessionNum,
			"createdAt":  now,
		},
		"$push": bson.M{
			"geoDataFeatures": bson.M{"$each": features},
		},
	}
}
