package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RunningSession represents one workout of a user. Every batch the client uploads
// while the workout is active is appended to GeoDataFeatures.
type RunningSession struct {
	ID              bson.ObjectID `bson:"_id,omitempty"   json:"id"`
	UserID          int64         `bson:"userId"          json:"userId"`
	SessionKey      string        `bson:"sessionKey"      json:"sessionKey"`
	SessionNum      int           `bson:"sessionNum"      json:"sessionNum"`
	CreatedAt       time.Time     `bson:"createdAt"       json:"createdAt"`
	GeoDataFeatures []Feature     `bson:"geoDataFeatures" json:"geoDataFeatures"`
}

// FeatureCount returns the number of segments stored for the session.
func (s *RunningSession) FeatureCount() int {
	return len(s.GeoDataFeatures)
}
