package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
// operationTimeout bounds every operation issued through the returned client.
func ConnectMongo(ctx context.Context, uri string, operationTimeout time.Duration) (*mongo.Client, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetTimeout(operationTimeout)

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return client, nil
}
