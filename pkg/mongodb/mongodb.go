package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client represents a MongoDB client
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewClient creates a new MongoDB client
func NewClient(uri string) (*Client, error) {
	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		return nil, err
	}

	// Check the connection
	err = client.Ping(context.Background(), nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		client: client,
	}, nil
}

// Raw returns the underlying driver client
func (c *Client) Raw() *mongo.Client {
	return c.client
}

// Database returns a database
func (c *Client) Database(name string) *mongo.Database {
	if c.db == nil || c.db.Name() != name {
		c.db = c.client.Database(name)
	}
	return c.db
}

// Disconnect disconnects from MongoDB
func (c *Client) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// SupportsTransactions probes the deployment topology. Multi-document
// transactions require a replica set or sharded cluster; on a standalone
// node they fail at runtime, so the capability is checked once at startup.
func (c *Client) SupportsTransactions(ctx context.Context) bool {
	var result bson.M
	err := c.client.Database("admin").
		RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).
		Decode(&result)
	if err != nil {
		// Older servers only speak isMaster.
		err = c.client.Database("admin").
			RunCommand(ctx, bson.D{{Key: "isMaster", Value: 1}}).
			Decode(&result)
		if err != nil {
			return false
		}
	}

	// setName is present on replica set members; msg == "isdbgrid" marks a
	// mongos router.
	if _, ok := result["setName"]; ok {
		return true
	}
	if msg, ok := result["msg"].(string); ok && msg == "isdbgrid" {
		return true
	}
	return false
}
