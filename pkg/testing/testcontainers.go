package testing

import (
	"context"
	"fmt"

	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/matdesk/requisition-service/pkg/mongodb"
)

// TestDatabase is the database name repository integration tests run
// against. Each test run gets a fresh container, so no cleanup between
// tests is needed.
const TestDatabase = "requisition_test"

// MongoDBContainer wraps a testcontainers MongoDB instance
type MongoDBContainer struct {
	Container *tcmongodb.MongoDBContainer
	URI       string
}

// NewMongoDBContainer creates a new MongoDB testcontainer
func NewMongoDBContainer(ctx context.Context) (*MongoDBContainer, error) {
	mongoContainer, err := tcmongodb.Run(ctx,
		"mongo:6",
		tcmongodb.WithUsername("test"),
		tcmongodb.WithPassword("test"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	uri, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &MongoDBContainer{
		Container: mongoContainer,
		URI:       uri,
	}, nil
}

// ClientConfig returns a client configuration pointed at the container
// and the integration test database.
func (m *MongoDBContainer) ClientConfig() *mongodb.Config {
	config := mongodb.DefaultConfig()
	config.URI = m.URI
	config.Database = TestDatabase
	return config
}

// Close terminates the MongoDB container
func (m *MongoDBContainer) Close(ctx context.Context) error {
	if m.Container != nil {
		return m.Container.Terminate(ctx)
	}
	return nil
}
