package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

// GetMongoURI starts a throwaway MongoDB container on first use and returns
// its connection URI. The test is skipped under -short.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	SkipIfShort(t)
	startMongoContainerOnce(t)
	if mongoErr != nil {
		t.Fatalf("mongo container: %v", mongoErr)
	}
	return mongoURI
}

func startMongoContainerOnce(t *testing.T) {
	t.Helper()

	mongoOnce.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		mongoC, err := testcontainers.Run(
			ctx, "mongo:7",
			testcontainers.WithExposedPorts("27017/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("mongod startup complete"),
			),
		)
		if err != nil {
			mongoErr = err
			return
		}

		t.Cleanup(func() {
			testcontainers.CleanupContainer(t, mongoC)
		})

		endpoint, err := mongoC.Endpoint(ctx, "")
		if err != nil {
			mongoErr = err
			return
		}
		mongoURI = fmt.Sprintf("mongodb://%s", endpoint)
	})
}
