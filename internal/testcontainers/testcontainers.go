// Package testcontainers starts throwaway PostgreSQL and Redis containers for
// integration tests. Containers are only started when EVENTHUB_INTEGRATION=1
// and the tests are not running in -short mode; otherwise the calling test is
// skipped. Docker must be available.
package testcontainers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 60 * time.Second

// RequireIntegration skips t unless integration tests are enabled.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("EVENTHUB_INTEGRATION") != "1" {
		t.Skip("set EVENTHUB_INTEGRATION=1 to run integration tests")
	}
}

// start runs req and returns the host:port endpoint of its first exposed
// port. The container is terminated when t finishes.
func start(t *testing.T, req testcontainers.ContainerRequest) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s container: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate %s container: %v", req.Image, err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get %s endpoint: %v", req.Image, err)
	}

	return endpoint
}

// PostgresDSN starts a PostgreSQL container and returns its connection URL.
func PostgresDSN(t *testing.T) string {
	t.Helper()
	RequireIntegration(t)

	const (
		user     = "test"
		password = "test"
		database = "eventhub"
	)

	endpoint := start(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       database,
		},
		// The official image restarts once after init, so the ready line
		// appears twice.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	})

	return fmt.Sprintf("postgresql://%s:%s@%s/%s?sslmode=disable",
		user, password, endpoint, database)
}

// RedisAddr starts a Redis container and returns its host:port address.
func RedisAddr(t *testing.T) string {
	t.Helper()
	RequireIntegration(t)

	return start(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	})
}
