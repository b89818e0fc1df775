package handlers

import (
	"io"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"squeegee/internal/gocardless"
	"squeegee/pkg/logging"
)

func testLogger() logging.Logger {
	l := logging.NewLogger()
	l.SetOutput(io.Discard)
	return l
}

// setupTest swaps in a mocked database and a silent logger for the package
// state, restoring the originals when the test finishes.
func setupTest(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	origDB, origLogger, origMetrics := db, logger, metrics
	db = mockDB
	logger = testLogger()
	metrics = nil

	t.Cleanup(func() {
		db, logger, metrics = origDB, origLogger, origMetrics
		mockDB.Close()
	})

	return mock
}

// setProviderClient swaps in a payment provider client for the given
// environment, optionally pointed at a test upstream.
func setProviderClient(t *testing.T, environment, baseURL string) {
	t.Helper()

	client, err := gocardless.NewClient(gocardless.Config{
		AccessToken: "test-token",
		Environment: environment,
		BaseURL:     baseURL,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create test provider client: %v", err)
	}

	origClient := gcClient
	gcClient = client
	t.Cleanup(func() { gcClient = origClient })
}
