package postgres

import (
	"StudentVerify/internal/adapters/security"
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	testDB     *DB
	testSecSvc ports.SecurityPort
	testRepo   ports.VerificationRepository
)

// TestMain connects to TEST_DATABASE_URL, or starts a throwaway Postgres
// container when it is unset, and applies the schema. Without either the
// integration tests are skipped.
func TestMain(m *testing.M) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		containerURL, terminate, err := startPostgresContainer()
		if err != nil {
			fmt.Printf("TEST_DATABASE_URL not set and no container runtime (%v), skipping postgres integration tests\n", err)
			os.Exit(0)
		}
		url = containerURL
		defer terminate()
	}

	nopLogger := zerolog.Nop()

	// 1. Security service with a throwaway key
	var err error
	testSecSvc, err = security.NewAESServiceFromHex(strings.Repeat("0f", 32), &nopLogger)
	if err != nil {
		log.Fatalf("TestMain: Failed to create security service: %v", err)
	}

	// 2. DB connection and schema
	ctx := context.Background()
	testDB, err = NewDB(ctx, url, &nopLogger)
	if err != nil {
		log.Fatalf("TestMain: Failed to connect to test database: %v", err)
	}
	if err := testDB.ApplySchema(ctx, "../../../migrations/001_verification.sql"); err != nil {
		log.Fatalf("TestMain: %v", err)
	}
	testRepo = NewVerificationRepository(testDB, testSecSvc, &nopLogger)

	// 3. Run tests. TestMain returns instead of calling os.Exit so the
	// container is terminated; the exit code still comes from m.Run.
	m.Run()
	testDB.Close()
}

func startPostgresContainer() (string, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("verify_test"),
		tcpostgres.WithUsername("verify"),
		tcpostgres.WithPassword("verify"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, err
	}
	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		return "", nil, err
	}
	return url, func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			log.Printf("TestMain: failed to terminate postgres container: %v", err)
		}
	}, nil
}

// createTestRequest inserts an open request for a fresh user and removes
// everything for that user when the test ends.
func createTestRequest(t *testing.T) *domain.VerificationRequest {
	t.Helper()
	userID := uuid.New()
	req, created, err := testRepo.CreateOrGetOpen(t.Context(), userID, userID.String()+"/card.jpg")
	if err != nil || !created {
		t.Fatalf("createTestRequest failed: created=%v err=%v", created, err)
	}
	t.Cleanup(func() { cleanupTestUser(t, userID) })
	return req
}

func cleanupTestUser(t *testing.T, userID uuid.UUID) {
	ctx := context.Background()
	for _, q := range []string{
		"DELETE FROM verification_requests WHERE user_id = $1",
		"DELETE FROM notifications WHERE user_id = $1",
		"DELETE FROM profiles WHERE id = $1",
	} {
		if _, err := testDB.pool.Exec(ctx, q, userID); err != nil {
			t.Logf("Warning: cleanup %q for %s failed: %v", q, userID, err)
		}
	}
}

// parkOtherRows keeps leftovers from earlier runs out of batch claims.
func parkOtherRows(t *testing.T) {
	t.Helper()
	_, err := testDB.pool.Exec(t.Context(),
		`UPDATE verification_requests SET next_retry_at = now() + interval '100 years'
		 WHERE status = 'pending_ocr'`)
	if err != nil {
		t.Fatalf("parkOtherRows: %v", err)
	}
}
