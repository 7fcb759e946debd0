//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/controlinterno/casos-api/internal/database"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/controlinterno/casos-api/internal/repositories"
	"github.com/controlinterno/casos-api/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

// TestDB manages the PostgreSQL testcontainer and the migrated database
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("casos"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := database.NewFromPool(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))

	goose.SetLogger(log.New(io.Discard, "", 0))
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (tdb *TestDB) Teardown(ctx context.Context) error {
	if tdb.DB != nil {
		tdb.DB.Close()
	}
	if tdb.Container != nil {
		return tdb.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates every mutable table; seeded roles survive
func (tdb *TestDB) CleanupTables(ctx context.Context) error {
	for _, table := range []string{"audit_logs", "sessions", "accounts"} {
		if _, err := tdb.DB.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// SeedAccount inserts an active account with the given role and password
func (tdb *TestDB) SeedAccount(ctx context.Context, username, password, roleName string) (*models.Account, error) {
	role, err := repositories.NewRoleRepository(tdb.DB.SQL).GetByName(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("failed to load role %s: %w", roleName, err)
	}

	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		Username:     username,
		Email:        username + "@controlinterno.cl",
		FullName:     "Cuenta " + username,
		PasswordHash: hash,
		RoleID:       role.ID,
		Role:         role,
		Active:       true,
	}
	if err := repositories.NewAccountRepository(tdb.DB).Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return account, nil
}

// SetActive flips the active flag of an account
func (tdb *TestDB) SetActive(ctx context.Context, accountID int64, active bool) error {
	_, err := tdb.DB.Pool.Exec(ctx, `UPDATE accounts SET active = $2 WHERE id = $1`, accountID, active)
	return err
}
