package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255),
			wallet_address VARCHAR(64),
			is_admin BOOLEAN DEFAULT false,
			last_login_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_users_wallet ON users(wallet_address)`,

		`CREATE TABLE IF NOT EXISTS user_sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			refresh_token_hash VARCHAR(64) NOT NULL,
			ip_address VARCHAR(45),
			user_agent TEXT,
			expires_at TIMESTAMP NOT NULL,
			revoked_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT NOW(),
			last_used_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_token ON user_sessions(refresh_token_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON user_sessions(user_id)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID UNIQUE NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			wallet_address VARCHAR(64),
			plan_tier VARCHAR(20) NOT NULL DEFAULT 'free',
			plan_version INTEGER NOT NULL DEFAULT 1,
			billing_cycle VARCHAR(20) NOT NULL DEFAULT 'monthly',
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			start_date TIMESTAMP NOT NULL DEFAULT NOW(),
			end_date TIMESTAMP NOT NULL,
			auto_renew BOOLEAN DEFAULT false,
			daily_trades_used INTEGER NOT NULL DEFAULT 0,
			daily_trades_reset_at TIMESTAMP NOT NULL,
			total_trades_used INTEGER NOT NULL DEFAULT 0,
			timezone VARCHAR(64) NOT NULL DEFAULT 'UTC',
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_tier ON subscriptions(plan_tier)`,

		`CREATE TABLE IF NOT EXISTS forex_licenses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			license_key VARCHAR(40) UNIQUE NOT NULL,
			plan_type VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			trades_used_today INTEGER NOT NULL DEFAULT 0,
			last_trade_date TIMESTAMP,
			expires_at TIMESTAMP,
			payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forex_licenses_key ON forex_licenses(license_key)`,
		`CREATE INDEX IF NOT EXISTS idx_forex_licenses_user ON forex_licenses(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_forex_licenses_status ON forex_licenses(status)`,

		`CREATE TABLE IF NOT EXISTS license_codes (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			code VARCHAR(32) UNIQUE NOT NULL,
			plan_tier VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT NOW(),
			expires_at TIMESTAMP,
			activated_at TIMESTAMP,
			activated_by VARCHAR(64),
			machine_id VARCHAR(128),
			is_active BOOLEAN DEFAULT true
		)`,
		`CREATE INDEX IF NOT EXISTS idx_license_codes_code ON license_codes(code)`,
		`CREATE INDEX IF NOT EXISTS idx_license_codes_tier ON license_codes(plan_tier)`,
		`CREATE INDEX IF NOT EXISTS idx_license_codes_active ON license_codes(is_active)`,

		`CREATE TABLE IF NOT EXISTS license_usage_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			credential VARCHAR(64) NOT NULL,
			machine_id VARCHAR(128),
			ip VARCHAR(45),
			user_agent TEXT,
			success BOOLEAN,
			message TEXT,
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_license_logs_credential ON license_usage_logs(credential)`,
		`CREATE INDEX IF NOT EXISTS idx_license_logs_created ON license_usage_logs(created_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
