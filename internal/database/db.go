package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlite connection with pooling and prepared statements.
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

// NewDB opens (creating if needed) the water-management database under
// dataDir and runs migrations.
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "smartwater.db")

	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		// Municipal corporations
		`CREATE TABLE IF NOT EXISTS municipal_data (
			mc_code TEXT PRIMARY KEY,
			mc_name TEXT NOT NULL,
			division_code TEXT,
			population INTEGER DEFAULT 0,
			total_demand_mld REAL DEFAULT 0,
			current_supply_mld REAL DEFAULT 0,
			predicted_efficiency REAL,
			critical_risk INTEGER DEFAULT 0,
			recommended_action TEXT,
			last_updated DATETIME
		)`,

		// MC operator accounts
		`CREATE TABLE IF NOT EXISTS mc_users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			mc_code TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE(username, mc_code),
			FOREIGN KEY (mc_code) REFERENCES municipal_data(mc_code)
		)`,

		// Water supply hubs and their MC mapping
		`CREATE TABLE IF NOT EXISTS hub_table (
			hub_id TEXT PRIMARY KEY,
			hub_name TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS mc_hub_mapping (
			mc_code TEXT NOT NULL,
			hub_id TEXT NOT NULL,
			PRIMARY KEY (mc_code, hub_id),
			FOREIGN KEY (mc_code) REFERENCES municipal_data(mc_code),
			FOREIGN KEY (hub_id) REFERENCES hub_table(hub_id)
		)`,

		// Scored water quality readings
		`CREATE TABLE IF NOT EXISTS water_quality_records (
			id TEXT PRIMARY KEY,
			mc_code TEXT NOT NULL,
			hub_id TEXT NOT NULL,
			temperature REAL NOT NULL,
			ph REAL NOT NULL,
			bod REAL NOT NULL,
			faecal_coliform REAL NOT NULL,
			total_coliform REAL NOT NULL,
			nitrate REAL NOT NULL,
			conductivity REAL NOT NULL,
			wqi REAL NOT NULL,
			category TEXT NOT NULL,
			anomaly_status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			used_for_training INTEGER NOT NULL DEFAULT 0
		)`,

		// Scored distribution figures
		`CREATE TABLE IF NOT EXISTS water_distribution_records (
			id TEXT PRIMARY KEY,
			mc_code TEXT NOT NULL,
			hub_id TEXT NOT NULL,
			total_demand_mld REAL NOT NULL,
			current_supply_mld REAL NOT NULL,
			population INTEGER NOT NULL,
			deficit_mld REAL NOT NULL,
			per_capita_lpcd REAL NOT NULL,
			predicted_supply_efficiency REAL NOT NULL,
			critical_risk INTEGER NOT NULL,
			recommended_action TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Indexes for the record listing and trend queries
		`CREATE INDEX IF NOT EXISTS idx_quality_mc ON water_quality_records(mc_code, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_quality_mc_hub ON water_quality_records(mc_code, hub_id)`,
		`CREATE INDEX IF NOT EXISTS idx_quality_training ON water_quality_records(used_for_training)`,
		`CREATE INDEX IF NOT EXISTS idx_distribution_mc ON water_distribution_records(mc_code, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_distribution_mc_hub ON water_distribution_records(mc_code, hub_id)`,
		`CREATE INDEX IF NOT EXISTS idx_mc_users_login ON mc_users(username, mc_code)`,
		`CREATE INDEX IF NOT EXISTS idx_hub_mapping_mc ON mc_hub_mapping(mc_code)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_quality_record": `INSERT INTO water_quality_records (
			id, mc_code, hub_id, temperature, ph, bod, faecal_coliform, total_coliform,
			nitrate, conductivity, wqi, category, anomaly_status, created_at, used_for_training
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,

		"insert_distribution_record": `INSERT INTO water_distribution_records (
			id, mc_code, hub_id, total_demand_mld, current_supply_mld, population,
			deficit_mld, per_capita_lpcd, predicted_supply_efficiency, critical_risk,
			recommended_action, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"get_user_login": `SELECT u.id, u.username, u.password_hash, u.mc_code, m.mc_name
			FROM mc_users u
			JOIN municipal_data m ON u.mc_code = m.mc_code
			WHERE u.username = ? AND u.mc_code = ?`,

		"get_hubs_for_mc": `SELECT h.hub_id, h.hub_name
			FROM mc_hub_mapping m
			JOIN hub_table h ON m.hub_id = h.hub_id
			WHERE m.mc_code = ?
			ORDER BY h.hub_name ASC`,

		"get_municipal": `SELECT mc_code, mc_name, division_code, population,
			total_demand_mld, current_supply_mld, predicted_efficiency, critical_risk,
			recommended_action, last_updated
			FROM municipal_data WHERE mc_code = ?`,

		"mark_quality_trained": `UPDATE water_quality_records
			SET used_for_training = 1 WHERE used_for_training = 0`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
