package db

import (
	"database/sql"
	"fmt"
	"log"

	"torb/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
// The tracks table is managed here with raw DDL; ancillary tables (playlists,
// chats, preferences) are migrated through GORM, see gorm.go.
func InitDB() error {
	if err := createTracksTable(); err != nil {
		return err
	}
	log.Println("Database initialization completed.")
	return nil
}

func createTracksTable() error {
	// hls_root is NULL until the transcode pipeline marks the track ready.
	// uuid is assigned once at intake and never updated.
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id INT AUTO_INCREMENT PRIMARY KEY,
		uuid CHAR(36) NOT NULL,
		title VARCHAR(255) NOT NULL,
		uploader VARCHAR(100) NOT NULL,
		original_path VARCHAR(767) NOT NULL,
		cover_filename VARCHAR(255),
		hls_root VARCHAR(767),
		duration FLOAT,
		status VARCHAR(20) NOT NULL DEFAULT 'processing',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT uq_tracks_uuid UNIQUE (uuid)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}

	log.Println("Tracks table initialized successfully (or already exists).")
	return nil
}
