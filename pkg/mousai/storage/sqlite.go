package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "mousai.sqlite3"
const errDBClientNil = "db client is nil"

// Setting keys.
const (
	KeyToken         = "api_token"
	KeyListenSeconds = "listen_seconds"
)

// ErrNotFound is returned for settings that were never written.
var ErrNotFound = errors.New("setting not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Setting is one key/value pair of the settings table.
type Setting struct {
	Name      string `gorm:"primaryKey;type:varchar(64)"`
	Value     string
	UpdatedAt time.Time
}

type Link struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// HistoryEntry is one recognized song. Position 0 is the most recent.
type HistoryEntry struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Position      int       `gorm:"index:idx_history_position" json:"position"`
	Title         string    `json:"title"`
	Artist        string    `json:"artist"`
	SongLink      string    `gorm:"uniqueIndex:idx_history_link" json:"song_link"`
	PreviewURL    string    `json:"preview_url"`
	ArtworkURL    string    `json:"artwork_url"`
	ExternalLinks []Link    `gorm:"serializer:json" json:"external_links"`
	RecognizedAt  time.Time `json:"recognized_at"`
}

// NewDBClient opens the database at MOUSAI_DB_PATH, or DefaultDBFile.
func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("MOUSAI_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// one writer; sqlite serializes anyway
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Setting{}, &HistoryEntry{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) GetSetting(name string) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}
	var s Setting
	err := c.DB.Where("name = ?", name).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", name, err)
	}
	return s.Value, nil
}

// SetSetting inserts or overwrites a setting.
func (c *DBClient) SetSetting(name, value string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	s := Setting{Name: name, Value: value, UpdatedAt: time.Now()}
	err := c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", name, err)
	}
	return nil
}

func (c *DBClient) DeleteSetting(name string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Where("name = ?", name).Delete(&Setting{}).Error
}

// ListHistory returns every entry, most recent first.
func (c *DBClient) ListHistory() ([]HistoryEntry, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []HistoryEntry
	if err := c.DB.Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return rows, nil
}

// ReplaceHistory overwrites the stored history with entries, in order.
// Later duplicates of a song link are dropped.
func (c *DBClient) ReplaceHistory(entries []HistoryEntry) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}

	rows := make([]HistoryEntry, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.SongLink] {
			continue
		}
		seen[e.SongLink] = true
		e.ID = 0
		e.Position = len(rows)
		rows = append(rows, e)
	}

	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&HistoryEntry{}).Error; err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("inserting history: %w", err)
		}
		return nil
	})
}
