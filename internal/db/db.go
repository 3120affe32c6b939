package db

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"priceintel/internal/config"
)

// Connect opens a GORM database connection using APP_DATABASE_URL (PostgreSQL URL).
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, errors.New("APP_DATABASE_URL is required (PostgreSQL URL)")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, err
	}

	// Auto-migrate the core tables.
	if err := db.AutoMigrate(
		&Vendor{},
		&VendorItem{},
		&CanonicalItem{},
		&DailyRollup{},
		&ItemStats{},
		&APIKey{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

// EnsureBootstrapAPIKey makes sure the bootstrap ingest key from config exists.
// The key is stored as a bcrypt hash; if any key named "bootstrap" already
// exists, it is left as-is so rotated hashes are not silently reverted.
func EnsureBootstrapAPIKey(db *gorm.DB, cfg *config.Config) error {
	if cfg.IngestAPIKey == "" {
		return nil
	}

	var count int64
	if err := db.Model(&APIKey{}).Where("name = ?", "bootstrap").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.IngestAPIKey), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	key := &APIKey{
		Name:    "bootstrap",
		KeyHash: string(hash),
		Active:  true,
	}

	return db.Create(key).Error
}

// FindAPIKeyByToken returns the active key whose bcrypt hash matches the
// presented token, or nil if none does. Keys are few, so scanning them is
// fine; the hash comparison dominates anyway.
func FindAPIKeyByToken(db *gorm.DB, token string) (*APIKey, error) {
	var keys []APIKey
	if err := db.Where("active = ?", true).Find(&keys).Error; err != nil {
		return nil, err
	}
	for i := range keys {
		if bcrypt.CompareHashAndPassword([]byte(keys[i].KeyHash), []byte(token)) == nil {
			return &keys[i], nil
		}
	}
	return nil, nil
}
