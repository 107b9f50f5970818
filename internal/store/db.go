package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Resolution{}, &StoredArtifact{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveResolution appends an audit row.
func (d *Database) SaveResolution(r *Resolution) error {
	if r == nil {
		return errors.New("resolution is nil")
	}
	if r.AttemptsJSON == "" {
		r.AttemptsJSON = "[]"
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(r).Error
}

// SaveArtifact records a stored media file. Re-recording a location keeps
// the first row.
func (d *Database) SaveArtifact(a *StoredArtifact) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	if strings.TrimSpace(a.Location) == "" {
		return errors.New("artifact location is empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "location"}},
		DoNothing: true,
	}).Create(a).Error
}

// ResolutionQuery encapsulates filters and pagination for listing audit rows.
type ResolutionQuery struct {
	Domain     string
	Provenance string
	RequestID  string
	Offset     int
	Limit      int
}

// ListResolutions returns audit rows, newest first.
func (d *Database) ListResolutions(opts ResolutionQuery) ([]Resolution, int64, error) {
	base := d.gorm.Model(&Resolution{})
	if v := strings.TrimSpace(opts.Domain); v != "" {
		base = base.Where("domain = ?", v)
	}
	if v := strings.TrimSpace(opts.Provenance); v != "" {
		base = base.Where("provenance = ?", v)
	}
	if v := strings.TrimSpace(opts.RequestID); v != "" {
		base = base.Where("request_id = ?", v)
	}
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q := base.Order("id DESC").Offset(opts.Offset)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var rows []Resolution
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListArtifacts returns stored artifacts for a procedure, newest first.
func (d *Database) ListArtifacts(procedure string, limit int) ([]StoredArtifact, error) {
	q := d.gorm.Model(&StoredArtifact{}).Order("id DESC")
	if p := strings.TrimSpace(procedure); p != "" {
		q = q.Where("procedure = ?", p)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []StoredArtifact
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_resolutions_domain_provenance ON resolutions(domain, provenance)",
		"CREATE INDEX IF NOT EXISTS idx_stored_artifacts_procedure_created ON stored_artifacts(procedure, created_at)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
