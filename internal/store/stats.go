package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ProvenanceCounts aggregates resolutions per domain and provenance, most
// frequent first.
func (d *Database) ProvenanceCounts() ([]ProvenanceCount, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	var results []ProvenanceCount
	query := d.gorm.Table("resolutions").
		Select("domain, provenance, COUNT(*) AS total").
		Group("domain, provenance").
		Order("total DESC, domain ASC, provenance ASC")
	if err := query.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("provenance counts: %w", err)
	}
	return results, nil
}

// FallbackRate returns the share of resolutions in a domain that were served
// from fallback content. An empty domain covers all rows.
func (d *Database) FallbackRate(domain string) (float64, error) {
	if d == nil {
		return 0, errors.New("database is nil")
	}
	inDomain := func(db *gorm.DB) *gorm.DB {
		if domain == "" {
			return db
		}
		return db.Where("domain = ?", domain)
	}
	var total, fallback int64
	if err := d.gorm.Model(&Resolution{}).Scopes(inDomain).Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	if err := d.gorm.Model(&Resolution{}).Scopes(inDomain).Where("provenance = ?", "fallback").Count(&fallback).Error; err != nil {
		return 0, err
	}
	return float64(fallback) / float64(total), nil
}
