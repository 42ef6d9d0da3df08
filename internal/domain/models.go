// Package domain defines the persistence models for the gif catalog. These
// types are mapped with GORM and form the core data layer of the bot.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GifMap is the per-community name → clip address mapping, persisted as a
// JSON text column so that individual entries can be patched in place with
// sqlite's json_patch without rewriting sibling entries.
type GifMap map[string]string

// Value serializes the map to JSON for storage. A nil map is stored as an
// empty JSON object rather than SQL NULL so json_patch always has a document
// to patch.
func (m GifMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan deserializes the stored JSON document back into the map.
func (m *GifMap) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = GifMap{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("gifmap: unsupported column type %T", src)
	}
	if len(b) == 0 {
		*m = GifMap{}
		return nil
	}
	out := GifMap{}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// CatalogRecord is the per-community catalog row: one record per community,
// created lazily on the community's first successful upload and mutated by
// every subsequent one. Communities and gif names are opaque strings; no
// normalization is applied, so lookups are case- and whitespace-sensitive.
//
// Fields:
//   - Community: opaque community (guild) identifier, primary key.
//   - Gifs: name → clip address map, stored as a JSON document.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type CatalogRecord struct {
	Community string    `json:"community" gorm:"type:varchar(64);primaryKey"`
	Gifs      GifMap    `json:"gifs"      gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for CatalogRecord.
func (CatalogRecord) TableName() string { return "catalogs" }

// Validate reports whether the record is storable: a catalog row without a
// community key is never meaningful.
func (r *CatalogRecord) Validate() error {
	if r.Community == "" {
		return errors.New("catalog record requires a community")
	}
	return nil
}
