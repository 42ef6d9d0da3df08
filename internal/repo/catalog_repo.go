// Package repo implements the data persistence layer for the gif catalog,
// backed by GORM. This file provides the repository functions for the
// per-community CatalogRecord.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a catalog record is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// The create/update split mirrors the upload flow: the service probes for an
// existing record with CountCatalogs and then either inserts a fresh row
// (CreateCatalog) or patches a single map entry in place (UpdateCatalogGif).
// Two concurrent first-uploads for the same community race at this layer;
// the primary key on community means one insert wins and the loser surfaces
// the constraint error. The service deliberately takes no lock around the
// probe-then-write sequence.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-gif-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CountCatalogs returns the number of catalog records stored for community
// (zero or one, given the primary key). It is the existence probe used by
// the upload flow. On DB error, it returns the error.
func CountCatalogs(ctx context.Context, db *gorm.DB, community string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.CatalogRecord{}).
		Where("community = ?", community).
		Count(&total).Error
	return total, err
}

// CreateCatalog inserts a brand-new catalog record for community whose gifs
// map holds exactly the given entries. It is create-only: inserting a second
// record for the same community fails on the primary key, which is the
// store-level resolution of the first-upload race. On DB error, the raw
// error is returned.
func CreateCatalog(ctx context.Context, db *gorm.DB, community string, gifs domain.GifMap) error {
	rec := &domain.CatalogRecord{
		Community: community,
		Gifs:      gifs,
		CreatedAt: time.Now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	return db.WithContext(ctx).Create(rec).Error
}

// UpdateCatalogGif sets gifs[name] = address on the record for community,
// leaving sibling entries untouched. The single-entry patch is marshalled in
// Go and merged with sqlite's json_patch (RFC 7396), so the map is never
// read back and rewritten whole and the name never appears inside a JSON
// path expression: sqlite's path parser has its own quoting rules and names
// are opaque strings, so escaping is left to Go's marshaller. Merge deletes
// are not a concern because addresses are never null. If no record exists
// for the community, it returns ErrNotFound. On DB error, the raw error is
// returned.
func UpdateCatalogGif(ctx context.Context, db *gorm.DB, community, name, address string) error {
	patch, err := json.Marshal(domain.GifMap{name: address})
	if err != nil {
		return err
	}
	res := db.WithContext(ctx).
		Model(&domain.CatalogRecord{}).
		Where("community = ?", community).
		Update("gifs", gorm.Expr("json_patch(gifs, ?)", string(patch)))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetCatalogGifs fetches only the gifs column of the record for community.
// If the record does not exist, it returns ErrNotFound. On other DB errors,
// the raw error is returned.
func GetCatalogGifs(ctx context.Context, db *gorm.DB, community string) (domain.GifMap, error) {
	var rec domain.CatalogRecord
	err := db.WithContext(ctx).
		Select("gifs").
		Where("community = ?", community).
		Take(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.Gifs == nil {
		rec.Gifs = domain.GifMap{}
	}
	return rec.Gifs, nil
}
