// Package services: GifService
//
// This file implements the GifService, the core of the bot: it persists an
// uploaded clip's bytes to content storage under a content-derived key and
// maintains, per community, the mapping from short names to clip addresses.
// It owns the first-insert-vs-subsequent-update branching of the catalog
// record and the key derivation policy; everything else (command parsing,
// attachment download, presentation) lives outside.
//
// Service-level errors (ErrContentStore, ErrCatalogStore, ErrNameNotFound)
// are returned for predictable cases so routers and handlers can map them to
// user-facing results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-gif-bot/internal/blob"
	"github.com/tbourn/go-gif-bot/internal/domain"
	"github.com/tbourn/go-gif-bot/internal/repo"
)

// clipContentType is the fixed media type clips are stored and served under.
const clipContentType = "image/gif"

// clipExt is the fixed extension appended to every derived storage key.
const clipExt = ".gif"

// CatalogRepo defines the repository contract required by GifService.
// Implementations are responsible for persistence of per-community catalog
// records.
type CatalogRepo interface {
	// CountCatalogs is the existence probe for a community's record.
	CountCatalogs(ctx context.Context, db *gorm.DB, community string) (int64, error)

	// CreateCatalog inserts a brand-new record holding exactly the given map.
	CreateCatalog(ctx context.Context, db *gorm.DB, community string, gifs domain.GifMap) error

	// UpdateCatalogGif patches a single map entry, preserving siblings.
	UpdateCatalogGif(ctx context.Context, db *gorm.DB, community, name, address string) error

	// GetCatalogGifs returns the record's gifs map, or repo.ErrNotFound.
	GetCatalogGifs(ctx context.Context, db *gorm.DB, community string) (domain.GifMap, error)
}

// GifService orchestrates clip uploads and lookups. It is stateless: every
// read and write goes to the stores, so concurrent commands need no
// service-level coordination. In particular the probe-then-branch sequence
// in Upload is intentionally not serialized; two concurrent first uploads
// for a community race at the store, where the record's primary key decides
// the winner.
type GifService struct {
	// DB is the GORM handle used for catalog persistence.
	DB *gorm.DB
	// Repo is the catalog repository used by this service.
	Repo CatalogRepo
	// Blobs is the content store holding clip bytes.
	Blobs blob.Store

	// now supplies upload timestamps; injectable for deterministic tests.
	now func() time.Time
}

// NewGifService constructs a GifService over the given stores.
func NewGifService(db *gorm.DB, r CatalogRepo, blobs blob.Store) *GifService {
	return &GifService{
		DB:    db,
		Repo:  r,
		Blobs: blobs,
		now:   time.Now,
	}
}

// Upload stores data as the clip registered under name for community.
//
// Flow and contract:
//  1. A storage key is derived from the original filename, the current unix
//     time, and the community (see deriveKey).
//  2. The bytes are written to the content store. On failure the call ends
//     with ErrContentStore; the catalog is never touched (fail fast, no
//     partial catalog state).
//  3. The catalog is probed for an existing record. Absent record: a new one
//     is created holding exactly {name: address}. Present record: only the
//     one entry is patched, siblings untouched.
//  4. Registering an existing name silently replaces its address (last write
//     wins, by contract not by accident). A probe or mutation failure ends
//     the call with ErrCatalogStore; the already-written blob stays behind,
//     orphaned, which is accepted.
//
// Community and name are opaque: no trimming, casing, or validation beyond
// what the stores themselves enforce.
func (s *GifService) Upload(ctx context.Context, community, name, filename string, data []byte) error {
	key := deriveKey(filename, community, s.now().Unix())

	if err := s.Blobs.Put(ctx, key, data, clipContentType); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrContentStore, key, err)
	}
	address := s.Blobs.URL(key)

	n, err := s.Repo.CountCatalogs(ctx, s.DB, community)
	if err != nil {
		return fmt.Errorf("%w: probe %s: %v", ErrCatalogStore, community, err)
	}

	if n == 0 {
		err = s.Repo.CreateCatalog(ctx, s.DB, community, domain.GifMap{name: address})
	} else {
		err = s.Repo.UpdateCatalogGif(ctx, s.DB, community, name, address)
	}
	if err != nil {
		return fmt.Errorf("%w: save %s/%s: %v", ErrCatalogStore, community, name, err)
	}
	return nil
}

// Names returns the registered gif names for community, unordered. A
// community with no record simply has zero names yet: that is the expected
// first-use state and yields an empty slice, not an error. Transport
// failures surface as ErrCatalogStore.
func (s *GifService) Names(ctx context.Context, community string) ([]string, error) {
	gifs, err := s.Repo.GetCatalogGifs(ctx, s.DB, community)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrCatalogStore, community, err)
	}
	names := make([]string, 0, len(gifs))
	for n := range gifs {
		names = append(names, n)
	}
	return names, nil
}

// Address resolves name to its clip address within community. An absent
// community and an absent name are indistinguishable to the caller: both
// yield ErrNameNotFound, the expected recoverable outcome. Transport
// failures surface as ErrCatalogStore so presentation can tell "not found"
// from "service unavailable".
func (s *GifService) Address(ctx context.Context, community, name string) (string, error) {
	gifs, err := s.Repo.GetCatalogGifs(ctx, s.DB, community)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrNameNotFound
		}
		return "", fmt.Errorf("%w: read %s: %v", ErrCatalogStore, community, err)
	}
	address, ok := gifs[name]
	if !ok {
		return "", ErrNameNotFound
	}
	return address, nil
}

// deriveKey builds the content-store key for one upload event:
//
//	{community}/{uuidv3(filename)}-{unix seconds}{.gif}
//
// The UUID is a namespaced (NameSpaceURL) hash of the filename, so the same
// filename always contributes the same identifier component; the timestamp
// and community make the full key practically unique per upload while
// keeping it derivable from purely local inputs, with no round trip to the
// catalog before the blob write. Second-granularity timestamps leave a
// narrow window: two uploads of the same filename to the same community in
// the same second derive the same key, and the write-once content store
// then keeps the first upload's bytes for both registrations.
func deriveKey(filename, community string, unixSecs int64) string {
	u := uuid.NewMD5(uuid.NameSpaceURL, []byte(filename))
	return fmt.Sprintf("%s/%s-%d%s", community, u, unixSecs, clipExt)
}
