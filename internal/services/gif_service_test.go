package services

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-gif-bot/internal/blob"
	"github.com/tbourn/go-gif-bot/internal/domain"
	"github.com/tbourn/go-gif-bot/internal/repo"
)

// ----- Fakes -----

type fakeCatalogRepo struct {
	countCommunity string
	countTotal     int64
	countErr       error

	createCommunity string
	createGifs      domain.GifMap
	createErr       error

	updateCommunity string
	updateName      string
	updateAddress   string
	updateErr       error

	getCommunity string
	getGifs      domain.GifMap
	getErr       error
}

func (r *fakeCatalogRepo) CountCatalogs(ctx context.Context, db *gorm.DB, community string) (int64, error) {
	r.countCommunity = community
	return r.countTotal, r.countErr
}

func (r *fakeCatalogRepo) CreateCatalog(ctx context.Context, db *gorm.DB, community string, gifs domain.GifMap) error {
	r.createCommunity, r.createGifs = community, gifs
	return r.createErr
}

func (r *fakeCatalogRepo) UpdateCatalogGif(ctx context.Context, db *gorm.DB, community, name, address string) error {
	r.updateCommunity, r.updateName, r.updateAddress = community, name, address
	return r.updateErr
}

func (r *fakeCatalogRepo) GetCatalogGifs(ctx context.Context, db *gorm.DB, community string) (domain.GifMap, error) {
	r.getCommunity = community
	return r.getGifs, r.getErr
}

type fakeBlobStore struct {
	putKey         string
	putData        []byte
	putContentType string
	putErr         error
}

func (b *fakeBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	b.putKey, b.putData, b.putContentType = key, data, contentType
	return b.putErr
}

func (b *fakeBlobStore) URL(key string) string { return "https://cdn.example/" + key }

func newFixedService(r *fakeCatalogRepo, b *fakeBlobStore) *GifService {
	s := NewGifService(nil, r, b)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

// ----- Key derivation -----

func TestDeriveKey_Deterministic(t *testing.T) {
	a := deriveKey("party.gif", "guild1", 1700000000)
	b := deriveKey("party.gif", "guild1", 1700000000)
	if a != b {
		t.Fatalf("same inputs produced different keys: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "guild1/") {
		t.Fatalf("key not scoped by community: %q", a)
	}
	if !strings.HasSuffix(a, "-1700000000.gif") {
		t.Fatalf("key missing timestamp/extension: %q", a)
	}
}

func TestDeriveKey_TimestampChangesKey(t *testing.T) {
	a := deriveKey("party.gif", "guild1", 1700000000)
	b := deriveKey("party.gif", "guild1", 1700000001)
	if a == b {
		t.Fatalf("different timestamps produced the same key: %q", a)
	}
}

func TestDeriveKey_FilenameHashIsStable(t *testing.T) {
	a := deriveKey("party.gif", "guild1", 1)
	b := deriveKey("party.gif", "guild2", 1)
	// Same filename → same uuid component, regardless of community.
	uuidOf := func(key string) string {
		rest := key[strings.Index(key, "/")+1:]
		return rest[:strings.LastIndex(rest, "-")]
	}
	if uuidOf(a) != uuidOf(b) {
		t.Fatalf("uuid component differs for same filename: %q vs %q", a, b)
	}
	if c := deriveKey("other.gif", "guild1", 1); uuidOf(c) == uuidOf(a) {
		t.Fatalf("different filenames hashed identically: %q vs %q", a, c)
	}
}

// ----- Upload branching -----

func TestUpload_FirstUploadCreatesRecord(t *testing.T) {
	r := &fakeCatalogRepo{countTotal: 0}
	b := &fakeBlobStore{}
	s := newFixedService(r, b)

	if err := s.Upload(context.Background(), "guild1", "party", "party.gif", []byte("bytes")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if b.putContentType != "image/gif" {
		t.Fatalf("content type = %q, want image/gif", b.putContentType)
	}
	if r.createCommunity != "guild1" {
		t.Fatalf("create community = %q", r.createCommunity)
	}
	if len(r.createGifs) != 1 {
		t.Fatalf("first upload must create a single-entry map, got %v", r.createGifs)
	}
	if got := r.createGifs["party"]; got != "https://cdn.example/"+b.putKey {
		t.Fatalf("created address = %q, key = %q", got, b.putKey)
	}
	if r.updateCommunity != "" {
		t.Fatalf("update must not run on first upload")
	}
}

func TestUpload_ExistingRecordUpdatesField(t *testing.T) {
	r := &fakeCatalogRepo{countTotal: 1}
	b := &fakeBlobStore{}
	s := newFixedService(r, b)

	if err := s.Upload(context.Background(), "guild1", "wave", "wave.gif", []byte("bytes")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if r.createCommunity != "" {
		t.Fatalf("create must not run when a record exists")
	}
	if r.updateCommunity != "guild1" || r.updateName != "wave" {
		t.Fatalf("update args = (%q, %q)", r.updateCommunity, r.updateName)
	}
	if r.updateAddress != "https://cdn.example/"+b.putKey {
		t.Fatalf("update address = %q", r.updateAddress)
	}
}

func TestUpload_BlobFailureSkipsCatalog(t *testing.T) {
	r := &fakeCatalogRepo{}
	b := &fakeBlobStore{putErr: errors.New("disk full")}
	s := newFixedService(r, b)

	err := s.Upload(context.Background(), "guild1", "party", "party.gif", nil)
	if !errors.Is(err, ErrContentStore) {
		t.Fatalf("expected ErrContentStore, got %v", err)
	}
	if r.countCommunity != "" || r.createCommunity != "" || r.updateCommunity != "" {
		t.Fatalf("catalog was touched after a failed blob write")
	}
}

func TestUpload_ProbeFailure(t *testing.T) {
	r := &fakeCatalogRepo{countErr: errors.New("db down")}
	s := newFixedService(r, &fakeBlobStore{})

	err := s.Upload(context.Background(), "guild1", "party", "party.gif", nil)
	if !errors.Is(err, ErrCatalogStore) {
		t.Fatalf("expected ErrCatalogStore, got %v", err)
	}
}

func TestUpload_MutationFailure(t *testing.T) {
	r := &fakeCatalogRepo{countTotal: 1, updateErr: errors.New("db down")}
	s := newFixedService(r, &fakeBlobStore{})

	err := s.Upload(context.Background(), "guild1", "party", "party.gif", nil)
	if !errors.Is(err, ErrCatalogStore) {
		t.Fatalf("expected ErrCatalogStore, got %v", err)
	}
}

// ----- Lookups -----

func TestNames_EmptyStateIsNotAnError(t *testing.T) {
	r := &fakeCatalogRepo{getErr: repo.ErrNotFound}
	s := newFixedService(r, &fakeBlobStore{})

	names, err := s.Names(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no names, got %v", names)
	}
}

func TestNames_TransportFailure(t *testing.T) {
	r := &fakeCatalogRepo{getErr: errors.New("db down")}
	s := newFixedService(r, &fakeBlobStore{})

	if _, err := s.Names(context.Background(), "guild1"); !errors.Is(err, ErrCatalogStore) {
		t.Fatalf("expected ErrCatalogStore, got %v", err)
	}
}

func TestAddress_NotFoundCases(t *testing.T) {
	// Absent community and absent name both resolve to ErrNameNotFound.
	cases := map[string]*fakeCatalogRepo{
		"no record":    {getErr: repo.ErrNotFound},
		"name missing": {getGifs: domain.GifMap{"other": "addr"}},
	}
	for label, r := range cases {
		s := newFixedService(r, &fakeBlobStore{})
		_, err := s.Address(context.Background(), "guild1", "missing")
		if !errors.Is(err, ErrNameNotFound) {
			t.Fatalf("%s: expected ErrNameNotFound, got %v", label, err)
		}
	}
}

func TestAddress_TransportFailureIsDistinct(t *testing.T) {
	r := &fakeCatalogRepo{getErr: errors.New("db down")}
	s := newFixedService(r, &fakeBlobStore{})

	_, err := s.Address(context.Background(), "guild1", "wave")
	if !errors.Is(err, ErrCatalogStore) {
		t.Fatalf("expected ErrCatalogStore, got %v", err)
	}
	if errors.Is(err, ErrNameNotFound) {
		t.Fatalf("transport failure must not look like a missing name")
	}
}

func TestAddress_Hit(t *testing.T) {
	r := &fakeCatalogRepo{getGifs: domain.GifMap{"wave": "https://cdn.example/guild1/x.gif"}}
	s := newFixedService(r, &fakeBlobStore{})

	got, err := s.Address(context.Background(), "guild1", "wave")
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if got != "https://cdn.example/guild1/x.gif" {
		t.Fatalf("Address = %q", got)
	}
}

// ----- End to end against real stores -----

// gormCatalogRepo adapts the repo free functions to the CatalogRepo
// interface, as the process wiring does.
type gormCatalogRepo struct{}

func (gormCatalogRepo) CountCatalogs(ctx context.Context, db *gorm.DB, community string) (int64, error) {
	return repo.CountCatalogs(ctx, db, community)
}

func (gormCatalogRepo) CreateCatalog(ctx context.Context, db *gorm.DB, community string, gifs domain.GifMap) error {
	return repo.CreateCatalog(ctx, db, community, gifs)
}

func (gormCatalogRepo) UpdateCatalogGif(ctx context.Context, db *gorm.DB, community, name, address string) error {
	return repo.UpdateCatalogGif(ctx, db, community, name, address)
}

func (gormCatalogRepo) GetCatalogGifs(ctx context.Context, db *gorm.DB, community string) (domain.GifMap, error) {
	return repo.GetCatalogGifs(ctx, db, community)
}

func newRealService(t *testing.T) *GifService {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	blobs, err := blob.NewDiskStore(t.TempDir(), "https://cdn.example/clips/")
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	s := NewGifService(db, gormCatalogRepo{}, blobs)
	base := time.Unix(1700000000, 0)
	// Each call sees a later clock so repeated uploads derive fresh keys.
	s.now = func() time.Time { base = base.Add(time.Second); return base }
	return s
}

func TestGifService_EndToEnd(t *testing.T) {
	s := newRealService(t)
	ctx := context.Background()

	if err := s.Upload(ctx, "guild1", "party", "party.gif", []byte("GIF89a")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	names, err := s.Names(ctx, "guild1")
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 1 || names[0] != "party" {
		t.Fatalf("Names = %v, want [party]", names)
	}

	addr, err := s.Address(ctx, "guild1", "party")
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if !strings.HasPrefix(addr, "https://cdn.example/clips/guild1/") {
		t.Fatalf("address missing base url: %q", addr)
	}
	if !strings.HasSuffix(addr, ".gif") {
		t.Fatalf("address missing clip extension: %q", addr)
	}
}

func TestGifService_OverwriteSemantics(t *testing.T) {
	s := newRealService(t)
	ctx := context.Background()

	if err := s.Upload(ctx, "guild1", "wave", "first.gif", []byte("one")); err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	first, err := s.Address(ctx, "guild1", "wave")
	if err != nil {
		t.Fatalf("Address: %v", err)
	}

	if err := s.Upload(ctx, "guild1", "wave", "second.gif", []byte("two")); err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	second, err := s.Address(ctx, "guild1", "wave")
	if err != nil {
		t.Fatalf("Address: %v", err)
	}

	if first == second {
		t.Fatalf("re-registering did not replace the address: %q", first)
	}
	names, err := s.Names(ctx, "guild1")
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 1 || names[0] != "wave" {
		t.Fatalf("overwrite must keep a single entry, got %v", names)
	}
}

func TestGifService_SecondNameGrowsMap(t *testing.T) {
	s := newRealService(t)
	ctx := context.Background()

	if err := s.Upload(ctx, "guild1", "party", "party.gif", []byte("one")); err != nil {
		t.Fatalf("Upload party: %v", err)
	}
	partyAddr, _ := s.Address(ctx, "guild1", "party")

	if err := s.Upload(ctx, "guild1", "wave", "wave.gif", []byte("two")); err != nil {
		t.Fatalf("Upload wave: %v", err)
	}

	names, err := s.Names(ctx, "guild1")
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "party" || names[1] != "wave" {
		t.Fatalf("Names = %v, want [party wave]", names)
	}

	// The first entry is untouched by the second upload.
	if got, _ := s.Address(ctx, "guild1", "party"); got != partyAddr {
		t.Fatalf("party address changed: %q vs %q", got, partyAddr)
	}
}

func TestGifService_SameSecondSameFilenameAliases(t *testing.T) {
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	blobs, err := blob.NewDiskStore(t.TempDir(), "https://cdn.example/clips/")
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	s := NewGifService(db, gormCatalogRepo{}, blobs)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	ctx := context.Background()
	if err := s.Upload(ctx, "guild1", "first", "clip.gif", []byte("one")); err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	if err := s.Upload(ctx, "guild1", "second", "clip.gif", []byte("two")); err != nil {
		t.Fatalf("second Upload: %v", err)
	}

	a1, err := s.Address(ctx, "guild1", "first")
	if err != nil {
		t.Fatalf("Address first: %v", err)
	}
	a2, err := s.Address(ctx, "guild1", "second")
	if err != nil {
		t.Fatalf("Address second: %v", err)
	}
	// Identical filename in the same second derives the same key; the
	// write-once store then keeps the first payload for both names.
	if a1 != a2 {
		t.Fatalf("expected aliased addresses, got %q vs %q", a1, a2)
	}
	key := strings.TrimPrefix(a1, "https://cdn.example/clips/")
	f, err := blobs.Open(key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "one" {
		t.Fatalf("stored bytes = %q, want first payload", got)
	}
}

func TestGifService_CommunityIsolation(t *testing.T) {
	s := newRealService(t)
	ctx := context.Background()

	if err := s.Upload(ctx, "A", "wave", "wave.gif", []byte("bytes")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if _, err := s.Address(ctx, "B", "wave"); !errors.Is(err, ErrNameNotFound) {
		t.Fatalf("name leaked across communities: %v", err)
	}
}
