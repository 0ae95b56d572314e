package prefs

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"srmchat/internal/config"
	"srmchat/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestLanguageDefaultsWhenUnset(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	store := NewStore(db, LanguageArabic)
	lang, err := store.Language(context.Background())
	if err != nil {
		t.Fatalf("language: %v", err)
	}
	if lang != LanguageArabic {
		t.Fatalf("default language = %q", lang)
	}
}

func TestSetLanguagePersists(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	ctx := context.Background()

	store := NewStore(db, LanguageArabic)
	if err := store.SetLanguage(ctx, LanguageFrench); err != nil {
		t.Fatalf("set language: %v", err)
	}
	lang, err := store.Language(ctx)
	if err != nil {
		t.Fatalf("language: %v", err)
	}
	if lang != LanguageFrench {
		t.Fatalf("language = %q, want fr", lang)
	}

	// A second write updates in place instead of inserting another row.
	if err := store.SetLanguage(ctx, LanguageArabic); err != nil {
		t.Fatalf("set language again: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM preferences`).Scan(&count); err != nil {
		t.Fatalf("count preferences: %v", err)
	}
	if count != 1 {
		t.Fatalf("preferences rows = %d, want 1", count)
	}
}

func TestSetLanguageRejectsUnsupported(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	store := NewStore(db, LanguageArabic)
	err := store.SetLanguage(context.Background(), "en")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestNewStoreFallsBackToArabicDefault(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	store := NewStore(db, "en")
	lang, err := store.Language(context.Background())
	if err != nil {
		t.Fatalf("language: %v", err)
	}
	if lang != LanguageArabic {
		t.Fatalf("language = %q, want ar", lang)
	}
}

func TestDirection(t *testing.T) {
	if Direction(LanguageArabic) != "rtl" {
		t.Fatal("arabic should be rtl")
	}
	if Direction(LanguageFrench) != "ltr" {
		t.Fatal("french should be ltr")
	}
}
