package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Supported interface languages. Arabic is the default and reads
// right-to-left.
const (
	LanguageArabic = "ar"
	LanguageFrench = "fr"
)

const languageKey = "language"

var ErrUnsupportedLanguage = errors.New("unsupported language")

// Store persists user preferences in the database so they survive restarts.
type Store struct {
	db  *sql.DB
	def string
}

func NewStore(db *sql.DB, defaultLanguage string) *Store {
	if defaultLanguage != LanguageArabic && defaultLanguage != LanguageFrench {
		defaultLanguage = LanguageArabic
	}
	return &Store{db: db, def: defaultLanguage}
}

// Language returns the persisted language preference, falling back to the
// default when nothing is stored.
func (s *Store) Language(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE name = ?`, languageKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return s.def, nil
	}
	if err != nil {
		return "", fmt.Errorf("read language preference: %w", err)
	}
	if value != LanguageArabic && value != LanguageFrench {
		return s.def, nil
	}
	return value, nil
}

// SetLanguage stores the preference. Update-then-insert keeps the statement
// portable across both supported drivers.
func (s *Store) SetLanguage(ctx context.Context, lang string) error {
	if lang != LanguageArabic && lang != LanguageFrench {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE preferences SET value = ?, updated_at = ? WHERE name = ?`,
		lang, now, languageKey)
	if err != nil {
		return fmt.Errorf("update language preference: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (name, value, updated_at) VALUES (?, ?, ?)`,
		languageKey, lang, now); err != nil {
		return fmt.Errorf("insert language preference: %w", err)
	}
	return nil
}

// Direction maps a language to its document reading direction.
func Direction(lang string) string {
	if lang == LanguageArabic {
		return "rtl"
	}
	return "ltr"
}
