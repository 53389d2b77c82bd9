// Package store persists alignment indexes to SQLite so built indexes can
// be reloaded without re-parsing source books.
//
// Build modes:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): mattn/go-sqlite3
//
// Each book carries a content fingerprint; SaveBook skips unchanged books
// when the fingerprint matches what is already stored.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/JuniperInterlinear/core/alignment"
	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/token"
	"github.com/FocuswithJustin/JuniperInterlinear/core/tokenizer"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS verses (
	key        TEXT PRIMARY KEY,
	book       TEXT NOT NULL,
	chapter    INTEGER NOT NULL,
	verse      INTEGER NOT NULL,
	verse_end  INTEGER NOT NULL DEFAULT 0,
	plain_text TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verses_book ON verses(book);

CREATE TABLE IF NOT EXISTS tokens (
	verse_key          TEXT NOT NULL,
	idx                INTEGER NOT NULL,
	id                 TEXT NOT NULL,
	content            TEXT NOT NULL,
	kind               TEXT NOT NULL,
	occurrence         INTEGER NOT NULL,
	total_occurrences  INTEGER NOT NULL,
	start_byte         INTEGER NOT NULL,
	end_byte           INTEGER NOT NULL,
	strong             TEXT,
	lemma              TEXT,
	morph              TEXT,
	source_occurrence  INTEGER,
	source_occurrences INTEGER,
	source_content     TEXT,
	group_id           TEXT,
	PRIMARY KEY (verse_key, idx)
);
CREATE INDEX IF NOT EXISTS idx_tokens_strong ON tokens(strong) WHERE strong IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_tokens_lemma ON tokens(lemma) WHERE lemma IS NOT NULL;

CREATE TABLE IF NOT EXISTS groups (
	verse_key   TEXT NOT NULL,
	id          TEXT NOT NULL,
	strong      TEXT NOT NULL,
	lemma       TEXT NOT NULL,
	source_word TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	PRIMARY KEY (verse_key, id)
);
`

// Store persists verse records and their alignments in a SQLite database.
type Store struct {
	db *sql.DB
}

// DriverType reports the underlying SQLite implementation, "purego" or "cgo".
func DriverType() string {
	return driverType
}

// DriverPackage reports the Go package providing the SQLite driver.
func DriverPackage() string {
	return driverPackage
}

// Open opens (creating if needed) the index database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, errors.NewIO("configure", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewIO("migrate", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Fingerprint hashes raw book content for change detection.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BookFingerprint returns the stored fingerprint for a book, or "" when the
// book has never been saved.
func (s *Store) BookFingerprint(ctx context.Context, bookID string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint FROM books WHERE id = ?", bookID).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "query book fingerprint")
	}
	return fp, nil
}

// SaveBook persists every indexed verse of one book in a single transaction,
// replacing any previous rows for it. When fingerprint is non-empty and
// matches the stored one, the save is skipped and (false, nil) is returned.
func (s *Store) SaveBook(ctx context.Context, idx *alignment.Index, bookID, title, fingerprint string) (bool, error) {
	if fingerprint != "" {
		stored, err := s.BookFingerprint(ctx, bookID)
		if err != nil {
			return false, err
		}
		if stored == fingerprint {
			logging.Debug("book unchanged, save skipped", "book", bookID)
			return false, nil
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin save")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM tokens WHERE verse_key IN (SELECT key FROM verses WHERE book = ?)", bookID); err != nil {
		return false, errors.Wrap(err, "clear tokens")
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM groups WHERE verse_key IN (SELECT key FROM verses WHERE book = ?)", bookID); err != nil {
		return false, errors.Wrap(err, "clear groups")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM verses WHERE book = ?", bookID); err != nil {
		return false, errors.Wrap(err, "clear verses")
	}

	for _, rec := range idx.Records() {
		if rec.Ref.Book != bookID {
			continue
		}
		if err := saveVerse(ctx, tx, rec); err != nil {
			return false, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO books (id, title, fingerprint, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title,
		 fingerprint = excluded.fingerprint, updated_at = excluded.updated_at`,
		bookID, title, fingerprint, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return false, errors.Wrap(err, "save book row")
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "commit save")
	}
	return true, nil
}

func saveVerse(ctx context.Context, tx *sql.Tx, rec *alignment.VerseRecord) error {
	key := rec.Ref.Key()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO verses (key, book, chapter, verse, verse_end, plain_text) VALUES (?, ?, ?, ?, ?, ?)",
		key, rec.Ref.Book, rec.Ref.Chapter, rec.Ref.Verse, rec.Ref.VerseEnd, rec.PlainText); err != nil {
		return errors.Wrapf(err, "save verse %s", key)
	}

	for _, tok := range rec.Tokens {
		var strong, lemma, morph, srcContent, groupID sql.NullString
		var srcOcc, srcOccs sql.NullInt64
		if a := tok.Alignment; a != nil {
			strong = sql.NullString{String: a.Strong, Valid: true}
			lemma = sql.NullString{String: a.Lemma, Valid: true}
			morph = sql.NullString{String: a.Morph, Valid: true}
			srcContent = sql.NullString{String: a.SourceContent, Valid: true}
			groupID = sql.NullString{String: a.GroupID, Valid: true}
			srcOcc = sql.NullInt64{Int64: int64(a.SourceOccurrence), Valid: true}
			srcOccs = sql.NullInt64{Int64: int64(a.SourceOccurrences), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tokens (verse_key, idx, id, content, kind, occurrence, total_occurrences,
			 start_byte, end_byte, strong, lemma, morph, source_occurrence, source_occurrences, source_content, group_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			key, tok.Position.Index, tok.ID, tok.Content, string(tok.Kind),
			tok.Occurrence, tok.TotalOccurrences, tok.Position.Start, tok.Position.End,
			strong, lemma, morph, srcOcc, srcOccs, srcContent, groupID); err != nil {
			return errors.Wrapf(err, "save token %s", tok.ID)
		}
	}

	for ordinal, g := range rec.Groups {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO groups (verse_key, id, strong, lemma, source_word, ordinal) VALUES (?, ?, ?, ?, ?, ?)",
			key, g.ID, g.Strong, g.Lemma, g.SourceWord, ordinal+1); err != nil {
			return errors.Wrapf(err, "save group %s", g.ID)
		}
	}
	return nil
}

// LoadIndex rebuilds an in-memory index from every stored verse.
func (s *Store) LoadIndex(ctx context.Context) (*alignment.Index, error) {
	return s.load(ctx, "")
}

// LoadBook rebuilds an in-memory index holding one book's verses.
func (s *Store) LoadBook(ctx context.Context, bookID string) (*alignment.Index, error) {
	if bookID == "" {
		return nil, errors.NewValidation("book", "book id is required")
	}
	return s.load(ctx, bookID)
}

func (s *Store) load(ctx context.Context, bookID string) (*alignment.Index, error) {
	query := "SELECT key, book, chapter, verse, verse_end, plain_text FROM verses"
	args := []any{}
	if bookID != "" {
		query += " WHERE book = ?"
		args = append(args, bookID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query verses")
	}
	defer rows.Close()

	idx := alignment.NewIndex()
	for rows.Next() {
		var key, book, plainText string
		var chapter, verse, verseEnd int
		if err := rows.Scan(&key, &book, &chapter, &verse, &verseEnd, &plainText); err != nil {
			return nil, errors.Wrap(err, "scan verse")
		}
		vref := &ref.Ref{Book: book, Chapter: chapter, Verse: verse, VerseEnd: verseEnd}

		v, err := s.loadVerse(ctx, key, vref, plainText)
		if err != nil {
			return nil, err
		}
		if err := idx.PutVerse(v); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate verses")
	}
	return idx, nil
}

func (s *Store) loadVerse(ctx context.Context, key string, vref *ref.Ref, plainText string) (*tokenizer.Verse, error) {
	groups, err := s.loadGroups(ctx, key, vref)
	if err != nil {
		return nil, err
	}
	byGroupID := make(map[string]*token.Group, len(groups))
	for _, g := range groups {
		byGroupID[g.ID] = g
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, id, content, kind, occurrence, total_occurrences, start_byte, end_byte,
		 strong, lemma, morph, source_occurrence, source_occurrences, source_content, group_id
		 FROM tokens WHERE verse_key = ? ORDER BY idx`, key)
	if err != nil {
		return nil, errors.Wrapf(err, "query tokens for %s", key)
	}
	defer rows.Close()

	var tokens []*token.Token
	for rows.Next() {
		var idx, occurrence, totalOccurrences, start, end int
		var id, content, kind string
		var strong, lemma, morph, srcContent, groupID sql.NullString
		var srcOcc, srcOccs sql.NullInt64
		if err := rows.Scan(&idx, &id, &content, &kind, &occurrence, &totalOccurrences,
			&start, &end, &strong, &lemma, &morph, &srcOcc, &srcOccs, &srcContent, &groupID); err != nil {
			return nil, errors.Wrapf(err, "scan token for %s", key)
		}

		tok := &token.Token{
			ID:               id,
			Content:          content,
			Kind:             token.Kind(kind),
			Occurrence:       occurrence,
			TotalOccurrences: totalOccurrences,
			Ref:              vref,
			Position:         token.Position{Start: start, End: end, Index: idx},
		}
		if strong.Valid {
			tok.Alignment = &token.Attachment{
				Strong:            strong.String,
				Lemma:             lemma.String,
				Morph:             morph.String,
				SourceOccurrence:  int(srcOcc.Int64),
				SourceOccurrences: int(srcOccs.Int64),
				SourceContent:     srcContent.String,
				GroupID:           groupID.String,
			}
			if g, ok := byGroupID[groupID.String]; ok {
				g.Append(tok.ID, tok.Content, tok.Position)
			}
		}
		tokens = append(tokens, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate tokens for %s", key)
	}

	return &tokenizer.Verse{
		Ref:       vref,
		Tokens:    tokens,
		PlainText: plainText,
		Groups:    groups,
	}, nil
}

// loadGroups returns the verse's groups in creation order with empty
// instance lists; instances are re-appended from token rows.
func (s *Store) loadGroups(ctx context.Context, key string, vref *ref.Ref) ([]*token.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, strong, lemma, source_word FROM groups WHERE verse_key = ? ORDER BY ordinal", key)
	if err != nil {
		return nil, errors.Wrapf(err, "query groups for %s", key)
	}
	defer rows.Close()

	var groups []*token.Group
	for rows.Next() {
		g := &token.Group{Ref: vref}
		if err := rows.Scan(&g.ID, &g.Strong, &g.Lemma, &g.SourceWord); err != nil {
			return nil, errors.Wrapf(err, "scan group for %s", key)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Books lists stored book ids with their fingerprints and verse counts.
func (s *Store) Books(ctx context.Context) ([]BookInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.title, b.fingerprint, b.updated_at,
		 (SELECT COUNT(*) FROM verses v WHERE v.book = b.id)
		 FROM books b ORDER BY b.id`)
	if err != nil {
		return nil, errors.Wrap(err, "query books")
	}
	defer rows.Close()

	var books []BookInfo
	for rows.Next() {
		var info BookInfo
		if err := rows.Scan(&info.ID, &info.Title, &info.Fingerprint, &info.UpdatedAt, &info.Verses); err != nil {
			return nil, errors.Wrap(err, "scan book")
		}
		books = append(books, info)
	}
	return books, rows.Err()
}

// BookInfo summarizes one stored book.
type BookInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Fingerprint string `json:"fingerprint"`
	UpdatedAt   string `json:"updated_at"`
	Verses      int    `json:"verses"`
}

// DeleteBook removes a book and all its verses, tokens, and groups.
func (s *Store) DeleteBook(ctx context.Context, bookID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin delete")
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM tokens WHERE verse_key IN (SELECT key FROM verses WHERE book = ?)",
		"DELETE FROM groups WHERE verse_key IN (SELECT key FROM verses WHERE book = ?)",
		"DELETE FROM verses WHERE book = ?",
		"DELETE FROM books WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, bookID); err != nil {
			return errors.Wrapf(err, "delete book %s", bookID)
		}
	}
	return tx.Commit()
}

// Stats reports stored totals for logging and the info command.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)
	for name, query := range map[string]string{
		"books":  "SELECT COUNT(*) FROM books",
		"verses": "SELECT COUNT(*) FROM verses",
		"tokens": "SELECT COUNT(*) FROM tokens",
		"groups": "SELECT COUNT(*) FROM groups",
	} {
		var n int
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "count %s", name)
		}
		stats[name] = n
	}
	return stats, nil
}
