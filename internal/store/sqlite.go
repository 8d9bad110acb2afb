package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added kind index on chronologies for full scans
const currentSchemaVersion = 1

// SQLiteStore is a durable Store in a single SQLite file.
// Uses WAL mode so readers proceed during writes.
type SQLiteStore struct {
	db  *sql.DB
	gen atomic.Uint64
}

var _ Store = (*SQLiteStore)(nil)

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply pragmas")
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "failed to execute %q", pragma)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return errors.Wrap(err, "failed to execute schema")
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "get user_version")
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return errors.Wrap(err, "set user_version")
	}
	return nil
}

// migrateToV1 adds the kind index used by full scans.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chronologies_kind
		ON chronologies(kind, nid)
	`)
	if err != nil {
		return errors.Wrap(err, "migrate to v1")
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteStore) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return errors.Wrapf(err, "failed to query %s", name)
	}
	if value != expected {
		return errors.Newf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

func (s *SQLiteStore) NidForUUID(id uuid.UUID) (int32, error) {
	return s.NidForPublicID(id)
}

func (s *SQLiteStore) LookupNid(id uuid.UUID) (int32, bool, error) {
	nid, ok, err := lookupNid(s.db, id)
	if err != nil {
		return entity.NidUnset, false, errors.Wrapf(err, "lookup nid for %s", id)
	}
	return nid, ok, nil
}

func (s *SQLiteStore) NidForPublicID(ids ...uuid.UUID) (int32, error) {
	if len(ids) == 0 {
		return entity.NidInvalid, errors.Validationf("nid for public id: no uuids")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return entity.NidInvalid, errors.Wrap(err, "nid for public id")
	}
	defer tx.Rollback()

	for _, id := range ids {
		nid, ok, err := lookupNid(tx, id)
		if err != nil {
			return entity.NidInvalid, err
		}
		if ok {
			return nid, nil
		}
	}

	var next int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(nid), 0) + 1 FROM uuids`).Scan(&next); err != nil {
		return entity.NidInvalid, errors.Wrap(err, "allocate nid")
	}
	if next >= math.MaxInt32 {
		return entity.NidInvalid, errors.New("nid space exhausted")
	}
	nid := int32(next)
	if err := bindUUIDs(tx, nid, ids); err != nil {
		return entity.NidInvalid, err
	}
	if err := tx.Commit(); err != nil {
		return entity.NidInvalid, errors.Wrap(err, "commit nid assignment")
	}
	s.gen.Add(1)
	return nid, nil
}

func lookupNid(q queryRower, id uuid.UUID) (int32, bool, error) {
	var nid int32
	err := q.QueryRow(`SELECT nid FROM uuids WHERE uuid = ?`, id.String()).Scan(&nid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "query uuid")
	}
	return nid, true, nil
}

func bindUUIDs(tx *sql.Tx, nid int32, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, err := tx.Exec(`INSERT INTO uuids (uuid, nid) VALUES (?, ?) ON CONFLICT(uuid) DO NOTHING`, id.String(), nid); err != nil {
			return errors.Wrapf(err, "bind uuid %s", id)
		}
	}
	return nil
}

func (s *SQLiteStore) PublicID(nid int32) ([]uuid.UUID, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT uuid FROM uuids WHERE nid = ? ORDER BY rowid`, nid)
	if err != nil {
		return nil, errors.Wrap(err, "query public id")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, errors.Wrap(err, "scan uuid")
		}
		id, err := uuid.Parse(text)
		if err != nil {
			return nil, errors.Wrapf(err, "parse uuid %q", text)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate uuids")
	}
	if len(ids) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "public id for nid %d", nid)
	}
	return ids, nil
}

func (s *SQLiteStore) Chronology(nid int32) (entity.Chronology, bool, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return entity.Chronology{}, false, err
	}
	return readChronology(s.db, nid)
}

func readChronology(q queryRower, nid int32) (entity.Chronology, bool, error) {
	var data string
	err := q.QueryRow(`SELECT data FROM chronologies WHERE nid = ?`, nid).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Chronology{}, false, nil
	}
	if err != nil {
		return entity.Chronology{}, false, errors.Wrapf(err, "query chronology %d", nid)
	}
	c, err := unmarshalChronology([]byte(data))
	if err != nil {
		return entity.Chronology{}, false, err
	}
	return c, true, nil
}

func (s *SQLiteStore) PutEntity(c entity.Chronology) error {
	if err := validateForPut(c); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "put entity")
	}
	defer tx.Rollback()

	merged := c
	existing, ok, err := readChronology(tx, c.Nid)
	if err != nil {
		return err
	}
	if ok {
		var changed bool
		merged, changed, err = mergeChronology(existing, c, func(nid int32) (entity.Stamp, bool, error) {
			return readStamp(tx, nid)
		})
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}

	data, err := marshalChronology(merged)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO chronologies (nid, kind, pattern_nid, referenced_nid, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(nid) DO UPDATE SET data = excluded.data
	`, merged.Nid, int(merged.Kind), merged.PatternNid, merged.ReferencedComponentNid, string(data))
	if err != nil {
		return errors.Wrapf(err, "write chronology %d", merged.Nid)
	}
	if err := bindUUIDs(tx, merged.Nid, merged.UUIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit put entity")
	}
	s.gen.Add(1)
	return nil
}

func (s *SQLiteStore) Stamp(nid int32) (entity.Stamp, bool, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return entity.Stamp{}, false, err
	}
	return readStamp(s.db, nid)
}

func readStamp(q queryRower, nid int32) (entity.Stamp, bool, error) {
	var data string
	err := q.QueryRow(`SELECT data FROM stamps WHERE nid = ?`, nid).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Stamp{}, false, nil
	}
	if err != nil {
		return entity.Stamp{}, false, errors.Wrapf(err, "query stamp %d", nid)
	}
	st, err := unmarshalStamp([]byte(data))
	if err != nil {
		return entity.Stamp{}, false, err
	}
	return st, true, nil
}

func (s *SQLiteStore) PutStamp(st entity.Stamp) error {
	if err := validateStampForPut(st); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "put stamp")
	}
	defer tx.Rollback()

	merged := st
	existing, ok, err := readStamp(tx, st.Nid)
	if err != nil {
		return err
	}
	if ok {
		var changed bool
		merged, changed = mergeStamp(existing, st)
		if !changed {
			return nil
		}
	}

	data, err := marshalStamp(merged)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO stamps (nid, uuid, data) VALUES (?, ?, ?)
		ON CONFLICT(nid) DO UPDATE SET data = excluded.data
	`, merged.Nid, merged.UUID.String(), string(data))
	if err != nil {
		return errors.Wrapf(err, "write stamp %d", merged.Nid)
	}
	if err := bindUUIDs(tx, merged.Nid, []uuid.UUID{merged.UUID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit put stamp")
	}
	s.gen.Add(1)
	return nil
}

func (s *SQLiteStore) SemanticNidsForComponent(nid int32) ([]int32, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return nil, err
	}
	return s.queryNids(`
		SELECT nid FROM chronologies
		WHERE referenced_nid = ? AND kind = ?
		ORDER BY nid
	`, nid, int(entity.KindSemantic))
}

func (s *SQLiteStore) SemanticNidsForComponentOfPattern(nid, patternNid int32) ([]int32, error) {
	if err := entity.ValidateNids(nid, patternNid); err != nil {
		return nil, err
	}
	return s.queryNids(`
		SELECT nid FROM chronologies
		WHERE referenced_nid = ? AND pattern_nid = ? AND kind = ?
		ORDER BY nid
	`, nid, patternNid, int(entity.KindSemantic))
}

func (s *SQLiteStore) queryNids(query string, args ...any) ([]int32, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query nids")
	}
	defer rows.Close()

	var nids []int32
	for rows.Next() {
		var nid int32
		if err := rows.Scan(&nid); err != nil {
			return nil, errors.Wrap(err, "scan nid")
		}
		nids = append(nids, nid)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate nids")
	}
	return nids, nil
}

func (s *SQLiteStore) ForEachParallel(ctx context.Context, fn func(ctx context.Context, c entity.Chronology) error) error {
	// Collect first: the single connection must be free for the loaders.
	nids, err := s.queryNids(`SELECT nid FROM chronologies ORDER BY nid`)
	if err != nil {
		return err
	}
	return forEachParallel(ctx, nids, s.Chronology, fn)
}

func (s *SQLiteStore) Generation() uint64 {
	return s.gen.Load()
}
