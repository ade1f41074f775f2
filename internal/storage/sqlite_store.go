package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/aeroradar/internal/mission"
)

// maxFlightLogBatch keeps a flight log insert well below the Sqlite bound
// parameter limit.
const maxFlightLogBatch = 500

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	now    func() time.Time

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened and the schema initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath, now: time.Now}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		// Sqlite allows a single writer.
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// the schema must exist before a read-only connection can use it
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) Set(ctx context.Context, path string, value any) (err error) {
	path = JoinPath(path)
	if path == "" {
		return errors.New("empty path")
	}

	p, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling value for %s: %w", path, err)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deleteDescendantsSQL, path+"/"); err != nil {
		return fmt.Errorf("replacing children of %s: %w", path, err)
	}
	if _, err = tx.ExecContext(ctx, upsertNodeSQL, path, string(p), s.now().UTC()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Get(ctx context.Context, path string, dst any) (err error) {
	path = JoinPath(path)

	db, err := s.getReadDB()
	if err != nil {
		return fmt.Errorf("getting read connection: %w", err)
	}

	var value string
	if err = db.QueryRowContext(ctx, selectNodeSQL, path).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err = json.Unmarshal([]byte(value), dst); err != nil {
		return fmt.Errorf("unmarshaling %s: %w", path, err)
	}
	return nil
}

func (s *SqliteStore) List(ctx context.Context, prefix string) (nodes map[string]json.RawMessage, err error) {
	prefix = JoinPath(prefix)
	if prefix != "" {
		prefix += "/"
	}

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectNodesSQL, prefix)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer closeWithError(rows, &err)

	nodes = make(map[string]json.RawMessage)
	for rows.Next() {
		var path, value string
		if err = rows.Scan(&path, &value); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		nodes[strings.TrimPrefix(path, prefix)] = json.RawMessage(value)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}

	return nodes, nil
}

func (s *SqliteStore) StoreMission(ctx context.Context, m *mission.Mission) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	data := toMissionData(m)
	if _, err = tx.ExecContext(ctx, insertMissionSQL, data.ID, data.VehicleID, data.StartedAt, data.EndedAt); err != nil {
		return fmt.Errorf("inserting mission: %w", err)
	}

	for batch := range slices.Chunk(m.FlightLog, maxFlightLogBatch) {
		values := make([]any, 0, len(batch)*7)

		// Build batch insert query
		valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?)"

		var sb strings.Builder

		sb.WriteString(insertFlightLogSQL)

		for i, entry := range batch {
			e := toFlightLogData(m.ID, entry)
			values = append(values,
				e.MissionID,
				e.Timestamp,
				e.Latitude,
				e.Longitude,
				e.Altitude,
				e.GroundSpeed,
				e.Heading,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting flight log: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Missions(ctx context.Context, opts ...MissionOption) (missions []*mission.Mission, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	q := missionQuery{}
	for _, opt := range opts {
		opt(&q)
	}
	query, args := q.build()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying missions: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d missionData
		if err = rows.Scan(&d.ID, &d.VehicleID, &d.StartedAt, &d.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning mission: %w", err)
		}
		missions = append(missions, fromMissionData(&d))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating missions: %w", err)
	}

	for _, m := range missions {
		if m.FlightLog, err = s.flightLog(ctx, db, m); err != nil {
			return nil, err
		}
	}

	return missions, nil
}

func (s *SqliteStore) flightLog(ctx context.Context, db *sql.DB, m *mission.Mission) (log []mission.FlightLogEntry, err error) {
	rows, err := db.QueryContext(ctx, selectFlightLogSQL, m.ID)
	if err != nil {
		return nil, fmt.Errorf("querying flight log of %s: %w", m.ID, err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d flightLogData
		if err = rows.Scan(&d.Timestamp, &d.Latitude, &d.Longitude, &d.Altitude, &d.GroundSpeed, &d.Heading); err != nil {
			return nil, fmt.Errorf("scanning flight log entry: %w", err)
		}
		log = append(log, fromFlightLogData(m.VehicleID, &d))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flight log: %w", err)
	}

	return log, nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
