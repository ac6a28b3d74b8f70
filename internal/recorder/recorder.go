// Package recorder persists scan sessions and their profiles to SQLite for
// later inspection. Recording is optional; the scan path never blocks on
// the recorder.
package recorder

import (
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/scanlink-data/scanlink/internal/profile"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Recorder is a handle to one recording database.
type Recorder struct {
	db *sql.DB
}

// Open opens or creates the recording database at path and applies any
// pending schema migrations.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	r := &Recorder{db: db}
	if err := r.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}

func (r *Recorder) migrateUp() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Note: m is not closed because that would close the underlying DB
	// connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// ScanRecord describes one recorded scan session.
type ScanRecord struct {
	ID          string
	Description string
	ScanRateHz  float64
	StartedAt   time.Time
	EndedAt     *time.Time
}

// BeginScan opens a new scan session and returns its ID.
func (r *Recorder) BeginScan(description string, scanRateHz float64) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(
		`INSERT INTO scans (id, description, scan_rate_hz, started_at) VALUES (?, ?, ?, ?)`,
		id, description, scanRateHz, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to begin scan: %w", err)
	}
	return id, nil
}

// EndScan marks a scan session finished.
func (r *Recorder) EndScan(scanID string) error {
	res, err := r.db.Exec(`UPDATE scans SET ended_at = ? WHERE id = ?`, time.Now().UTC(), scanID)
	if err != nil {
		return fmt.Errorf("failed to end scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("recorder: unknown scan %s", scanID)
	}
	return err
}

// RecordProfile stores one profile under a scan session.
func (r *Recorder) RecordProfile(scanID string, p *profile.Profile) error {
	var encoder int64
	if len(p.Encoders) > 0 {
		encoder = p.Encoders[0]
	}
	points := encodePoints(p)
	_, err := r.db.Exec(
		`INSERT INTO profiles
		 (scan_id, head_id, camera_id, laser_id, timestamp_ns, encoder,
		  valid_points, packets_received, packets_expected, points)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scanID, p.ScanHeadID, p.CameraID, p.LaserID, int64(p.TimestampNs), encoder,
		countValid(p), p.PacketsReceived, p.PacketsExpected, points,
	)
	if err != nil {
		return fmt.Errorf("failed to record profile: %w", err)
	}
	return nil
}

// ProfileCount returns how many profiles a scan session holds.
func (r *Recorder) ProfileCount(scanID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM profiles WHERE scan_id = ?`, scanID).Scan(&n)
	return n, err
}

// ListScans returns every recorded scan session, newest first.
func (r *Recorder) ListScans() ([]ScanRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, description, scan_rate_hz, started_at, ended_at
		 FROM scans ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanRecord
	for rows.Next() {
		var rec ScanRecord
		if err := rows.Scan(&rec.ID, &rec.Description, &rec.ScanRateHz, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StoredProfile is one profile row with its points decoded.
type StoredProfile struct {
	ScanHeadID      uint8
	CameraID        uint8
	LaserID         uint8
	TimestampNs     uint64
	Encoder         int64
	PacketsReceived int
	PacketsExpected int
	Points          []StoredPoint
}

// StoredPoint is one decoded point with its camera column.
type StoredPoint struct {
	Column     uint16
	X          int32
	Y          int32
	Brightness int32
}

// Profiles returns up to limit profiles of a scan session in arrival order.
func (r *Recorder) Profiles(scanID string, limit int) ([]StoredProfile, error) {
	rows, err := r.db.Query(
		`SELECT head_id, camera_id, laser_id, timestamp_ns, encoder,
		        packets_received, packets_expected, points
		 FROM profiles WHERE scan_id = ? ORDER BY id LIMIT ?`, scanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredProfile
	for rows.Next() {
		var sp StoredProfile
		var ts int64
		var blob []byte
		if err := rows.Scan(&sp.ScanHeadID, &sp.CameraID, &sp.LaserID, &ts, &sp.Encoder,
			&sp.PacketsReceived, &sp.PacketsExpected, &blob); err != nil {
			return nil, err
		}
		sp.TimestampNs = uint64(ts)
		sp.Points, err = decodePoints(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

const pointRecordSize = 14

// encodePoints packs the valid points as fixed-width records: column,
// X, Y, brightness, big endian.
func encodePoints(p *profile.Profile) []byte {
	buf := make([]byte, 0, countValid(p)*pointRecordSize)
	for col, pt := range p.Points {
		if !pt.Valid() {
			continue
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(col))
		buf = binary.BigEndian.AppendUint32(buf, uint32(pt.X))
		buf = binary.BigEndian.AppendUint32(buf, uint32(pt.Y))
		buf = binary.BigEndian.AppendUint32(buf, uint32(pt.Brightness))
	}
	return buf
}

func decodePoints(blob []byte) ([]StoredPoint, error) {
	if len(blob)%pointRecordSize != 0 {
		return nil, fmt.Errorf("recorder: point blob length %d not a multiple of %d", len(blob), pointRecordSize)
	}
	out := make([]StoredPoint, 0, len(blob)/pointRecordSize)
	for off := 0; off < len(blob); off += pointRecordSize {
		out = append(out, StoredPoint{
			Column:     binary.BigEndian.Uint16(blob[off:]),
			X:          int32(binary.BigEndian.Uint32(blob[off+2:])),
			Y:          int32(binary.BigEndian.Uint32(blob[off+6:])),
			Brightness: int32(binary.BigEndian.Uint32(blob[off+10:])),
		})
	}
	return out, nil
}

func countValid(p *profile.Profile) int {
	n := 0
	for _, pt := range p.Points {
		if pt.Valid() {
			n++
		}
	}
	return n
}
