package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed Directory for single-box deployments and tests.
// Production setups point the coordinator at the directory service over
// HTTP instead; the two implementations share the Directory contract.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// OpenStore opens or creates the directory database in the given directory.
func OpenStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "directory.db")

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable foreign keys and WAL mode for better concurrency
	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS appointments (
			id               TEXT PRIMARY KEY,
			scheduled_at     DATETIME NOT NULL,
			duration_minutes INTEGER NOT NULL DEFAULT 15,
			room_id          TEXT,
			doctor           TEXT NOT NULL,
			patient          TEXT NOT NULL,
			type             TEXT DEFAULT 'VIDEO',
			created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create appointments table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_messages (
			id             TEXT PRIMARY KEY,
			appointment_id TEXT NOT NULL,
			sender_id      TEXT NOT NULL,
			sender_role    TEXT NOT NULL,
			text           TEXT NOT NULL,
			sent_at        DATETIME NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create chat messages table: %w", err)
	}

	// Migration: add type column if missing (existing databases)
	db.Exec(`ALTER TABLE appointments ADD COLUMN type TEXT DEFAULT 'VIDEO'`)

	db.Exec(`CREATE INDEX IF NOT EXISTS idx_chat_appt ON chat_messages (appointment_id, sent_at)`)

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Appointment fetches one appointment by id.
func (s *Store) Appointment(ctx context.Context, id string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		appt          Appointment
		roomID        sql.NullString
		doctorJSON    string
		patientJSON   string
		scheduledText string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scheduled_at, duration_minutes, room_id, doctor, patient, COALESCE(type, 'VIDEO')
		FROM appointments WHERE id = ?
	`, id).Scan(&appt.ID, &scheduledText, &appt.DurationMinutes, &roomID, &doctorJSON, &patientJSON, &appt.Type)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query appointment: %w", err)
	}

	appt.ScheduledAt, err = parseStoredTime(scheduledText)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if roomID.Valid {
		appt.RoomID = roomID.String
	}
	if err := json.Unmarshal([]byte(doctorJSON), &appt.Doctor); err != nil {
		return nil, fmt.Errorf("decode doctor identity: %w", err)
	}
	if err := json.Unmarshal([]byte(patientJSON), &appt.Patient); err != nil {
		return nil, fmt.Errorf("decode patient identity: %w", err)
	}
	return &appt, nil
}

// ClaimRoom sets the room id if none is set yet and returns the value that
// ended up stored. The conditional UPDATE makes concurrent claims converge
// on a single winner.
func (s *Store) ClaimRoom(ctx context.Context, id, roomID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE appointments SET room_id = ?
		WHERE id = ? AND (room_id IS NULL OR room_id = '')
	`, roomID, id)
	if err != nil {
		return "", fmt.Errorf("claim room: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return roomID, nil
	}

	// Either the row doesn't exist or someone claimed first.
	var stored sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT room_id FROM appointments WHERE id = ?`, id).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read room id: %w", err)
	}
	if !stored.Valid || stored.String == "" {
		return "", fmt.Errorf("room claim for %s raced but no room id is stored", id)
	}
	return stored.String, nil
}

// History returns the appointment's chat messages in send order.
func (s *Store) History(ctx context.Context, id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, appointment_id, sender_id, sender_role, text, sent_at
		FROM chat_messages WHERE appointment_id = ? ORDER BY sent_at, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var sentText string
		if err := rows.Scan(&m.ID, &m.AppointmentID, &m.SenderID, &m.SenderRole, &m.Text, &sentText); err != nil {
			return nil, err
		}
		if m.SentAt, err = parseStoredTime(sentText); err != nil {
			return nil, fmt.Errorf("message %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PutAppointment inserts or replaces an appointment row. Used by seeding
// and tests; the HTTP directory owns appointment lifecycle in production.
func (s *Store) PutAppointment(ctx context.Context, appt *Appointment) error {
	doctorJSON, err := json.Marshal(appt.Doctor)
	if err != nil {
		return fmt.Errorf("encode doctor identity: %w", err)
	}
	patientJSON, err := json.Marshal(appt.Patient)
	if err != nil {
		return fmt.Errorf("encode patient identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var roomID any
	if appt.RoomID != "" {
		roomID = appt.RoomID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO appointments
			(id, scheduled_at, duration_minutes, room_id, doctor, patient, type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, appt.ID, appt.ScheduledAt.UTC().Format(storedTimeLayout), appt.DurationMinutes,
		roomID, string(doctorJSON), string(patientJSON), appt.Type)
	if err != nil {
		return fmt.Errorf("put appointment: %w", err)
	}
	return nil
}

// AppendMessage records one chat message into the appointment history.
// Duplicate ids are ignored so replays after a reconnect are harmless.
func (s *Store) AppendMessage(ctx context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO chat_messages
			(id, appointment_id, sender_id, sender_role, text, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.AppointmentID, m.SenderID, m.SenderRole, m.Text,
		m.SentAt.UTC().Format(storedTimeLayout))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

const storedTimeLayout = "2006-01-02 15:04:05"

// parseStoredTime accepts both the SQLite-style layout used on insert and
// RFC 3339 from rows written by other tooling.
func parseStoredTime(v string) (time.Time, error) {
	if t, err := time.Parse(storedTimeLayout, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", v, err)
	}
	return t.UTC(), nil
}
