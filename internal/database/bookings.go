package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/mattn/go-sqlite3"
)

const bookingColumns = `id, service_id, service_name, service_price, consultant_id, consultant_name,
	date, slot_id, slot_time, slot_available, contact_name, contact_email, contact_phone,
	status, payment_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// FormatBookingID turns a row id into the public BK- identifier.
func FormatBookingID(rowID int64) string {
	return fmt.Sprintf("%s%d", models.BookingIDPrefix, rowID+models.BookingIDOffset)
}

// ParseBookingID is the inverse of FormatBookingID.
func ParseBookingID(id string) (int64, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(strings.ToUpper(id)), models.BookingIDPrefix)
	if !ok {
		return 0, ErrInvalidBookingID
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= models.BookingIDOffset {
		return 0, ErrInvalidBookingID
	}
	return n - models.BookingIDOffset, nil
}

func (db *DB) CreateBooking(ctx context.Context, draft models.BookingDraft) (*models.Booking, error) {
	query := `INSERT INTO bookings (
				service_id, service_name, service_price, consultant_id, consultant_name,
				date, slot_id, slot_time, slot_available, contact_name, contact_email,
				contact_phone, status, payment_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	date := models.NormalizeDate(draft.Date)
	result, err := db.ExecContext(ctx, query,
		draft.Service.ID,
		draft.Service.Name,
		draft.Service.Price,
		draft.Consultant.ID,
		draft.Consultant.Name,
		date.Format(models.DateLayout),
		draft.Slot.ID,
		draft.Slot.Time,
		draft.Slot.Available,
		draft.ContactDetails.Name,
		draft.ContactDetails.Email,
		draft.ContactDetails.Phone,
		string(models.BookingConfirmed),
		draft.PaymentID,
		now,
		now,
	)
	if isUniqueViolation(err) {
		return nil, domain.ErrSlotTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return &models.Booking{
		ID:             FormatBookingID(rowID),
		Service:        draft.Service,
		Consultant:     draft.Consultant,
		Date:           date,
		Slot:           draft.Slot,
		ContactDetails: draft.ContactDetails,
		Status:         models.BookingConfirmed,
		PaymentID:      draft.PaymentID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	rowID, err := ParseBookingID(id)
	if err != nil {
		return nil, domain.ErrBookingNotFound
	}
	return getBooking(ctx, db.DB, rowID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getBooking(ctx context.Context, q queryer, rowID int64) (*models.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, rowID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (db *DB) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	return db.updateActive(ctx, id,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.BookingCancelled))
}

func (db *DB) RescheduleBooking(ctx context.Context, id string, date time.Time, slot models.TimeSlot) (*models.Booking, error) {
	return db.updateActive(ctx, id,
		`UPDATE bookings SET date = ?, slot_id = ?, slot_time = ?, slot_available = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		models.NormalizeDate(date).Format(models.DateLayout), slot.ID, slot.Time, slot.Available)
}

// updateActive runs an UPDATE guarded by status = CONFIRMED inside a transaction.
// The statement's leading args are given; updated_at, id and status are appended.
func (db *DB) updateActive(ctx context.Context, id, query string, args ...interface{}) (*models.Booking, error) {
	rowID, err := ParseBookingID(id)
	if err != nil {
		return nil, domain.ErrBookingNotFound
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	args = append(args, time.Now().UTC(), rowID, string(models.BookingConfirmed))
	result, err := tx.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return nil, domain.ErrSlotTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update booking in tx: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}

	b, err := getBooking(ctx, tx, rowID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrBookingNotActive
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking update: %w", err)
	}
	return b, nil
}

func (db *DB) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (db *DB) BookedSlotIDs(ctx context.Context, consultantID string, date time.Time) ([]string, error) {
	query := `SELECT slot_id FROM bookings
              WHERE consultant_id = ? AND date = ? AND status = ?
              ORDER BY slot_id`
	rows, err := db.QueryContext(ctx, query, consultantID,
		models.NormalizeDate(date).Format(models.DateLayout), string(models.BookingConfirmed))
	if err != nil {
		return nil, fmt.Errorf("failed to get booked slots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan slot id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// isUniqueViolation matches idx_bookings_active_slot rejecting a second
// confirmed booking for the same consultant, date and slot.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b         models.Booking
		rowID     int64
		dateStr   string
		status    string
		paymentID sql.NullString
	)
	err := row.Scan(
		&rowID, &b.Service.ID, &b.Service.Name, &b.Service.Price, &b.Consultant.ID, &b.Consultant.Name,
		&dateStr, &b.Slot.ID, &b.Slot.Time, &b.Slot.Available,
		&b.ContactDetails.Name, &b.ContactDetails.Email, &b.ContactDetails.Phone,
		&status, &paymentID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.ID = FormatBookingID(rowID)
	b.Consultant.ServiceID = b.Service.ID
	b.Status = models.BookingStatus(status)
	b.PaymentID = paymentID.String
	b.Date, err = models.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	return &b, nil
}
