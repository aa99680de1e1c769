// Package postgres implements the appointment store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consultbot/internal/config"
	"consultbot/internal/database"
	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// uniqueViolation is the SQLSTATE raised by idx_bookings_active_slot.
const uniqueViolation = "23505"

const bookingColumns = `id, service_id, service_name, service_price::float8, consultant_id, consultant_name,
	date, slot_id, slot_time, slot_available, contact_name, contact_email, contact_phone,
	status, payment_id, created_at, updated_at`

type Store struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// Open connects, migrates and returns a ready store.
func Open(ctx context.Context, cfg config.PostgresConfig, logger *zerolog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := Migrate(ctx, pool, cfg.MigrationTable, logger); err != nil {
		pool.Close()
		return nil, err
	}

	return NewStore(pool, logger), nil
}

func NewStore(pool *pgxpool.Pool, logger *zerolog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateBooking(ctx context.Context, draft models.BookingDraft) (*models.Booking, error) {
	query := `
		INSERT INTO bookings (
			service_id, service_name, service_price, consultant_id, consultant_name,
			date, slot_id, slot_time, slot_available, contact_name, contact_email,
			contact_phone, status, payment_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + bookingColumns

	row := s.pool.QueryRow(ctx, query,
		draft.Service.ID,
		draft.Service.Name,
		draft.Service.Price,
		draft.Consultant.ID,
		draft.Consultant.Name,
		models.NormalizeDate(draft.Date),
		draft.Slot.ID,
		draft.Slot.Time,
		draft.Slot.Available,
		draft.ContactDetails.Name,
		draft.ContactDetails.Email,
		draft.ContactDetails.Phone,
		string(models.BookingConfirmed),
		draft.PaymentID,
	)
	b, err := scanBooking(row)
	if isUniqueViolation(err) {
		return nil, domain.ErrSlotTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return b, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	rowID, err := database.ParseBookingID(id)
	if err != nil {
		return nil, domain.ErrBookingNotFound
	}

	row := s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, rowID)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking by id: %w", err)
	}
	return b, nil
}

func (s *Store) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.updateActive(ctx, id,
		`UPDATE bookings SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3 RETURNING `+bookingColumns,
		string(models.BookingCancelled))
}

func (s *Store) RescheduleBooking(ctx context.Context, id string, date time.Time, slot models.TimeSlot) (*models.Booking, error) {
	return s.updateActive(ctx, id,
		`UPDATE bookings SET date = $1, slot_id = $2, slot_time = $3, slot_available = $4, updated_at = NOW()
		 WHERE id = $5 AND status = $6 RETURNING `+bookingColumns,
		models.NormalizeDate(date), slot.ID, slot.Time, slot.Available)
}

// updateActive appends id and the CONFIRMED guard to args. No returned row
// means either a missing booking or one that is no longer active.
func (s *Store) updateActive(ctx context.Context, id, query string, args ...interface{}) (*models.Booking, error) {
	rowID, err := database.ParseBookingID(id)
	if err != nil {
		return nil, domain.ErrBookingNotFound
	}

	args = append(args, rowID, string(models.BookingConfirmed))
	b, err := scanBooking(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return b, nil
	}
	if isUniqueViolation(err) {
		return nil, domain.ErrSlotTaken
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update booking: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, rowID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check booking exists: %w", err)
	}
	if !exists {
		return nil, domain.ErrBookingNotFound
	}
	return nil, domain.ErrBookingNotActive
}

func (s *Store) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (s *Store) BookedSlotIDs(ctx context.Context, consultantID string, date time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slot_id FROM bookings
		WHERE consultant_id = $1 AND date = $2 AND status = $3
		ORDER BY slot_id`,
		consultantID, models.NormalizeDate(date), string(models.BookingConfirmed))
	if err != nil {
		return nil, fmt.Errorf("get booked slots: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect booked slots: %w", err)
	}
	return ids, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var (
		b         models.Booking
		rowID     int64
		status    string
		paymentID *string
	)
	err := row.Scan(
		&rowID, &b.Service.ID, &b.Service.Name, &b.Service.Price, &b.Consultant.ID, &b.Consultant.Name,
		&b.Date, &b.Slot.ID, &b.Slot.Time, &b.Slot.Available,
		&b.ContactDetails.Name, &b.ContactDetails.Email, &b.ContactDetails.Phone,
		&status, &paymentID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.ID = database.FormatBookingID(rowID)
	b.Consultant.ServiceID = b.Service.ID
	b.Status = models.BookingStatus(status)
	b.Date = models.NormalizeDate(b.Date)
	if paymentID != nil {
		b.PaymentID = *paymentID
	}
	return &b, nil
}
