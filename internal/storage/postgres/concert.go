package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Vasu1712/scenyx-live/internal/models"
	"github.com/Vasu1712/scenyx-live/internal/storage"
)

const concertColumns = `id, title, description, host_id, host_display_name, setlist, created_at`

// CreateConcert inserts a concert with a fresh id. The setlist is stored as
// JSONB with positions renumbered from 1.
func (s *Store) CreateConcert(ctx context.Context, in storage.NewConcert) (*models.Concert, error) {
	concert := &models.Concert{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Description:     in.Description,
		HostID:          in.HostID,
		HostDisplayName: in.HostDisplayName,
		Setlist:         make([]models.SetlistEntry, len(in.Setlist)),
	}
	for i, e := range in.Setlist {
		e.Position = i + 1
		concert.Setlist[i] = e
	}
	setlist, err := json.Marshal(concert.Setlist)
	if err != nil {
		return nil, fmt.Errorf("encode setlist: %w", err)
	}

	query := `INSERT INTO concerts (id, title, description, host_id, host_display_name, setlist)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`
	err = s.db.QueryRowContext(ctx, query,
		concert.ID, concert.Title, concert.Description, concert.HostID, concert.HostDisplayName, setlist,
	).Scan(&concert.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert concert: %w", err)
	}

	slog.Info("postgres: concert created", "concert_id", concert.ID, "title", concert.Title, "host_id", concert.HostID)
	return concert, nil
}

// GetConcert returns the concert or storage.ErrNotFound.
func (s *Store) GetConcert(ctx context.Context, id string) (*models.Concert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+concertColumns+` FROM concerts WHERE id = $1`, id)
	concert, err := scanConcert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get concert %s: %w", id, err)
	}
	return concert, nil
}

// ListConcerts returns up to limit concerts, newest first. limit <= 0 means all.
func (s *Store) ListConcerts(ctx context.Context, limit int) ([]*models.Concert, error) {
	query := `SELECT ` + concertColumns + ` FROM concerts ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list concerts: %w", err)
	}
	defer rows.Close()

	concerts := []*models.Concert{}
	for rows.Next() {
		concert, err := scanConcert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan concert: %w", err)
		}
		concerts = append(concerts, concert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concerts: %w", err)
	}
	return concerts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConcert(row rowScanner) (*models.Concert, error) {
	var (
		c       models.Concert
		setlist []byte
	)
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.HostID, &c.HostDisplayName, &setlist, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Setlist = []models.SetlistEntry{}
	if len(setlist) > 0 {
		if err := json.Unmarshal(setlist, &c.Setlist); err != nil {
			return nil, fmt.Errorf("decode setlist: %w", err)
		}
	}
	return &c, nil
}
