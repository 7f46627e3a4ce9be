package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/physiopal/internal/catalog"
)

// StoredProfile is an exercise profile saved in the database.
type StoredProfile struct {
	ID        string
	Profile   catalog.Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfileRepository provides CRUD operations for exercise profiles.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

// Create validates and inserts a profile. An empty ID is assigned.
func (r *ProfileRepository) Create(p *StoredProfile) error {
	doc, err := encode(p.Profile)
	if err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = r.db.Exec(
		`INSERT INTO profiles (id, name, level, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Profile.Name, p.Profile.Level, doc, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(id string) (*StoredProfile, error) {
	return r.scanOne(r.db.QueryRow(
		`SELECT id, document, created_at, updated_at FROM profiles WHERE id = ?`, id,
	))
}

// GetByKey retrieves a profile by exercise name and level.
func (r *ProfileRepository) GetByKey(name, level string) (*StoredProfile, error) {
	return r.scanOne(r.db.QueryRow(
		`SELECT id, document, created_at, updated_at FROM profiles WHERE name = ? AND level = ?`,
		name, level,
	))
}

func (r *ProfileRepository) scanOne(row *sql.Row) (*StoredProfile, error) {
	var (
		p   StoredProfile
		doc string
	)
	if err := row.Scan(&p.ID, &doc, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	prof, err := catalog.Parse([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("stored profile %s: %w", p.ID, err)
	}
	p.Profile = prof
	return &p, nil
}

// List retrieves all profiles ordered by name and level.
func (r *ProfileRepository) List() ([]*StoredProfile, error) {
	rows, err := r.db.Query(
		`SELECT id, document, created_at, updated_at FROM profiles ORDER BY name, level`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*StoredProfile
	for rows.Next() {
		var (
			p   StoredProfile
			doc string
		)
		if err := rows.Scan(&p.ID, &doc, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		prof, err := catalog.Parse([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("stored profile %s: %w", p.ID, err)
		}
		p.Profile = prof
		profiles = append(profiles, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Update replaces an existing profile.
func (r *ProfileRepository) Update(p *StoredProfile) error {
	doc, err := encode(p.Profile)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE profiles SET name = ?, level = ?, document = ?, updated_at = ? WHERE id = ?`,
		p.Profile.Name, p.Profile.Level, doc, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete removes a profile by its ID.
func (r *ProfileRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SeedBuiltins inserts the built-in profiles that are not stored yet.
func (r *ProfileRepository) SeedBuiltins() (int, error) {
	added := 0
	for _, p := range catalog.Builtins() {
		_, err := r.GetByKey(p.Name, p.Level)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return added, err
		}
		if err := r.Create(&StoredProfile{Profile: p}); err != nil {
			return added, fmt.Errorf("seed %s: %w", p.Key(), err)
		}
		added++
	}
	return added, nil
}

func encode(p catalog.Profile) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	doc, err := catalog.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode profile %s: %w", p.Key(), err)
	}
	return string(doc), nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
