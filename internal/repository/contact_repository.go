package repository

import (
	"context"
	"database/sql"

	"github.com/driftline/outreach-backend/internal/model"
)

type ContactRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Contact, error)
}

type ContactRepository struct {
	DB *sql.DB
}

// Upsert inserts a contact or refreshes an existing row keyed by email.
func (r *ContactRepository) Upsert(ctx context.Context, c *model.Contact) error {
	return r.DB.QueryRowContext(ctx, `
        INSERT INTO contacts (email, first_name, last_name, company, title, linkedin_url)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (email) DO UPDATE SET
            first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name,
            company=EXCLUDED.company, title=EXCLUDED.title,
            linkedin_url=EXCLUDED.linkedin_url
        RETURNING id
    `, c.Email, c.FirstName, c.LastName, c.Company, c.Title, c.LinkedInURL).Scan(&c.ID)
}

func (r *ContactRepository) GetByID(ctx context.Context, id int) (*model.Contact, error) {
	var c model.Contact
	err := r.DB.QueryRowContext(ctx, `
        SELECT id, email, first_name, last_name, company, title, linkedin_url
        FROM contacts WHERE id=$1
    `, id).Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Company, &c.Title, &c.LinkedInURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
