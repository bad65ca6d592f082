package model

type Contact struct {
	ID          int    `db:"id" json:"id"`
	Email       string `db:"email" json:"email"`
	FirstName   string `db:"first_name" json:"first_name"`
	LastName    string `db:"last_name" json:"last_name"`
	Company     string `db:"company" json:"company"`
	Title       string `db:"title" json:"title"`
	LinkedInURL string `db:"linkedin_url" json:"linkedin_url"`
}
