package models

import "time"

// CampaignStatus is derived from the activity flag and the admission window, never stored.
type CampaignStatus string

const (
	CampaignStatusInactive   CampaignStatus = "inactive"
	CampaignStatusNotStarted CampaignStatus = "not_started"
	CampaignStatusInProgress CampaignStatus = "in_progress"
	CampaignStatusClosed     CampaignStatus = "closed"
)

// Campaign is an admission window accepting dossier submissions.
type Campaign struct {
	ID            string    `db:"id" json:"id"`
	Nom           string    `db:"nom" json:"nom"`
	DateOuverture time.Time `db:"date_ouverture" json:"dateOuverture"`
	DateFermeture time.Time `db:"date_fermeture" json:"dateFermeture"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// IsOpenAt reports whether submissions are accepted at now: active and now in [open, close).
func (c *Campaign) IsOpenAt(now time.Time) bool {
	return c.Active && !now.Before(c.DateOuverture) && now.Before(c.DateFermeture)
}

// StatusAt derives the campaign status at now.
func (c *Campaign) StatusAt(now time.Time) CampaignStatus {
	switch {
	case !now.Before(c.DateFermeture):
		return CampaignStatusClosed
	case !c.Active:
		return CampaignStatusInactive
	case now.Before(c.DateOuverture):
		return CampaignStatusNotStarted
	default:
		return CampaignStatusInProgress
	}
}

// ExportFormat selects the rendering of a dossier export.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ContentType returns the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	if f == ExportPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// CampaignView decorates a campaign with its derived status.
type CampaignView struct {
	Campaign
	Status CampaignStatus `json:"status"`
}
