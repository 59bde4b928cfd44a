package dto

import "time"

// UpsertCampaignRequest creates or replaces a campaign.
type UpsertCampaignRequest struct {
	Nom           string    `json:"nom" validate:"required,max=150"`
	DateOuverture time.Time `json:"dateOuverture" validate:"required"`
	DateFermeture time.Time `json:"dateFermeture" validate:"required"`
	Active        *bool     `json:"active"`
}
