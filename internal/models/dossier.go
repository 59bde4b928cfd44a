package models

import "time"

// DossierStatus captures the enrollment approval states.
type DossierStatus string

const (
	DossierEnAttenteDirecteur DossierStatus = "EN_ATTENTE_DIRECTEUR"
	DossierEnAttenteAdmin     DossierStatus = "EN_ATTENTE_ADMIN"
	DossierValide             DossierStatus = "VALIDE"
	DossierRejete             DossierStatus = "REJETE"
)

// Dossier is one doctoral enrollment record for one campaign.
type Dossier struct {
	ID                      string        `db:"id" json:"id"`
	CampaignID              string        `db:"campagne_id" json:"campagneId"`
	DoctorantID             string        `db:"doctorant_id" json:"doctorantId"`
	DirecteurID             string        `db:"directeur_id" json:"directeurId"`
	Sujet                   string        `db:"sujet" json:"sujet"`
	Collaboration           *string       `db:"collaboration" json:"collaboration,omitempty"`
	Status                  DossierStatus `db:"status" json:"status"`
	DateSoumission          time.Time     `db:"date_soumission" json:"dateSoumission"`
	DateInscriptionInitiale time.Time     `db:"date_inscription_initiale" json:"dateInscriptionInitiale"`
	Derogation              bool          `db:"derogation" json:"derogation"`
	CommentaireDirecteur    *string       `db:"commentaire_directeur" json:"commentaireDirecteur,omitempty"`
	DateValidationDirecteur *time.Time    `db:"date_validation_directeur" json:"dateValidationDirecteur,omitempty"`
	CommentaireAdmin        *string       `db:"commentaire_admin" json:"commentaireAdmin,omitempty"`
	DateValidationAdmin     *time.Time    `db:"date_validation_admin" json:"dateValidationAdmin,omitempty"`
	Reinscription           bool          `db:"reinscription" json:"reinscription"`
	PreviousDossierID       *string       `db:"previous_dossier_id" json:"previousDossierId,omitempty"`
	UpdatedAt               time.Time     `db:"updated_at" json:"updatedAt"`
	Documents               []Document    `db:"-" json:"documents,omitempty"`
	Actions                 []string      `db:"-" json:"actions,omitempty"`
}

// DossierFilter constrains listing queries.
type DossierFilter struct {
	DoctorantID string
	DirecteurID string
	CampaignID  string
	Status      []DossierStatus
	Limit       int
	Offset      int
}

// InitialInscription is the earliest enrollment of a doctorant, used for duration checks.
type InitialInscription struct {
	DoctorantID string    `db:"doctorant_id" json:"doctorantId"`
	Date        time.Time `db:"date_inscription_initiale" json:"dateInscriptionInitiale"`
	Derogation  bool      `db:"derogation" json:"derogation"`
}

// ReenrollmentStatus reports whether a doctorant may re-enroll and why.
type ReenrollmentStatus struct {
	Eligible           bool   `json:"eligible"`
	ElapsedYears       int    `json:"anneesDepuisInscription"`
	InitialDuration    int    `json:"dureeInitiale"`
	MaximumDuration    int    `json:"dureeMaximale"`
	DerogationRequired bool   `json:"derogationRequired"`
	HasDerogation      bool   `json:"hasDerogation"`
	DurationAlert      bool   `json:"alerteDuree"`
	YearsRemaining     int    `json:"anneesRestantes"`
	Reason             string `json:"raison,omitempty"`
}
