package models

import "time"

// DemandeStatus captures the defense authorization states.
type DemandeStatus string

const (
	DemandeEnAttentePrerequis DemandeStatus = "EN_ATTENTE_PREREQUIS"
	DemandeEnAttenteJury      DemandeStatus = "EN_ATTENTE_JURY"
	DemandeEnAttenteRapports  DemandeStatus = "EN_ATTENTE_RAPPORTS"
	DemandeAutorisee          DemandeStatus = "AUTORISEE"
	DemandePlanifiee          DemandeStatus = "PLANIFIEE"
)

// Demande is a thesis defense request.
type Demande struct {
	ID              string               `db:"id" json:"id"`
	DoctorantID     string               `db:"doctorant_id" json:"doctorantId"`
	ManuscritPath   *string              `db:"manuscrit_path" json:"-"`
	Status          DemandeStatus        `db:"status" json:"status"`
	DateSoumission  time.Time            `db:"date_soumission" json:"dateSoumission"`
	DateSoutenance  *time.Time           `db:"date_soutenance" json:"dateSoutenance,omitempty"`
	HeureSoutenance *string              `db:"heure_soutenance" json:"heureSoutenance,omitempty"`
	LieuSoutenance  *string              `db:"lieu_soutenance" json:"lieuSoutenance,omitempty"`
	DerogationDuree bool                 `db:"derogation_duree" json:"derogationDuree"`
	UpdatedAt       time.Time            `db:"updated_at" json:"updatedAt"`
	Prerequis       *Prerequis           `db:"-" json:"prerequis,omitempty"`
	Jury            *Jury                `db:"-" json:"jury,omitempty"`
	Documents       []DocumentSoutenance `db:"-" json:"documents,omitempty"`
	Rapports        []Rapport            `db:"-" json:"rapports,omitempty"`
	Actions         []string             `db:"-" json:"actions,omitempty"`
}

// Prerequis records the quantitative eligibility metrics of a demande.
type Prerequis struct {
	ID              string `db:"id" json:"id"`
	DemandeID       string `db:"demande_id" json:"demandeId"`
	NbArticles      int    `db:"nb_articles" json:"nbArticlesQ1Q2"`
	NbConferences   int    `db:"nb_conferences" json:"nbConferences"`
	HeuresFormation int    `db:"heures_formation" json:"heuresFormation"`
	Valide          bool   `db:"valide" json:"valide"`
}

// MembreType distinguishes jury roles.
type MembreType string

const (
	MembreRapporteur  MembreType = "RAPPORTEUR"
	MembreExaminateur MembreType = "EXAMINATEUR"
)

// Jury is the defense committee of a demande.
type Jury struct {
	ID                 string       `db:"id" json:"id"`
	DemandeID          string       `db:"demande_id" json:"demandeId"`
	RapportsFavorables bool         `db:"rapports_favorables" json:"rapportsFavorables"`
	Membres            []MembreJury `db:"-" json:"membres"`
}

// RapporteurCount returns how many reports the jury expects.
func (j *Jury) RapporteurCount() int {
	if j == nil {
		return 0
	}
	n := 0
	for _, m := range j.Membres {
		if m.Type == MembreRapporteur {
			n++
		}
	}
	return n
}

// MembreJury is one committee member.
type MembreJury struct {
	ID       string     `db:"id" json:"id"`
	JuryID   string     `db:"jury_id" json:"juryId"`
	Nom      string     `db:"nom" json:"nom"`
	Type     MembreType `db:"type" json:"type"`
	Position int        `db:"position" json:"position"`
}

// Rapport is a rapporteur's evaluation, never updated after creation.
type Rapport struct {
	ID        string    `db:"id" json:"id"`
	DemandeID string    `db:"demande_id" json:"demandeId"`
	Chemin    string    `db:"chemin" json:"-"`
	Favorable bool      `db:"favorable" json:"favorable"`
	DateDepot time.Time `db:"date_depot" json:"dateDepot"`
}

// RapportTally summarises the reports filed for a demande.
type RapportTally struct {
	Total      int `db:"total"`
	Favorables int `db:"favorables"`
}

// DemandeFilter constrains listing queries.
type DemandeFilter struct {
	DoctorantID string
	Status      []DemandeStatus
	Limit       int
	Offset      int
}
