package dto

import "github.com/noah-isme/doctorat-api/internal/models"

// SubmitDemandeRequest carries the multipart form fields of a defense request.
type SubmitDemandeRequest struct {
	NbArticles      int `form:"nbArticlesQ1Q2" json:"nbArticlesQ1Q2" validate:"min=0"`
	NbConferences   int `form:"nbConferences" json:"nbConferences" validate:"min=0"`
	HeuresFormation int `form:"heuresFormation" json:"heuresFormation" validate:"min=0"`
}

// ProposeJuryRequest lists committee members by role.
type ProposeJuryRequest struct {
	Rapporteurs  []string `json:"rapporteurs" validate:"required,min=1,dive,required"`
	Examinateurs []string `json:"examinateurs" validate:"dive,required"`
}

// PlanifierRequest schedules an authorized defense. Date is YYYY-MM-DD and Heure HH:MM.
type PlanifierRequest struct {
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Heure string `json:"heure" validate:"required,datetime=15:04"`
	Lieu  string `json:"lieu" validate:"required,max=255"`
}

// DemandeQuery mirrors supported listing filters.
type DemandeQuery struct {
	Status []models.DemandeStatus
}
