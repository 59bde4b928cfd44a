package dto

// SubmitDossierRequest carries the multipart form fields of a submission.
type SubmitDossierRequest struct {
	CampaignID        string `form:"campagneId" json:"campagneId" validate:"required"`
	Sujet             string `form:"sujet" json:"sujet" validate:"max=500"`
	DirecteurID       string `form:"directeurId" json:"directeurId"`
	Collaboration     string `form:"collaboration" json:"collaboration" validate:"max=500"`
	Reinscription     bool   `form:"reinscription" json:"reinscription"`
	PreviousDossierID string `form:"previousDossierId" json:"previousDossierId"`
}

// DirecteurValidationRequest is the director's verdict.
type DirecteurValidationRequest struct {
	Approve     *bool  `json:"approve" validate:"required"`
	Commentaire string `json:"commentaire" validate:"max=1000"`
}

// AdminValidationRequest is the administration's verdict.
type AdminValidationRequest struct {
	Approve         *bool  `json:"approve" validate:"required"`
	Commentaire     string `json:"commentaire" validate:"max=1000"`
	GrantDerogation bool   `json:"grantDerogation"`
}

// DocumentURLResponse is a signed download link.
type DocumentURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}
