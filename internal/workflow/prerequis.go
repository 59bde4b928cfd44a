package workflow

import (
	"github.com/noah-isme/doctorat-api/internal/models"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

// PrerequisPolicy is the minimum output required before a defense request.
type PrerequisPolicy struct {
	MinArticles      int
	MinConferences   int
	MinTrainingHours int
}

// DefaultPrerequisPolicy requires 2 Q1/Q2 articles, 2 conferences and 200 training hours.
var DefaultPrerequisPolicy = PrerequisPolicy{MinArticles: 2, MinConferences: 2, MinTrainingHours: 200}

// Check returns PrerequisNotMet listing each failing threshold.
func (p PrerequisPolicy) Check(pr models.Prerequis) error {
	failing := map[string]interface{}{}
	if pr.NbArticles < p.MinArticles {
		failing["nbArticlesQ1Q2"] = map[string]int{"required": p.MinArticles, "actual": pr.NbArticles}
	}
	if pr.NbConferences < p.MinConferences {
		failing["nbConferences"] = map[string]int{"required": p.MinConferences, "actual": pr.NbConferences}
	}
	if pr.HeuresFormation < p.MinTrainingHours {
		failing["heuresFormation"] = map[string]int{"required": p.MinTrainingHours, "actual": pr.HeuresFormation}
	}
	if len(failing) == 0 {
		return nil
	}
	return appErrors.WithDetails(appErrors.ErrPrerequisNotMet, failing)
}
