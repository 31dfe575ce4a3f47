// Package profile defines the canonical user profile entity.
//
// The profile is stored relationally and takes precedence over any profile
// payload reconstructed from event history when building agent context.
package profile

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the canonical onboarding profile for one user.
type Profile struct {
	UserID      uuid.UUID `json:"userId"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Goals       string    `json:"goals"`
	Experience  string    `json:"experience"`
	Constraints string    `json:"constraints"`
	Equipment   string    `json:"equipment"`
	RiskFlags   string    `json:"injuriesOrRiskFlags"`
	DietPrefs   string    `json:"dietPrefs"`
	Metrics     Metrics   `json:"metrics"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Metrics holds free-form body metrics captured at onboarding.
type Metrics struct {
	Age    string `json:"age"`
	Height string `json:"height"`
	Weight string `json:"weight"`
}

// Map renders the profile in the wire shape used by the agent context and the
// profile tools.
func (p *Profile) Map() map[string]any {
	return map[string]any{
		"firstName":           p.FirstName,
		"lastName":            p.LastName,
		"email":               p.Email,
		"phone":               p.Phone,
		"goals":               p.Goals,
		"experience":          p.Experience,
		"constraints":         p.Constraints,
		"equipment":           p.Equipment,
		"injuriesOrRiskFlags": p.RiskFlags,
		"dietPrefs":           p.DietPrefs,
		"metrics": map[string]any{
			"age":    p.Metrics.Age,
			"height": p.Metrics.Height,
			"weight": p.Metrics.Weight,
		},
	}
}

// FromPayload builds a Profile from a tool/API payload, trimming string fields
// and ignoring anything that is not a string.
func FromPayload(userID uuid.UUID, payload map[string]any) Profile {
	p := Profile{UserID: userID}
	p.FirstName = cleanString(payload["firstName"])
	p.LastName = cleanString(payload["lastName"])
	p.Email = cleanString(payload["email"])
	p.Phone = cleanString(payload["phone"])
	p.Goals = cleanString(payload["goals"])
	p.Experience = cleanString(payload["experience"])
	p.Constraints = cleanString(payload["constraints"])
	p.Equipment = cleanString(payload["equipment"])
	p.RiskFlags = cleanString(payload["injuriesOrRiskFlags"])
	p.DietPrefs = cleanString(payload["dietPrefs"])

	if metrics, ok := payload["metrics"].(map[string]any); ok {
		p.Metrics.Age = cleanString(metrics["age"])
		p.Metrics.Height = cleanString(metrics["height"])
		p.Metrics.Weight = cleanString(metrics["weight"])
	}
	return p
}

func cleanString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
