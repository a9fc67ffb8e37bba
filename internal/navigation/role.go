package navigation

import "strings"

// Role is the audience selected on the login page.
type Role string

const (
	RoleHospital Role = "hospital"
	RolePharmacy Role = "pharmacy"
	RolePatient  Role = "patient"
)

// DefaultRole is active until the user picks another tab.
const DefaultRole = RoleHospital

// Roles returns the login tabs in display order.
func Roles() []Role {
	return []Role{RoleHospital, RolePharmacy, RolePatient}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHospital, RolePharmacy, RolePatient:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole matches raw case-insensitively against the known roles.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Valid()
}

// AlertLevel grades the banner shown next to a role.
type AlertLevel string

const (
	AlertCritical AlertLevel = "critical"
	AlertWarning  AlertLevel = "warning"
	AlertAdvisory AlertLevel = "advisory"
)

// Profile is the copy the login page shows for a role.
type Profile struct {
	Role                  Role
	Label                 string
	Description           string
	AlertLevel            AlertLevel
	AlertMessage          string
	IdentifierLabel       string
	IdentifierPlaceholder string
}

var profiles = map[Role]Profile{
	RoleHospital: {
		Role:                  RoleHospital,
		Label:                 "Hospital",
		Description:           "View staffing forecasts & orchestrate resources.",
		AlertLevel:            AlertCritical,
		AlertMessage:          "CRITICAL: Predicted surge of +420 patients in next 48h. Staffing shortage detected.",
		IdentifierLabel:       "Employee ID / Email",
		IdentifierPlaceholder: "admin@healthforce.goa",
	},
	RolePharmacy: {
		Role:                  RolePharmacy,
		Label:                 "Pharmacy",
		Description:           "Track inventory & approve automated restocks.",
		AlertLevel:            AlertWarning,
		AlertMessage:          "WARNING: Paracetamol stock below safety buffer (15%). Auto-reorder pending approval.",
		IdentifierLabel:       "Employee ID / Email",
		IdentifierPlaceholder: "admin@healthforce.goa",
	},
	RolePatient: {
		Role:                  RolePatient,
		Label:                 "Patient",
		Description:           "Receive real-time health advisories & triage.",
		AlertLevel:            AlertAdvisory,
		AlertMessage:          `ADVISORY: Air Quality Index is "Severe" (450+). Respiratory cases rising. Wear a mask.`,
		IdentifierLabel:       "Mobile Number / Health ID",
		IdentifierPlaceholder: "+91 98765 43210",
	},
}

// RoleProfile returns the login copy for r. Unknown roles get the default
// role's copy.
func RoleProfile(r Role) Profile {
	if p, ok := profiles[r]; ok {
		return p
	}
	return profiles[DefaultRole]
}
