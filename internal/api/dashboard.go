package api

import (
	"HealthForce-Goa/internal/navigation"
	"HealthForce-Goa/sdk/go/healthforce"
)

// dashboardFor 返回角色看板的演示数据，调用方需先校验角色。
func dashboardFor(role navigation.Role, timestamp string) healthforce.Dashboard {
	switch role {
	case navigation.RolePharmacy:
		return healthforce.Dashboard{
			Alerts: []healthforce.Alert{{
				Type:      string(navigation.AlertWarning),
				Message:   "Paracetamol stock below safety buffer (15%). Auto-reorder pending approval.",
				Timestamp: timestamp,
			}},
			Stats: map[string]any{
				"items_low_stock":       3,
				"pending_orders":        2,
				"total_inventory_value": 125000,
			},
		}
	case navigation.RolePatient:
		return healthforce.Dashboard{
			Alerts: []healthforce.Alert{{
				Type:      string(navigation.AlertAdvisory),
				Message:   "Air Quality Index is 'Severe' (450+). Respiratory cases rising. Wear a mask.",
				Timestamp: timestamp,
			}},
			Stats: map[string]any{
				"aqi":                   450,
				"risk_level":            "severe",
				"nearest_hospital_wait": "15 mins",
			},
		}
	default:
		return healthforce.Dashboard{
			Alerts: []healthforce.Alert{{
				Type:      string(navigation.AlertCritical),
				Message:   "Predicted surge of +420 patients in next 48h. Staffing shortage detected.",
				Timestamp: timestamp,
			}},
			Stats: map[string]any{
				"predicted_patients": 420,
				"current_staff":      17,
				"recommended_staff":  25,
				"risk_level":         "high",
			},
		}
	}
}
