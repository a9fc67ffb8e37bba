package surge

import "time"

// InventoryItem 是某个药品的库存快照。
type InventoryItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Stock    int    `json:"stock"`
	MinLevel int    `json:"min_level"`
}

// Roster 是当班医护人数。
type Roster struct {
	DoctorsOnCall int `json:"doctors_on_call"`
	NursesOnCall  int `json:"nurses_on_call"`
}

// SupplierQuote 是供应商接口返回的报价。
type SupplierQuote struct {
	Supplier     string  `json:"supplier"`
	Available    int     `json:"available"`
	UnitCost     float64 `json:"unit_cost"`
	ETAHours     int     `json:"eta_hours"`
	ExpediteCost float64 `json:"expedite_cost"`
}

const (
	medInhaler      = "med_1"
	medPrednisolone = "med_2"
)

// InventorySnapshot 返回区域库存。演示数据与区域无关。
func InventorySnapshot(zone string) []InventoryItem {
	_ = zone
	return []InventoryItem{
		{ID: medInhaler, Name: "Salbutamol Inhaler", Stock: 40, MinLevel: 100},
		{ID: medPrednisolone, Name: "Prednisolone", Stock: 500, MinLevel: 200},
	}
}

// RosterFor 返回区域当班人数。
func RosterFor(zone string) Roster {
	_ = zone
	return Roster{DoctorsOnCall: 5, NursesOnCall: 12}
}

// QuoteSupplier 模拟外部供应商接口，吸入器单次最多供货 50。
func QuoteSupplier(medicineID string, quantity int) SupplierQuote {
	if medicineID == medInhaler {
		return SupplierQuote{
			Supplier:     "MedCorp India Pvt Ltd",
			Available:    min(quantity, 50),
			UnitCost:     350,
			ETAHours:     24,
			ExpediteCost: 2500,
		}
	}
	return SupplierQuote{
		Supplier:     "PharmaFast India",
		Available:    quantity,
		UnitCost:     15,
		ETAHours:     48,
		ExpediteCost: 800,
	}
}

// Forecast 是医生 agent 输出的就诊量预测。
type Forecast struct {
	Zone              string         `json:"zone"`
	PredictedPatients int            `json:"predicted_patients"`
	SeverityBreakdown map[string]int `json:"severity_breakdown"`
	Confidence        float64        `json:"confidence"`
	Reasoning         string         `json:"reasoning"`
	Timestamp         string         `json:"timestamp"`
}

// TimestampLayout 与后端其余时间字段保持一致。
const TimestampLayout = "2006-01-02T15:04:05.000000"

// SimulatedForecast 返回没有真实运行时使用的固定预测。
func SimulatedForecast(zone string, at time.Time) Forecast {
	return Forecast{
		Zone:              zone,
		PredictedPatients: 420,
		SeverityBreakdown: map[string]int{"mild": 280, "moderate": 100, "severe": 40},
		Confidence:        0.85,
		Reasoning:         "Based on Twitter signals and ER log trends",
		Timestamp:         at.Format(TimestampLayout),
	}
}
