package surge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "HealthForce-Goa/internal/errors"
)

// Request 描述交给流水线的一次分析。
type Request struct {
	RunID        string
	LocationZone string
	CurrentTime  string
}

// ProgressFunc 接收阶段进度文本。
type ProgressFunc func(progress string)

// Pipeline 执行多 agent 分析并返回按输出名分键的结果。
type Pipeline interface {
	Run(ctx context.Context, req Request, progress ProgressFunc) (Result, error)
}

// Agent 名称按执行顺序排列。
const (
	AgentDoctor       = "doctor"
	AgentPublicHealth = "public_health"
	AgentOperations   = "operations"
	AgentPharmacy     = "pharmacy"
	AgentSupplier     = "supplier"
	AgentOrchestrator = "orchestrator"
	AgentPayment      = "payment"
	AgentInfographic  = "infographic"
	AgentTelegram     = "telegram"
)

var agentOrder = []string{
	AgentDoctor,
	AgentPublicHealth,
	AgentOperations,
	AgentPharmacy,
	AgentSupplier,
	AgentOrchestrator,
	AgentPayment,
	AgentInfographic,
	AgentTelegram,
}

var agentTitles = map[string]string{
	AgentDoctor:       "Doctor",
	AgentPublicHealth: "Public Health",
	AgentOperations:   "Operations",
	AgentPharmacy:     "Pharmacy",
	AgentSupplier:     "Supplier",
	AgentOrchestrator: "Orchestrator",
	AgentPayment:      "Payment",
	AgentInfographic:  "Infographic",
	AgentTelegram:     "Telegram",
}

// Agents 返回流水线中的 agent 名称。
func Agents() []string {
	out := make([]string, len(agentOrder))
	copy(out, agentOrder)
	return out
}

// StageProgress 返回某个 agent 开始执行时写入的进度文本。
func StageProgress(agent string) string {
	title, ok := agentTitles[agent]
	if !ok {
		title = agent
	}
	return fmt.Sprintf("Running %s Agent...", title)
}

// 人工审批阈值。
const (
	approvalCostLimit     = 50000.0
	approvalMinConfidence = 0.7
)

// 排班规则：每 20 名轻症 1 名医生，每 5 名重症 1 名医生，每 10 名患者 1 名护士，8 小时一班。
const (
	mildPerDoctor    = 20
	severePerDoctor  = 5
	patientsPerNurse = 10
	doctorHourlyCost = 2500.0
	nurseHourlyCost  = 800.0
	shiftHours       = 8
)

// MedicineItem 是需要补货的药品。
type MedicineItem struct {
	MedicineID     string `json:"medicine_id"`
	Name           string `json:"name"`
	QuantityNeeded int    `json:"quantity_needed"`
	Urgency        string `json:"urgency"`
}

// PharmacyPlan 是药房 agent 的输出。
type PharmacyPlan struct {
	ItemsToReorder        []MedicineItem `json:"items_to_reorder"`
	EstimatedInternalCost float64        `json:"estimated_internal_cost"`
	Status                string         `json:"status"`
}

// SupplierOffer 是单个药品的采购报价。
type SupplierOffer struct {
	MedicineID        string  `json:"medicine_id"`
	SupplierName      string  `json:"supplier_name"`
	QuantityAvailable int     `json:"quantity_available"`
	Cost              float64 `json:"cost"`
	DeliveryETAHours  int     `json:"delivery_eta_hours"`
	ExpediteAvailable bool    `json:"expedite_available"`
	ExpediteCost      float64 `json:"expedite_cost"`
}

// SupplierResponse 汇总采购计划。
type SupplierResponse struct {
	Offers               []SupplierOffer `json:"offers"`
	TotalProcurementCost float64         `json:"total_procurement_cost"`
	LogisticsRisk        string          `json:"logistics_risk"`
}

// ShiftDetail 描述某个岗位的排班缺口。
type ShiftDetail struct {
	Role        string `json:"role"`
	CountNeeded int    `json:"count_needed"`
	ShiftPeriod string `json:"shift_period"`
}

// StaffingPlan 是运营 agent 的输出。
type StaffingPlan struct {
	Shifts         []ShiftDetail `json:"shifts"`
	TotalLaborCost float64       `json:"total_labor_cost"`
	GapAnalysis    string        `json:"gap_analysis"`
}

// PublicAdvisory 是公共卫生 agent 起草的公告。
type PublicAdvisory struct {
	AlertLevel     string   `json:"alert_level"`
	Title          string   `json:"title"`
	MessageBody    string   `json:"message_body"`
	TargetChannels []string `json:"target_channels"`
	DraftStatus    string   `json:"draft_status"`
}

// AuditLog 记录编排决策。
type AuditLog struct {
	ActionType string  `json:"action_type"`
	AgentName  string  `json:"agent_name"`
	Reasoning  string  `json:"reasoning"`
	CostImpact float64 `json:"cost_impact"`
	Timestamp  string  `json:"timestamp"`
}

// FinalDecision 是编排 agent 的结论。
type FinalDecision struct {
	Approved              bool       `json:"approved"`
	ExecutionPlan         string     `json:"execution_plan"`
	RiskLevel             string     `json:"risk_level"`
	HumanApprovalRequired bool       `json:"human_approval_required"`
	AuditTrail            []AuditLog `json:"audit_trail"`
}

// PaymentTransaction 是一笔模拟付款。
type PaymentTransaction struct {
	TransactionID string  `json:"transaction_id"`
	Recipient     string  `json:"recipient"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
}

// PaymentStatus 汇总付款。
type PaymentStatus struct {
	Transactions []PaymentTransaction `json:"transactions"`
	TotalPaid    float64              `json:"total_paid"`
	Status       string               `json:"status"`
}

// InfographicContent 是公告配图的文案。
type InfographicContent struct {
	Title             string   `json:"title"`
	KeyStats          []string `json:"key_stats"`
	VisualDescription string   `json:"visual_description"`
	ImagePath         *string  `json:"image_path"`
}

// TelegramStatus 记录告警推送结果。
type TelegramStatus struct {
	Sent      bool    `json:"sent"`
	MessageID *string `json:"message_id"`
	Timestamp string  `json:"timestamp"`
}

// analysis 是各 agent 共享的状态，字段名即结果中的键。
type analysis struct {
	LocationZone     string              `json:"location_zone"`
	CurrentTime      string              `json:"current_time"`
	Forecast         *Forecast           `json:"forecast"`
	PharmacyPlan     *PharmacyPlan       `json:"pharmacy_plan"`
	StaffingPlan     *StaffingPlan       `json:"staffing_plan"`
	SupplierResponse *SupplierResponse   `json:"supplier_response"`
	PublicAdvisory   *PublicAdvisory     `json:"public_advisory"`
	FinalDecision    *FinalDecision      `json:"final_decision"`
	PaymentStatus    *PaymentStatus      `json:"payment_status"`
	Infographic      *InfographicContent `json:"infographic"`
	TelegramStatus   *TelegramStatus     `json:"telegram_status"`
	Messages         []string            `json:"messages"`
}

type stageFunc func(a *analysis, now string)

// SimulatedPipeline 依次执行各 agent，数据来自固定的演示快照。
type SimulatedPipeline struct {
	// StepDelay 是每个阶段之间的停顿，便于观察进度。
	StepDelay time.Duration
	Now       func() time.Time
}

// NewSimulatedPipeline 创建模拟流水线。
func NewSimulatedPipeline(stepDelay time.Duration) *SimulatedPipeline {
	return &SimulatedPipeline{StepDelay: stepDelay, Now: time.Now}
}

// Run 执行全部阶段。ctx 取消时在阶段边界返回。
func (p *SimulatedPipeline) Run(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	zone := strings.TrimSpace(req.LocationZone)
	if zone == "" {
		return nil, xerrors.New(CodeValidation, "location_zone 不能为空")
	}
	now := p.now()
	a := &analysis{
		LocationZone: zone,
		CurrentTime:  req.CurrentTime,
		Messages:     []string{},
	}
	if a.CurrentTime == "" {
		a.CurrentTime = now.Format(TimestampLayout)
	}

	stages := map[string]stageFunc{
		AgentDoctor:       runDoctor,
		AgentPublicHealth: runPublicHealth,
		AgentOperations:   runOperations,
		AgentPharmacy:     runPharmacy,
		AgentSupplier:     runSupplier,
		AgentOrchestrator: runOrchestrator,
		AgentPayment:      runPayment,
		AgentInfographic:  runInfographic,
		AgentTelegram:     runTelegram,
	}
	for i, name := range agentOrder {
		if i > 0 && p.StepDelay > 0 {
			timer := time.NewTimer(p.StepDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(StageProgress(name))
		}
		stages[name](a, p.now().Format(TimestampLayout))
	}
	return a.result()
}

func (p *SimulatedPipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (a *analysis) result() (Result, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, xerrors.Wrap(CodePipeline, err, "编码分析结果失败")
	}
	var out Result
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, xerrors.Wrap(CodePipeline, err, "解码分析结果失败")
	}
	return out, nil
}

func (a *analysis) log(format string, args ...any) {
	a.Messages = append(a.Messages, fmt.Sprintf(format, args...))
}

func runDoctor(a *analysis, now string) {
	forecast := SimulatedForecast(a.LocationZone, time.Time{})
	forecast.Timestamp = now
	a.Forecast = &forecast
	a.log("Doctor: Predicted %d patients.", forecast.PredictedPatients)
}

func runPublicHealth(a *analysis, _ string) {
	f := a.Forecast
	severe := f.SeverityBreakdown["severe"]
	advisory := &PublicAdvisory{
		AlertLevel:     "info",
		Title:          fmt.Sprintf("Health update for %s", a.LocationZone),
		MessageBody:    "Respiratory cases are within normal range. Stay hydrated and follow routine precautions.",
		TargetChannels: []string{"App"},
		DraftStatus:    "ready",
	}
	if severe > 10 || f.PredictedPatients > 100 {
		advisory.AlertLevel = "warning"
		advisory.Title = fmt.Sprintf("Respiratory surge warning for %s", a.LocationZone)
		advisory.MessageBody = fmt.Sprintf(
			"Hospitals expect around %d patients in the next 48 hours, %d of them severe. Wear a mask outdoors and seek care early if breathing becomes difficult.",
			f.PredictedPatients, severe)
		advisory.TargetChannels = []string{"SMS", "App", "Social"}
	}
	a.PublicAdvisory = advisory
	a.log("PublicHealth: Advisory drafted.")
}

func runOperations(a *analysis, _ string) {
	f := a.Forecast
	roster := RosterFor(a.LocationZone)
	doctors := ceilDiv(f.SeverityBreakdown["mild"], mildPerDoctor) + ceilDiv(f.SeverityBreakdown["severe"], severePerDoctor)
	nurses := ceilDiv(f.PredictedPatients, patientsPerNurse)
	extraDoctors := max(doctors-roster.DoctorsOnCall, 0)
	extraNurses := max(nurses-roster.NursesOnCall, 0)

	shifts := []ShiftDetail{
		{Role: "doctor", CountNeeded: extraDoctors, ShiftPeriod: "next 48h"},
		{Role: "nurse", CountNeeded: extraNurses, ShiftPeriod: "next 48h"},
	}
	cost := float64(extraDoctors)*doctorHourlyCost*shiftHours + float64(extraNurses)*nurseHourlyCost*shiftHours
	gap := fmt.Sprintf("Need %d doctors and %d nurses; %d doctors and %d nurses on call.",
		doctors, nurses, roster.DoctorsOnCall, roster.NursesOnCall)

	plan := &StaffingPlan{Shifts: shifts, TotalLaborCost: cost, GapAnalysis: gap}
	a.StaffingPlan = plan
	a.log("Operations: Staffing calculated.")
}

func runPharmacy(a *analysis, _ string) {
	f := a.Forecast
	// 重症每人 1 支吸入器，所有患者每人 2 片泼尼松龙，外加 10% 缓冲。
	demand := map[string]int{
		medInhaler:      f.SeverityBreakdown["severe"],
		medPrednisolone: 2 * f.PredictedPatients,
	}
	plan := &PharmacyPlan{ItemsToReorder: []MedicineItem{}, Status: "adequate"}
	for _, item := range InventorySnapshot(a.LocationZone) {
		buffered := (demand[item.ID]*11 + 9) / 10
		if item.Stock >= buffered && item.Stock >= item.MinLevel {
			continue
		}
		qty := max(buffered, item.MinLevel) - item.Stock
		urgency := "normal"
		if item.Stock < item.MinLevel {
			urgency = "critical"
		}
		plan.ItemsToReorder = append(plan.ItemsToReorder, MedicineItem{
			MedicineID:     item.ID,
			Name:           item.Name,
			QuantityNeeded: qty,
			Urgency:        urgency,
		})
		plan.EstimatedInternalCost += float64(qty) * QuoteSupplier(item.ID, qty).UnitCost
	}
	if len(plan.ItemsToReorder) > 0 {
		plan.Status = "shortage"
	}
	a.PharmacyPlan = plan
	a.log("Pharmacy: Need to reorder %d items.", len(plan.ItemsToReorder))
}

func runSupplier(a *analysis, _ string) {
	plan := a.PharmacyPlan
	if plan == nil || len(plan.ItemsToReorder) == 0 {
		a.log("Supplier: No orders needed.")
		return
	}
	resp := &SupplierResponse{LogisticsRisk: "low"}
	for _, item := range plan.ItemsToReorder {
		quote := QuoteSupplier(item.MedicineID, item.QuantityNeeded)
		offer := SupplierOffer{
			MedicineID:        item.MedicineID,
			SupplierName:      quote.Supplier,
			QuantityAvailable: quote.Available,
			Cost:              float64(quote.Available) * quote.UnitCost,
			DeliveryETAHours:  quote.ETAHours,
			ExpediteAvailable: quote.ExpediteCost > 0,
			ExpediteCost:      quote.ExpediteCost,
		}
		resp.Offers = append(resp.Offers, offer)
		resp.TotalProcurementCost += offer.Cost
		switch {
		case quote.Available < item.QuantityNeeded:
			resp.LogisticsRisk = "high"
		case quote.ETAHours > 24 && resp.LogisticsRisk == "low":
			resp.LogisticsRisk = "medium"
		}
	}
	a.SupplierResponse = resp
	a.log("Supplier: Cost calculated %s", formatAmount(resp.TotalProcurementCost))
}

func runOrchestrator(a *analysis, now string) {
	var supplierCost, laborCost float64
	supplierRisk := "low"
	if a.SupplierResponse != nil {
		supplierCost = a.SupplierResponse.TotalProcurementCost
		supplierRisk = a.SupplierResponse.LogisticsRisk
	}
	if a.StaffingPlan != nil {
		laborCost = a.StaffingPlan.TotalLaborCost
	}
	total := supplierCost + laborCost

	var reasons []string
	if total > approvalCostLimit {
		reasons = append(reasons, fmt.Sprintf("total cost %s exceeds %s", formatAmount(total), formatAmount(approvalCostLimit)))
	}
	if supplierRisk == "high" {
		reasons = append(reasons, "supplier logistics risk is high")
	}
	if a.Forecast.Confidence < approvalMinConfidence {
		reasons = append(reasons, fmt.Sprintf("forecast confidence %.2f is below %.2f", a.Forecast.Confidence, approvalMinConfidence))
	}
	humanRequired := len(reasons) > 0

	risk := supplierRisk
	if risk == "low" && total > approvalCostLimit {
		risk = "medium"
	}
	reasoning := "All plans within automatic approval limits."
	if humanRequired {
		reasoning = "Human approval required: " + strings.Join(reasons, "; ") + "."
	}

	plan := fmt.Sprintf("Reorder %d items, add %s in staffing for %s, publish %s advisory.",
		len(a.PharmacyPlan.ItemsToReorder), formatAmount(laborCost), a.LocationZone, a.PublicAdvisory.AlertLevel)
	audit := AuditLog{
		ActionType: "surge_response",
		AgentName:  "OrchestratorAgent",
		Reasoning:  reasoning,
		CostImpact: total,
		Timestamp:  now,
	}
	a.FinalDecision = &FinalDecision{
		Approved:              !humanRequired,
		ExecutionPlan:         plan,
		RiskLevel:             risk,
		HumanApprovalRequired: humanRequired,
		AuditTrail:            []AuditLog{audit},
	}
	a.log("Orchestrator: Final decision logged.")
}

func runPayment(a *analysis, now string) {
	if a.FinalDecision == nil || !a.FinalDecision.Approved {
		a.log("Payment: Skipped (Not Approved)")
		return
	}
	status := &PaymentStatus{Transactions: []PaymentTransaction{}, Status: "completed"}
	if a.SupplierResponse != nil && a.SupplierResponse.TotalProcurementCost > 0 {
		status.Transactions = append(status.Transactions, newTransaction("MedSupplier_Inc", a.SupplierResponse.TotalProcurementCost, now))
	}
	if a.StaffingPlan != nil && a.StaffingPlan.TotalLaborCost > 0 {
		status.Transactions = append(status.Transactions, newTransaction("Hospital_Staff_Fund", a.StaffingPlan.TotalLaborCost, now))
	}
	for _, txn := range status.Transactions {
		status.TotalPaid += txn.Amount
	}
	a.PaymentStatus = status
	a.log("Payment: Processed ₹%s", formatAmount(status.TotalPaid))
}

func runInfographic(a *analysis, _ string) {
	if a.PublicAdvisory == nil {
		a.log("Infographic: Skipped (No Advisory)")
		return
	}
	image := "/tmp/infographic_placeholder.png"
	stats := []string{
		fmt.Sprintf("%d patients expected", a.Forecast.PredictedPatients),
		fmt.Sprintf("%d severe cases", a.Forecast.SeverityBreakdown["severe"]),
		fmt.Sprintf("Alert level: %s", strings.ToUpper(a.PublicAdvisory.AlertLevel)),
	}
	a.Infographic = &InfographicContent{
		Title:             a.PublicAdvisory.Title,
		KeyStats:          stats,
		VisualDescription: "Red banner with a mask icon and hospital cross",
		ImagePath:         &image,
	}
	a.log("Infographic: Content generated.")
}

func runTelegram(a *analysis, now string) {
	if a.Infographic == nil {
		a.log("Telegram: Skipped (No Content)")
		return
	}
	id := "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	a.TelegramStatus = &TelegramStatus{Sent: true, MessageID: &id, Timestamp: now}
	a.log("Telegram: Alert sent to group.")
}

func newTransaction(recipient string, amount float64, now string) PaymentTransaction {
	return PaymentTransaction{
		TransactionID: "TXN-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Recipient:     recipient,
		Amount:        amount,
		Status:        "completed",
		Timestamp:     now,
	}
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

var _ Pipeline = (*SimulatedPipeline)(nil)
