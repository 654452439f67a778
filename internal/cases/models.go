package cases

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// 优先级
const (
	PriorityCrisis = "Crisis"
	PriorityMajor  = "Major"
	PriorityMinor  = "Minor"
)

// 案件状态
const (
	CaseStatusPending              = "Pending"
	CaseStatusCompletedInvestigate = "Completed Investigate"
	AccidentStatusOpen             = "OPEN"
)

// 编号前缀
const (
	PrefixCaseReport   = "NC"
	PrefixAccidentCase = "AC"
)

// CaseReport 不合格事件报告
type CaseReport struct {
	ID              uint           `gorm:"primaryKey" json:"case_id"`
	DocumentNo      string         `gorm:"size:50;not null;uniqueIndex" json:"document_no"`
	SiteID          uint           `gorm:"not null;index" json:"site_id"`
	DepartmentID    *uint          `gorm:"index" json:"department_id"`
	ClientID        *uint          `json:"client_id"`
	DriverID        *uint          `gorm:"index" json:"driver_id"`
	ReporterID      *uint          `json:"reporter_id"`
	DriverRoleID    *uint          `json:"driver_role_id"`
	OriginID        *uint          `json:"origin_id"`
	VehicleIDHead   *uint          `json:"vehicle_id_head"`
	VehicleIDTail   *uint          `json:"vehicle_id_tail"`
	VehicleTruckNo  string         `gorm:"size:50" json:"vehicle_truckno"`
	IncidentCauseID *uint          `json:"incident_cause_id"`
	RecordDate      *time.Time     `json:"record_date"`
	IncidentDate    *time.Time     `gorm:"index" json:"incident_date"`
	CaseLocation    string         `gorm:"size:255" json:"case_location"`
	Destination     string         `gorm:"size:255" json:"destination"`
	CaseDetails     string         `gorm:"type:text" json:"case_details"`
	EstimatedCost   *float64       `gorm:"type:numeric(12,2)" json:"estimated_cost"`
	ActualPrice     *float64       `gorm:"type:numeric(12,2)" json:"actual_price"`
	Attachments     string         `gorm:"size:500" json:"attachments"`
	CaseStatus      string         `gorm:"size:50;not null;index" json:"casestatus"`
	Priority        string         `gorm:"size:20;not null;index" json:"priority"`
	Docs            datatypes.JSON `gorm:"type:jsonb" json:"docs" swaggertype:"array,object"`
	CreatedBy       string         `gorm:"size:50" json:"created_by"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	Products      []CaseProduct  `gorm:"foreignKey:CaseID;constraint:OnDelete:CASCADE" json:"products"`
	Investigation *Investigation `gorm:"foreignKey:DocumentNo;references:DocumentNo" json:"investigation,omitempty"`
}

// TableName 指定表名
func (CaseReport) TableName() string { return "case_reports" }

// Damage 优先级判定使用的损失金额：有实际金额时取实际，否则取估计
func (r *CaseReport) Damage() float64 {
	if r.ActualPrice != nil && *r.ActualPrice != 0 {
		return *r.ActualPrice
	}
	if r.EstimatedCost != nil {
		return *r.EstimatedCost
	}
	return 0
}

// CaseProduct 事件涉及的货品
type CaseProduct struct {
	ID          uint   `gorm:"primaryKey" json:"case_product_id"`
	CaseID      uint   `gorm:"not null;index" json:"case_id"`
	ProductName string `gorm:"size:100" json:"product_name"`
	Amount      int    `gorm:"not null" json:"amount"`
	Unit        string `gorm:"size:50" json:"unit"`
}

// TableName 指定表名
func (CaseProduct) TableName() string { return "case_products" }

// Investigation 事件调查，与报告一对一
type Investigation struct {
	ID                  uint      `gorm:"primaryKey" json:"investigate_id"`
	DocumentNo          string    `gorm:"size:50;not null;uniqueIndex" json:"document_no"`
	RootCauseAnalysis   *string   `gorm:"type:text" json:"root_cause_analysis"`
	ClaimType           *string   `gorm:"type:text" json:"claim_type"`
	InsuranceClaim      *string   `gorm:"size:100" json:"insurance_claim"`
	ProductResellable   *string   `gorm:"size:100" json:"product_resellable"`
	RemainingDamageCost *float64  `gorm:"type:numeric(12,2)" json:"remaining_damage_cost"`
	DriverCost          *float64  `gorm:"type:numeric(12,2)" json:"driver_cost"`
	CompanyCost         *float64  `gorm:"type:numeric(12,2)" json:"company_cost"`
	UpdatedBy           string    `gorm:"size:50" json:"updated_by"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`

	CorrectiveActions []CorrectiveAction `gorm:"foreignKey:InvestigationID;constraint:OnDelete:CASCADE" json:"corrective_actions"`
}

// TableName 指定表名
func (Investigation) TableName() string { return "case_report_investigations" }

// Complete 调查字段全部填写，且每条纠正措施都有内容、负责人与计划日期
func (inv *Investigation) Complete() bool {
	for _, s := range []*string{inv.RootCauseAnalysis, inv.ClaimType, inv.InsuranceClaim, inv.ProductResellable} {
		if s == nil || strings.TrimSpace(*s) == "" {
			return false
		}
	}
	if inv.RemainingDamageCost == nil || inv.DriverCost == nil || inv.CompanyCost == nil {
		return false
	}
	for _, a := range inv.CorrectiveActions {
		if strings.TrimSpace(a.CorrectiveAction) == "" || strings.TrimSpace(a.PICContract) == "" || a.PlanDate == nil {
			return false
		}
	}
	return true
}

// CorrectiveAction 纠正措施
type CorrectiveAction struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	InvestigationID     uint       `gorm:"not null;index" json:"investigate_id"`
	CorrectiveAction    string     `gorm:"type:text" json:"corrective_action"`
	PICContract         string     `gorm:"size:255" json:"pic_contract"`
	PlanDate            *time.Time `json:"plan_date"`
	ActionCompletedDate *time.Time `json:"action_completed_date"`
}

// TableName 指定表名
func (CorrectiveAction) TableName() string { return "case_report_corrective_actions" }

// AccidentCase 交通事故案件
type AccidentCase struct {
	ID                     uint           `gorm:"primaryKey" json:"accident_case_id"`
	DocumentNoAC           string         `gorm:"column:document_no_ac;size:50;not null;uniqueIndex" json:"document_no_ac"`
	SiteID                 uint           `gorm:"not null;index" json:"site_id"`
	DepartmentID           *uint          `gorm:"index" json:"department_id"`
	ClientID               *uint          `json:"client_id"`
	OriginID               *uint          `json:"origin_id"`
	ReporterID             *uint          `json:"reporter_id"`
	DriverID               *uint          `gorm:"index" json:"driver_id"`
	DriverRoleID           *uint          `json:"driver_role_id"`
	VehicleIDHead          *uint          `json:"vehicle_id_head"`
	VehicleIDTail          *uint          `json:"vehicle_id_tail"`
	ProvinceID             *uint          `json:"province_id"`
	DistrictID             *uint          `json:"district_id"`
	SubDistrictID          *uint          `json:"sub_district_id"`
	RecordDatetime         *time.Time     `json:"record_datetime"`
	IncidentDatetime       *time.Time     `gorm:"index" json:"incident_datetime"`
	CaseLocation           string         `gorm:"size:255" json:"case_location"`
	Destination            string         `gorm:"size:255" json:"destination"`
	PoliceStationArea      string         `gorm:"size:255" json:"police_station_area"`
	CaseDetails            string         `gorm:"type:text" json:"case_details"`
	EstimatedGoodsDamage   *float64       `gorm:"type:numeric(12,2)" json:"estimated_goods_damage"`
	EstimatedVehicleDamage *float64       `gorm:"type:numeric(12,2)" json:"estimated_vehicle_damage"`
	ActualGoodsDamage      *float64       `gorm:"type:numeric(12,2)" json:"actual_goods_damage"`
	ActualVehicleDamage    *float64       `gorm:"type:numeric(12,2)" json:"actual_vehicle_damage"`
	AlcoholTestResult      *float64       `json:"alcohol_test_result"`
	DrugTestResult         string         `gorm:"size:50" json:"drug_test_result"`
	InjuredNotHospitalized int            `gorm:"not null;default:0" json:"injured_not_hospitalized"`
	InjuredHospitalized    int            `gorm:"not null;default:0" json:"injured_hospitalized"`
	Fatalities             int            `gorm:"not null;default:0" json:"fatalities"`
	Priority               string         `gorm:"size:20;not null;index" json:"priority"`
	CaseStatus             string         `gorm:"size:50;not null;index" json:"casestatus"`
	Attachments            string         `gorm:"size:500" json:"attachments"`
	Docs                   datatypes.JSON `gorm:"type:jsonb" json:"docs" swaggertype:"array,object"`
	CreatedBy              string         `gorm:"size:50" json:"created_by"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (AccidentCase) TableName() string { return "accident_cases" }

// Damage 实际损失（货物+车辆）非零时取实际，否则取估计
func (a *AccidentCase) Damage() float64 {
	actual := deref(a.ActualGoodsDamage) + deref(a.ActualVehicleDamage)
	if actual != 0 {
		return actual
	}
	return deref(a.EstimatedGoodsDamage) + deref(a.EstimatedVehicleDamage)
}

// SubstancePositive 酒精读数大于 0 或药检阳性
func (a *AccidentCase) SubstancePositive() bool {
	if a.AlcoholTestResult != nil && *a.AlcoholTestResult > 0 {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(a.DrugTestResult), "positive")
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Models 需要迁移的模型
func Models() []any {
	return []any{&CaseReport{}, &CaseProduct{}, &Investigation{}, &CorrectiveAction{}, &AccidentCase{}}
}
