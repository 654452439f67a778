package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"incidentdesk/internal/audit"
	"incidentdesk/internal/common"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const resourceAccidentCase = "accident_case"

// AccidentInput 创建或修改事故案件；修改时空字段保持不变
type AccidentInput struct {
	SiteID                 *uint          `json:"site_id"`
	DepartmentID           *uint          `json:"department_id"`
	ClientID               *uint          `json:"client_id"`
	OriginID               *uint          `json:"origin_id"`
	ReporterID             *uint          `json:"reporter_id"`
	DriverID               *uint          `json:"driver_id"`
	DriverRoleID           *uint          `json:"driver_role_id"`
	VehicleIDHead          *uint          `json:"vehicle_id_head"`
	VehicleIDTail          *uint          `json:"vehicle_id_tail"`
	ProvinceID             *uint          `json:"province_id"`
	DistrictID             *uint          `json:"district_id"`
	SubDistrictID          *uint          `json:"sub_district_id"`
	RecordDatetime         *time.Time     `json:"record_datetime"`
	IncidentDatetime       *time.Time     `json:"incident_datetime"`
	CaseLocation           *string        `json:"case_location"`
	Destination            *string        `json:"destination"`
	PoliceStationArea      *string        `json:"police_station_area"`
	CaseDetails            *string        `json:"case_details"`
	EstimatedGoodsDamage   *float64       `json:"estimated_goods_damage"`
	EstimatedVehicleDamage *float64       `json:"estimated_vehicle_damage"`
	ActualGoodsDamage      *float64       `json:"actual_goods_damage"`
	ActualVehicleDamage    *float64       `json:"actual_vehicle_damage"`
	AlcoholTestResult      *float64       `json:"alcohol_test_result"`
	DrugTestResult         *string        `json:"drug_test_result"`
	InjuredNotHospitalized *int           `json:"injured_not_hospitalized"`
	InjuredHospitalized    *int           `json:"injured_hospitalized"`
	Fatalities             *int           `json:"fatalities"`
	CaseStatus             *string        `json:"casestatus"`
	Attachments            *string        `json:"attachments"`
	Docs                   datatypes.JSON `json:"docs,omitempty" swaggertype:"array,object"`
}

func (in *AccidentInput) validate() error {
	for _, v := range []*int{in.InjuredNotHospitalized, in.InjuredHospitalized, in.Fatalities} {
		if v != nil && *v < 0 {
			return common.ErrInvalid("Casualty counts must be >= 0")
		}
	}
	for _, v := range []*float64{in.EstimatedGoodsDamage, in.EstimatedVehicleDamage, in.ActualGoodsDamage, in.ActualVehicleDamage} {
		if v != nil && *v < 0 {
			return common.ErrInvalid("Damage must be >= 0")
		}
	}
	return nil
}

func (in *AccidentInput) apply(a *AccidentCase) {
	setPtr(&a.DepartmentID, in.DepartmentID)
	setPtr(&a.ClientID, in.ClientID)
	setPtr(&a.OriginID, in.OriginID)
	setPtr(&a.ReporterID, in.ReporterID)
	setPtr(&a.DriverID, in.DriverID)
	setPtr(&a.DriverRoleID, in.DriverRoleID)
	setPtr(&a.VehicleIDHead, in.VehicleIDHead)
	setPtr(&a.VehicleIDTail, in.VehicleIDTail)
	setPtr(&a.ProvinceID, in.ProvinceID)
	setPtr(&a.DistrictID, in.DistrictID)
	setPtr(&a.SubDistrictID, in.SubDistrictID)
	setPtr(&a.RecordDatetime, in.RecordDatetime)
	setPtr(&a.IncidentDatetime, in.IncidentDatetime)
	setPtr(&a.EstimatedGoodsDamage, in.EstimatedGoodsDamage)
	setPtr(&a.EstimatedVehicleDamage, in.EstimatedVehicleDamage)
	setPtr(&a.ActualGoodsDamage, in.ActualGoodsDamage)
	setPtr(&a.ActualVehicleDamage, in.ActualVehicleDamage)
	setPtr(&a.AlcoholTestResult, in.AlcoholTestResult)
	setValue(&a.CaseLocation, in.CaseLocation)
	setValue(&a.Destination, in.Destination)
	setValue(&a.PoliceStationArea, in.PoliceStationArea)
	setValue(&a.CaseDetails, in.CaseDetails)
	setValue(&a.DrugTestResult, in.DrugTestResult)
	setValue(&a.InjuredNotHospitalized, in.InjuredNotHospitalized)
	setValue(&a.InjuredHospitalized, in.InjuredHospitalized)
	setValue(&a.Fatalities, in.Fatalities)
	setValue(&a.CaseStatus, in.CaseStatus)
	setValue(&a.Attachments, in.Attachments)
	if in.Docs != nil {
		a.Docs = in.Docs
	}
}

// CreateAccident 创建事故案件：编号 AC-{SITE}-{YYMM}-{SEQ}，优先级由损失、药检与伤亡判定
func (s *Service) CreateAccident(ctx context.Context, in *AccidentInput, actor string) (*AccidentCase, error) {
	ctx, span := tracer.Start(ctx, "cases.CreateAccident")
	defer span.End()

	if in.SiteID == nil {
		return nil, common.ErrInvalid("site_id is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	ac := &AccidentCase{SiteID: *in.SiteID, CaseStatus: AccidentStatusOpen, CreatedBy: actor}
	in.apply(ac)
	if ac.RecordDatetime == nil {
		now := s.now()
		ac.RecordDatetime = &now
	}
	priority, err := s.classifier.ForAccident(ac)
	if err != nil {
		return nil, err
	}
	ac.Priority = priority

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		docNo, err := s.seq.CaseNo(ctx, tx, PrefixAccidentCase, int(ac.SiteID), s.now())
		if err != nil {
			return err
		}
		ac.DocumentNoAC = docNo
		if err := tx.Create(ac).Error; err != nil {
			return err
		}
		return s.record(ctx, tx, actor, audit.ActionCreate, resourceAccidentCase, docNo,
			map[string]any{"priority": ac.Priority, "site_id": ac.SiteID})
	})
	if err != nil {
		return nil, wrapErr("创建事故案件失败", err)
	}

	span.SetAttributes(attribute.String("case.document_no", ac.DocumentNoAC), attribute.String("case.priority", ac.Priority))
	s.logger.Info("事故案件已创建",
		zap.String("document_no_ac", ac.DocumentNoAC),
		zap.String("priority", ac.Priority),
		zap.String("created_by", actor),
	)
	return ac, nil
}

// GetAccident 按编号获取事故案件
func (s *Service) GetAccident(ctx context.Context, documentNo string) (*AccidentCase, error) {
	var ac AccidentCase
	err := s.DB.WithContext(ctx).Where("document_no_ac = ?", documentNo).First(&ac).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccidentCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询事故案件失败: %w", err)
	}
	return &ac, nil
}

// ListAccidents 分页查询事故案件，日期范围按事发时间
func (s *Service) ListAccidents(ctx context.Context, f Filter) ([]AccidentCase, int64, error) {
	query := s.applyFilter(s.DB.Model(&AccidentCase{}), &f, "incident_datetime")

	var items []AccidentCase
	total, err := s.FindPage(ctx, query.Order("id DESC"), f.PaginationRequest, &items)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateAccident 修改事故案件并重新判定优先级
func (s *Service) UpdateAccident(ctx context.Context, documentNo string, in *AccidentInput, actor string) (*AccidentCase, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.SiteID != nil {
		return nil, common.ErrInvalid("site_id cannot be changed")
	}

	var ac AccidentCase
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("document_no_ac = ?", documentNo).First(&ac).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccidentCaseNotFound
			}
			return err
		}
		in.apply(&ac)
		priority, err := s.classifier.ForAccident(&ac)
		if err != nil {
			return err
		}
		ac.Priority = priority
		if err := tx.Save(&ac).Error; err != nil {
			return err
		}
		return s.record(ctx, tx, actor, audit.ActionUpdate, resourceAccidentCase, documentNo,
			map[string]any{"priority": ac.Priority, "casestatus": ac.CaseStatus})
	})
	if err != nil {
		return nil, wrapErr("修改事故案件失败", err)
	}
	return &ac, nil
}

// DeleteAccident 删除事故案件
func (s *Service) DeleteAccident(ctx context.Context, documentNo, actor string) error {
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("document_no_ac = ?", documentNo).Delete(&AccidentCase{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccidentCaseNotFound
		}
		return s.record(ctx, tx, actor, audit.ActionDelete, resourceAccidentCase, documentNo, nil)
	})
	return wrapErr("删除事故案件失败", err)
}
