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

const resourceCaseReport = "case_report"

// ProductInput 货品
type ProductInput struct {
	ProductName string `json:"product_name" binding:"required"`
	Amount      int    `json:"amount"`
	Unit        string `json:"unit"`
}

// CaseReportInput 创建或修改事件报告；修改时空字段保持不变，products 非空时整体替换
type CaseReportInput struct {
	SiteID          *uint          `json:"site_id"`
	DepartmentID    *uint          `json:"department_id"`
	ClientID        *uint          `json:"client_id"`
	DriverID        *uint          `json:"driver_id"`
	ReporterID      *uint          `json:"reporter_id"`
	DriverRoleID    *uint          `json:"driver_role_id"`
	OriginID        *uint          `json:"origin_id"`
	VehicleIDHead   *uint          `json:"vehicle_id_head"`
	VehicleIDTail   *uint          `json:"vehicle_id_tail"`
	VehicleTruckNo  *string        `json:"vehicle_truckno"`
	IncidentCauseID *uint          `json:"incident_cause_id"`
	RecordDate      *time.Time     `json:"record_date"`
	IncidentDate    *time.Time     `json:"incident_date"`
	CaseLocation    *string        `json:"case_location"`
	Destination     *string        `json:"destination"`
	CaseDetails     *string        `json:"case_details"`
	EstimatedCost   *float64       `json:"estimated_cost"`
	ActualPrice     *float64       `json:"actual_price"`
	Attachments     *string        `json:"attachments"`
	CaseStatus      *string        `json:"casestatus"`
	Docs            datatypes.JSON `json:"docs,omitempty" swaggertype:"array,object"`
	Products        []ProductInput `json:"products"`
}

func (in *CaseReportInput) validate() error {
	for _, p := range in.Products {
		if p.Amount < 0 {
			return common.ErrInvalid("Amount must be >= 0")
		}
	}
	for _, v := range []*float64{in.EstimatedCost, in.ActualPrice} {
		if v != nil && *v < 0 {
			return common.ErrInvalid("Cost must be >= 0")
		}
	}
	return nil
}

func (in *CaseReportInput) apply(r *CaseReport) {
	setPtr(&r.DepartmentID, in.DepartmentID)
	setPtr(&r.ClientID, in.ClientID)
	setPtr(&r.DriverID, in.DriverID)
	setPtr(&r.ReporterID, in.ReporterID)
	setPtr(&r.DriverRoleID, in.DriverRoleID)
	setPtr(&r.OriginID, in.OriginID)
	setPtr(&r.VehicleIDHead, in.VehicleIDHead)
	setPtr(&r.VehicleIDTail, in.VehicleIDTail)
	setPtr(&r.IncidentCauseID, in.IncidentCauseID)
	setPtr(&r.RecordDate, in.RecordDate)
	setPtr(&r.IncidentDate, in.IncidentDate)
	setPtr(&r.EstimatedCost, in.EstimatedCost)
	setPtr(&r.ActualPrice, in.ActualPrice)
	setValue(&r.VehicleTruckNo, in.VehicleTruckNo)
	setValue(&r.CaseLocation, in.CaseLocation)
	setValue(&r.Destination, in.Destination)
	setValue(&r.CaseDetails, in.CaseDetails)
	setValue(&r.Attachments, in.Attachments)
	setValue(&r.CaseStatus, in.CaseStatus)
	if in.Docs != nil {
		r.Docs = in.Docs
	}
}

func productsOf(caseID uint, in []ProductInput) []CaseProduct {
	products := make([]CaseProduct, 0, len(in))
	for _, p := range in {
		products = append(products, CaseProduct{CaseID: caseID, ProductName: p.ProductName, Amount: p.Amount, Unit: p.Unit})
	}
	return products
}

// CreateReport 创建事件报告：按站点分配编号 NC-{SITE}-{YYMM}-{SEQ}，优先级由损失金额判定
func (s *Service) CreateReport(ctx context.Context, in *CaseReportInput, actor string) (*CaseReport, error) {
	ctx, span := tracer.Start(ctx, "cases.CreateReport")
	defer span.End()

	if in.SiteID == nil {
		return nil, common.ErrInvalid("site_id is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	report := &CaseReport{SiteID: *in.SiteID, CaseStatus: CaseStatusPending, CreatedBy: actor}
	in.apply(report)
	if report.RecordDate == nil {
		now := s.now()
		report.RecordDate = &now
	}
	priority, err := s.classifier.ForReport(report)
	if err != nil {
		return nil, err
	}
	report.Priority = priority

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		docNo, err := s.seq.CaseNo(ctx, tx, PrefixCaseReport, int(report.SiteID), s.now())
		if err != nil {
			return err
		}
		report.DocumentNo = docNo
		report.Products = productsOf(0, in.Products)
		if err := tx.Create(report).Error; err != nil {
			return err
		}
		return s.record(ctx, tx, actor, audit.ActionCreate, resourceCaseReport, docNo,
			map[string]any{"priority": report.Priority, "site_id": report.SiteID})
	})
	if err != nil {
		return nil, wrapErr("创建事件报告失败", err)
	}

	span.SetAttributes(attribute.String("case.document_no", report.DocumentNo), attribute.String("case.priority", report.Priority))
	s.logger.Info("事件报告已创建",
		zap.String("document_no", report.DocumentNo),
		zap.String("priority", report.Priority),
		zap.String("created_by", actor),
	)
	return report, nil
}

// GetReport 按编号获取报告及货品、调查
func (s *Service) GetReport(ctx context.Context, documentNo string) (*CaseReport, error) {
	var report CaseReport
	err := s.DB.WithContext(ctx).Where("document_no = ?", documentNo).
		Preload("Products", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Investigation").
		Preload("Investigation.CorrectiveActions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCaseReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询事件报告失败: %w", err)
	}
	return &report, nil
}

// ListReports 分页查询报告，日期范围按事发日期
func (s *Service) ListReports(ctx context.Context, f Filter) ([]CaseReport, int64, error) {
	query := s.applyFilter(s.DB.Model(&CaseReport{}), &f, "incident_date")

	var reports []CaseReport
	total, err := s.FindPage(ctx, query.Preload("Products").Order("id DESC"), f.PaginationRequest, &reports)
	if err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// UpdateReport 修改报告并重新判定优先级
func (s *Service) UpdateReport(ctx context.Context, documentNo string, in *CaseReportInput, actor string) (*CaseReport, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.SiteID != nil {
		return nil, common.ErrInvalid("site_id cannot be changed")
	}

	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var report CaseReport
		if err := tx.Where("document_no = ?", documentNo).First(&report).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCaseReportNotFound
			}
			return err
		}
		in.apply(&report)
		priority, err := s.classifier.ForReport(&report)
		if err != nil {
			return err
		}
		report.Priority = priority

		if err := tx.Omit("Products", "Investigation").Save(&report).Error; err != nil {
			return err
		}
		if in.Products != nil {
			if err := tx.Where("case_id = ?", report.ID).Delete(&CaseProduct{}).Error; err != nil {
				return err
			}
			if products := productsOf(report.ID, in.Products); len(products) > 0 {
				if err := tx.Create(&products).Error; err != nil {
					return err
				}
			}
		}
		return s.record(ctx, tx, actor, audit.ActionUpdate, resourceCaseReport, documentNo,
			map[string]any{"priority": report.Priority, "casestatus": report.CaseStatus})
	})
	if err != nil {
		return nil, wrapErr("修改事件报告失败", err)
	}
	return s.GetReport(ctx, documentNo)
}

// DeleteReport 删除报告及其货品、调查与纠正措施
func (s *Service) DeleteReport(ctx context.Context, documentNo, actor string) error {
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var report CaseReport
		if err := tx.Where("document_no = ?", documentNo).First(&report).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCaseReportNotFound
			}
			return err
		}
		if err := tx.Where("investigation_id IN (?)",
			tx.Model(&Investigation{}).Select("id").Where("document_no = ?", documentNo)).
			Delete(&CorrectiveAction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_no = ?", documentNo).Delete(&Investigation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("case_id = ?", report.ID).Delete(&CaseProduct{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&report).Error; err != nil {
			return err
		}
		return s.record(ctx, tx, actor, audit.ActionDelete, resourceCaseReport, documentNo, nil)
	})
	if err != nil {
		return wrapErr("删除事件报告失败", err)
	}
	s.logger.Info("事件报告已删除", zap.String("document_no", documentNo), zap.String("actor", actor))
	return nil
}

func setPtr[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
