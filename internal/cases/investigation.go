package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"incidentdesk/internal/audit"
	"incidentdesk/internal/common"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CorrectiveActionInput 纠正措施
type CorrectiveActionInput struct {
	CorrectiveAction    string     `json:"corrective_action"`
	PICContract         string     `json:"pic_contract"`
	PlanDate            *time.Time `json:"plan_date"`
	ActionCompletedDate *time.Time `json:"action_completed_date"`
}

// InvestigationInput 创建或更新调查；纠正措施整体替换
type InvestigationInput struct {
	RootCauseAnalysis   *string                 `json:"root_cause_analysis"`
	ClaimType           *string                 `json:"claim_type"`
	InsuranceClaim      *string                 `json:"insurance_claim"`
	ProductResellable   *string                 `json:"product_resellable"`
	RemainingDamageCost *float64                `json:"remaining_damage_cost"`
	DriverCost          *float64                `json:"driver_cost"`
	CompanyCost         *float64                `json:"company_cost"`
	CorrectiveActions   []CorrectiveActionInput `json:"corrective_actions"`
}

func (in *InvestigationInput) apply(inv *Investigation) {
	setPtr(&inv.RootCauseAnalysis, in.RootCauseAnalysis)
	setPtr(&inv.ClaimType, in.ClaimType)
	setPtr(&inv.InsuranceClaim, in.InsuranceClaim)
	setPtr(&inv.ProductResellable, in.ProductResellable)
	setPtr(&inv.RemainingDamageCost, in.RemainingDamageCost)
	setPtr(&inv.DriverCost, in.DriverCost)
	setPtr(&inv.CompanyCost, in.CompanyCost)
}

// UpsertInvestigation 创建或更新报告的调查；调查完整时报告状态变为 Completed Investigate
func (s *Service) UpsertInvestigation(ctx context.Context, documentNo string, in *InvestigationInput, actor string) (*Investigation, error) {
	ctx, span := tracer.Start(ctx, "cases.UpsertInvestigation")
	defer span.End()

	var (
		inv       Investigation
		completed bool
	)
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var report CaseReport
		if err := tx.Where("document_no = ?", documentNo).First(&report).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCaseReportNotFound
			}
			return err
		}

		action := audit.ActionUpdate
		err := tx.Where("document_no = ?", documentNo).First(&inv).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			action = audit.ActionCreate
			inv = Investigation{DocumentNo: documentNo}
		case err != nil:
			return err
		}
		in.apply(&inv)
		inv.UpdatedBy = actor
		if err := tx.Omit("CorrectiveActions").Save(&inv).Error; err != nil {
			return err
		}

		if err := tx.Where("investigation_id = ?", inv.ID).Delete(&CorrectiveAction{}).Error; err != nil {
			return err
		}
		inv.CorrectiveActions = make([]CorrectiveAction, 0, len(in.CorrectiveActions))
		for _, a := range in.CorrectiveActions {
			inv.CorrectiveActions = append(inv.CorrectiveActions, CorrectiveAction{
				InvestigationID:     inv.ID,
				CorrectiveAction:    a.CorrectiveAction,
				PICContract:         a.PICContract,
				PlanDate:            a.PlanDate,
				ActionCompletedDate: a.ActionCompletedDate,
			})
		}
		if len(inv.CorrectiveActions) > 0 {
			if err := tx.Create(&inv.CorrectiveActions).Error; err != nil {
				return err
			}
		}

		if inv.Complete() && report.CaseStatus != CaseStatusCompletedInvestigate {
			if err := tx.Model(&CaseReport{}).Where("id = ?", report.ID).
				Update("casestatus", CaseStatusCompletedInvestigate).Error; err != nil {
				return err
			}
			completed = true
		}
		return s.record(ctx, tx, actor, action, "case_report_investigation", documentNo,
			map[string]any{"corrective_actions": len(inv.CorrectiveActions), "complete": inv.Complete()})
	})
	if err != nil {
		return nil, wrapErr("保存事件调查失败", err)
	}

	if completed {
		s.logger.Info("事件调查已完成", zap.String("document_no", documentNo), zap.String("actor", actor))
	}
	return &inv, nil
}

// GetInvestigation 获取报告的调查
func (s *Service) GetInvestigation(ctx context.Context, documentNo string) (*Investigation, error) {
	var inv Investigation
	err := s.DB.WithContext(ctx).Where("document_no = ?", documentNo).
		Preload("CorrectiveActions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvestigationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询事件调查失败: %w", err)
	}
	return &inv, nil
}

// ListInvestigations 分页查询调查
func (s *Service) ListInvestigations(ctx context.Context, req common.PaginationRequest) ([]Investigation, int64, error) {
	var items []Investigation
	query := s.DB.Model(&Investigation{}).Preload("CorrectiveActions").Order("id DESC")
	total, err := s.FindPage(ctx, query, req, &items)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
