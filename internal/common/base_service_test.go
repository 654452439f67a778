package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// caseRow 测试用的案件模型
type caseRow struct {
	ID           uint   `gorm:"primaryKey"`
	DocumentNo   string `gorm:"size:50;uniqueIndex"`
	SiteID       int
	Casestatus   string `gorm:"size:50"`
	Priority     string `gorm:"size:20"`
	IncidentDate time.Time
}

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&caseRow{}))
	return db
}

func seedTestData(t *testing.T, db *gorm.DB) {
	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }
	rows := []caseRow{
		{DocumentNo: "NC-LB-2501-001", SiteID: 2, Casestatus: "Pending", Priority: "Minor", IncidentDate: day(3)},
		{DocumentNo: "NC-LB-2501-002", SiteID: 5, Casestatus: "Pending", Priority: "Crisis", IncidentDate: day(10)},
		{DocumentNo: "NC-SB-2501-001", SiteID: 3, Casestatus: "Completed Investigate", Priority: "Major", IncidentDate: day(15)},
		{DocumentNo: "NC-BP-2501-001", SiteID: 6, Casestatus: "Pending", Priority: "Minor", IncidentDate: day(20)},
	}
	require.NoError(t, db.Create(&rows).Error)
}

func TestApplyEqualFilter(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)
	site := 3

	tests := []struct {
		name        string
		column      string
		value       any
		expectCount int64
	}{
		{"按状态过滤", "casestatus", "Pending", 3},
		{"空字符串不过滤", "casestatus", "", 4},
		{"指针值过滤", "site_id", &site, 1},
		{"空指针不过滤", "site_id", (*int)(nil), 4},
		{"nil 不过滤", "priority", nil, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var count int64
			err := service.ApplyEqualFilter(db.Model(&caseRow{}), tt.column, tt.value).Count(&count).Error
			assert.NoError(t, err)
			assert.Equal(t, tt.expectCount, count)
		})
	}
}

func TestApplyDateRangeFilter(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)

	tests := []struct {
		name        string
		dateRange   *DateRange
		expectCount int64
	}{
		{"不设置范围", nil, 4},
		{"只设置开始", &DateRange{Start: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)}, 3},
		{"闭区间", &DateRange{Start: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var count int64
			err := service.ApplyDateRangeFilter(db.Model(&caseRow{}), "incident_date", tt.dateRange).Count(&count).Error
			assert.NoError(t, err)
			assert.Equal(t, tt.expectCount, count)
		})
	}
}

func TestApplySorting(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)
	allowed := []string{"document_no", "incident_date"}

	var rows []caseRow
	require.NoError(t, service.ApplySorting(db.Model(&caseRow{}), "document_no", "asc", allowed, "id DESC").Find(&rows).Error)
	assert.Equal(t, "NC-BP-2501-001", rows[0].DocumentNo)

	rows = nil
	require.NoError(t, service.ApplySorting(db.Model(&caseRow{}), "priority; DROP TABLE", "asc", allowed, "incident_date DESC").Find(&rows).Error)
	assert.Equal(t, "NC-BP-2501-001", rows[0].DocumentNo, "非白名单字段回退默认排序")
}

func TestFindPage(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)
	ctx := context.Background()

	var rows []caseRow
	total, err := service.FindPage(ctx, db.Model(&caseRow{}).Order("id"), PaginationRequest{Page: 2, PageSize: 3}, &rows)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, rows, 1)

	rows = nil
	total, err = service.FindPage(ctx, db.Model(&caseRow{}).Where("site_id = ?", 99), DefaultPagination(), &rows)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rows)
}

func TestTransaction(t *testing.T) {
	db := setupTestDB(t)
	service := NewBaseService(db)
	ctx := context.Background()

	t.Run("成功提交", func(t *testing.T) {
		err := service.Transaction(ctx, func(tx *gorm.DB) error {
			return tx.Create(&caseRow{DocumentNo: "AC-LB-2501-001"}).Error
		})
		require.NoError(t, err)

		exists, err := service.Exists(ctx, &caseRow{}, "document_no = ?", "AC-LB-2501-001")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("失败回滚", func(t *testing.T) {
		boom := errors.New("boom")
		err := service.Transaction(ctx, func(tx *gorm.DB) error {
			if err := tx.Create(&caseRow{DocumentNo: "AC-LB-2501-002"}).Error; err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		exists, err := service.Exists(ctx, &caseRow{}, "document_no = ?", "AC-LB-2501-002")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("唯一冲突转换为409", func(t *testing.T) {
		err := service.Transaction(ctx, func(tx *gorm.DB) error {
			return tx.Create(&caseRow{DocumentNo: "AC-LB-2501-001"}).Error
		})
		be, ok := AsBusinessError(err)
		require.True(t, ok)
		assert.Equal(t, CodeConflict, be.Code)
		assert.Equal(t, 409, HTTPStatus(be.Code))
	})
}

func TestPaginationRequest(t *testing.T) {
	assert.Equal(t, 20, PaginationRequest{}.GetPageSize())
	assert.Equal(t, 100, PaginationRequest{PageSize: 500}.GetPageSize())
	assert.Equal(t, 40, PaginationRequest{Page: 3, PageSize: 20}.GetOffset())
	assert.Equal(t, 0, PaginationRequest{Page: -1}.GetOffset())

	meta := NewPaginationMeta(1, 20, 41)
	assert.Equal(t, 3, meta.TotalPages)
}
