package sequence

import "time"

// Counter 单据编号计数行，(scope, period) 唯一
type Counter struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Scope     string    `gorm:"size:50;not null;uniqueIndex:uk_sequence_scope_period" json:"scope"`
	Period    string    `gorm:"size:10;not null;uniqueIndex:uk_sequence_scope_period" json:"period"`
	Value     int64     `gorm:"not null;default:0" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Counter) TableName() string {
	return "sequence_counters"
}
