package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TargetStatus 目标完成度档位
type TargetStatus string

const (
	TargetBehind   TargetStatus = "behind"   // 落后
	TargetOnTrack  TargetStatus = "on-track" // 正常
	TargetExceeded TargetStatus = "exceeded" // 超额
)

// PeriodLayout 目标周期格式（年-月）
const PeriodLayout = "2006-01"

// Target 业绩目标
// CurrentSales和CurrentDeals只能由目标进度引擎在记录成交时累加
type Target struct {
	ID            string          `json:"id" gorm:"primaryKey;size:64"`                      // 主键ID
	AgentID       string          `json:"agentId" gorm:"size:64;index:idx_target_period"`    // 销售员ID
	AgentName     string          `json:"agentName" gorm:"size:100"`                         // 销售员姓名
	ManagerID     string          `json:"managerId" gorm:"size:64;index"`                    // 设定目标的经理ID
	MonthlyTarget decimal.Decimal `json:"monthlyTarget" gorm:"type:decimal(20,4);default:0"` // 月销售额目标
	DealsTarget   int             `json:"dealsTarget" gorm:"default:0"`                      // 月成交数目标
	Period        string          `json:"period" gorm:"size:7;index:idx_target_period"`      // 周期 YYYY-MM
	CurrentSales  decimal.Decimal `json:"currentSales" gorm:"type:decimal(20,4);default:0"`  // 当前销售额
	CurrentDeals  int             `json:"currentDeals" gorm:"default:0"`                     // 当前成交数
	Status        TargetStatus    `json:"status" gorm:"size:20;default:behind"`              // 完成度档位
	SalesProgress float64         `json:"salesProgress" gorm:"-"`                            // 销售额完成百分比
	DealsProgress float64         `json:"dealsProgress" gorm:"-"`                            // 成交数完成百分比
	CreatedAt     time.Time       `json:"createdAt" gorm:"autoCreateTime"`                   // 创建时间
	UpdatedAt     time.Time       `json:"updatedAt" gorm:"autoUpdateTime"`                   // 更新时间
}

// TableName 返回表名
func (Target) TableName() string {
	return "targets"
}

// PeriodRange 返回目标周期的起止时间，周期格式不合法时ok为false
func (t Target) PeriodRange() (start, end time.Time, ok bool) {
	start, err := time.Parse(PeriodLayout, t.Period)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, start.AddDate(0, 1, 0).Add(-time.Nanosecond), true
}
