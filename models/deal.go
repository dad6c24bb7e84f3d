package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DealStatus 成交状态
type DealStatus string

const (
	DealPending   DealStatus = "pending"   // 待处理
	DealActive    DealStatus = "active"    // 生效中
	DealClosed    DealStatus = "closed"    // 已完成
	DealCancelled DealStatus = "cancelled" // 已取消
)

// ParseDealStatus 统一各数据源的成交状态写法，无法识别时视为pending
func ParseDealStatus(raw string) DealStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "in-progress", "in_progress", "ongoing", "live":
		return DealActive
	case "closed", "completed", "complete", "won", "done":
		return DealClosed
	case "cancelled", "canceled", "lost", "void":
		return DealCancelled
	}
	return DealPending
}

// Deal 成交记录
// 对应关系库中的deals表，金额使用decimal避免精度丢失
type Deal struct {
	ID             string          `json:"id" gorm:"primaryKey;size:64"`                   // 主键ID
	DealRef        string          `json:"dealRef" gorm:"size:64;index"`                   // 成交编号
	CustomerName   string          `json:"customerName" gorm:"size:100"`                   // 客户姓名
	AmountPaid     decimal.Decimal `json:"amountPaid" gorm:"type:decimal(20,4);default:0"` // 实付金额，不小于0
	SalesAgentID   string          `json:"salesAgentId" gorm:"size:64;index;not null"`     // 销售员ID，必填
	SalesAgentName string          `json:"salesAgentName" gorm:"size:100"`                 // 销售员姓名
	ClosingAgentID string          `json:"closingAgentId" gorm:"size:64;index"`            // 成交员ID
	SalesTeam      string          `json:"salesTeam" gorm:"size:64;index"`                 // 所属团队
	ServiceTier    string          `json:"serviceTier" gorm:"size:50"`                     // 服务套餐
	Status         DealStatus      `json:"status" gorm:"size:20;default:pending"`          // 状态
	SignupDate     time.Time       `json:"signupDate"`                                     // 签约日期
	CreatedAt      time.Time       `json:"createdAt" gorm:"autoCreateTime"`                // 创建时间
}

// TableName 返回表名
func (Deal) TableName() string {
	return "deals"
}

// EffectiveDate 返回用于日期范围筛选的日期，优先签约日期
func (d Deal) EffectiveDate() time.Time {
	if !d.SignupDate.IsZero() {
		return d.SignupDate
	}
	return d.CreatedAt
}
