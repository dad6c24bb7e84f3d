package models

import (
	"strings"
	"time"
)

// CallbackStatus 回访状态
type CallbackStatus string

const (
	CallbackPending   CallbackStatus = "pending"   // 待回访
	CallbackContacted CallbackStatus = "contacted" // 已联系
	CallbackCompleted CallbackStatus = "completed" // 已完成
	CallbackCancelled CallbackStatus = "cancelled" // 已取消
)

// callbackOrder 回访状态的前进顺序，cancelled不参与排序
var callbackOrder = map[CallbackStatus]int{
	CallbackPending:   0,
	CallbackContacted: 1,
	CallbackCompleted: 2,
}

// ParseCallbackStatus 统一回访状态写法，无法识别时视为pending
func ParseCallbackStatus(raw string) CallbackStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "contacted", "called", "reached", "in-progress":
		return CallbackContacted
	case "completed", "complete", "done", "converted", "closed":
		return CallbackCompleted
	case "cancelled", "canceled", "void":
		return CallbackCancelled
	}
	return CallbackPending
}

// IsValidCallbackStatus 判断是否为规范回访状态
func IsValidCallbackStatus(s CallbackStatus) bool {
	if s == CallbackCancelled {
		return true
	}
	_, ok := callbackOrder[s]
	return ok
}

// CanTransition 判断回访状态能否从from流转到to
// 只能向前流转；除已取消外任何状态都可以取消；相同状态视为幂等
func CanTransition(from, to CallbackStatus) bool {
	if !IsValidCallbackStatus(to) {
		return false
	}
	if from == to {
		return true
	}
	if from == CallbackCancelled {
		return false
	}
	if to == CallbackCancelled {
		return true
	}
	return callbackOrder[to] > callbackOrder[from]
}

// Contact 客户联系方式
type Contact struct {
	Phone string `json:"phone" gorm:"size:30"`  // 电话
	Email string `json:"email" gorm:"size:100"` // 邮箱
}

// Callback 回访记录
type Callback struct {
	ID            string         `json:"id" gorm:"primaryKey;size:64"`          // 主键ID
	CustomerName  string         `json:"customerName" gorm:"size:100"`          // 客户姓名
	Contact       Contact        `json:"contact" gorm:"embedded"`               // 联系方式
	SalesAgentID  string         `json:"salesAgentId" gorm:"size:64;index"`     // 负责销售员ID
	SalesTeam     string         `json:"salesTeam" gorm:"size:64;index"`        // 所属团队
	FirstCallDate time.Time      `json:"firstCallDate"`                         // 首次回访日期
	FirstCallTime string         `json:"firstCallTime" gorm:"size:10"`          // 首次回访时间 HH:MM
	Reason        string         `json:"reason" gorm:"size:255"`                // 回访原因
	Notes         string         `json:"notes" gorm:"type:text"`                // 备注
	Status        CallbackStatus `json:"status" gorm:"size:20;default:pending"` // 状态
	CreatedByID   string         `json:"createdById" gorm:"size:64"`            // 创建人ID
	CreatedAt     time.Time      `json:"createdAt" gorm:"autoCreateTime"`       // 创建时间
}

// TableName 返回表名
func (Callback) TableName() string {
	return "callbacks"
}

// EffectiveDate 返回用于日期范围筛选的日期，优先首次回访日期
func (c Callback) EffectiveDate() time.Time {
	if !c.FirstCallDate.IsZero() {
		return c.FirstCallDate
	}
	return c.CreatedAt
}
