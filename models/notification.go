package models

import (
	"strings"
	"time"
)

// RecipientsAll 接收人哨兵值，表示全部用户
const RecipientsAll = "ALL"

// Notification 通知
type Notification struct {
	ID         string    `json:"id" gorm:"primaryKey;size:64"`                 // 主键ID
	Title      string    `json:"title" gorm:"size:200"`                        // 标题
	Message    string    `json:"message" gorm:"type:text"`                     // 正文
	Recipients []string  `json:"recipients" gorm:"serializer:json;type:text"`  // 接收人ID集合或ALL
	Type       string    `json:"type" gorm:"size:32"`                          // 类型
	Priority   string    `json:"priority" gorm:"size:16;default:normal"`       // 优先级
	Read       bool      `json:"read" gorm:"default:false"`                    // 是否已读
	Timestamp  time.Time `json:"timestamp" gorm:"autoCreateTime"`              // 发送时间
}

// TableName 返回表名
func (Notification) TableName() string {
	return "notifications"
}

// IsBroadcast 是否发送给全部用户
func (n Notification) IsBroadcast() bool {
	for _, r := range n.Recipients {
		if strings.EqualFold(r, RecipientsAll) {
			return true
		}
	}
	return false
}

// HasRecipient 判断用户是否为接收人
func (n Notification) HasRecipient(userID string) bool {
	if userID == "" {
		return false
	}
	for _, r := range n.Recipients {
		if r == userID {
			return true
		}
	}
	return false
}
