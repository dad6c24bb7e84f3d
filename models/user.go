package models

import (
	"net/url"
	"strings"
)

// Role 用户角色
// 角色集合是封闭的，无法识别的角色一律视为RoleUnknown
type Role string

const (
	RoleManager         Role = "manager"          // 经理，可见全部数据
	RoleTeamLeader      Role = "team-leader"      // 组长，可见本组数据
	RoleSalesman        Role = "salesman"         // 销售员，仅可见自己的数据
	RoleCustomerService Role = "customer-service" // 客服，仅可见自己的数据
	RoleUnknown         Role = ""                 // 未识别的角色
)

// ParseRole 将各数据源中的角色写法统一为规范角色
func ParseRole(raw string) Role {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	switch key {
	case "manager", "admin-manager", "sales-manager":
		return RoleManager
	case "team-leader", "teamleader", "leader", "tl":
		return RoleTeamLeader
	case "salesman", "salesperson", "sales", "sales-agent", "agent":
		return RoleSalesman
	case "customer-service", "customerservice", "cs", "support":
		return RoleCustomerService
	}
	return RoleUnknown
}

// User 用户
// 对看板核心只读，用作通知接收人校验和记录补全的参考数据
type User struct {
	ID     string `json:"id" gorm:"primaryKey;size:64"` // 用户ID
	Name   string `json:"name" gorm:"size:100"`         // 姓名
	Role   Role   `json:"role" gorm:"size:32"`          // 角色
	TeamID string `json:"teamId" gorm:"size:64;index"`  // 所属团队
}

// TableName 返回表名
func (User) TableName() string {
	return "users"
}

// Requester 请求者身份
// 由认证中间件从JWT或兼容参数中解析
type Requester struct {
	Role   Role   `json:"role"`
	UserID string `json:"userId"`
	TeamID string `json:"teamId"`
}

// Key 返回请求者的缓存键片段
// 各部分转义后以:连接，含:的id不会与其它请求者冲突
func (r Requester) Key() string {
	return url.QueryEscape(string(r.Role)) + ":" + url.QueryEscape(r.UserID) + ":" + url.QueryEscape(r.TeamID)
}

// CanManage 是否具备管理权限（创建目标、发送通知）
func (r Requester) CanManage() bool {
	return r.Role == RoleManager || r.Role == RoleTeamLeader
}
