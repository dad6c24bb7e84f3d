// Package rolefilter 按请求者角色和团队归属过滤记录
// 过滤是确定性的，保持输入顺序；未识别的角色一律得到空集
package rolefilter

import (
	"sales_dashboard/models"
)

// Deals 过滤成交记录
//   - manager: 全部
//   - team-leader: salesTeam等于本组，或salesAgentId为本人
//   - salesman / customer-service: salesAgentId或closingAgentId为本人
func Deals(records []models.Deal, req models.Requester) []models.Deal {
	return keep(records, func(d models.Deal) bool {
		return visible(req, d.SalesTeam, d.SalesAgentID, d.ClosingAgentID)
	})
}

// Callbacks 过滤回访记录，规则与成交记录相同（回访没有成交员字段）
func Callbacks(records []models.Callback, req models.Requester) []models.Callback {
	return keep(records, func(c models.Callback) bool {
		return visible(req, c.SalesTeam, c.SalesAgentID, "")
	})
}

// Targets 过滤业绩目标
//   - manager: 全部
//   - team-leader: 自己设定的目标或自己的目标
//   - salesman / customer-service: 自己的目标
func Targets(records []models.Target, req models.Requester) []models.Target {
	return keep(records, func(t models.Target) bool {
		switch req.Role {
		case models.RoleManager:
			return true
		case models.RoleTeamLeader:
			return sameUser(req, t.ManagerID) || sameUser(req, t.AgentID)
		case models.RoleSalesman, models.RoleCustomerService:
			return sameUser(req, t.AgentID)
		}
		return false
	})
}

// Notifications 过滤通知
// manager可见全部；其他角色可见接收人包含ALL或本人的通知
func Notifications(records []models.Notification, req models.Requester) []models.Notification {
	return keep(records, func(n models.Notification) bool {
		switch req.Role {
		case models.RoleManager:
			return true
		case models.RoleTeamLeader, models.RoleSalesman, models.RoleCustomerService:
			return n.IsBroadcast() || n.HasRecipient(req.UserID)
		}
		return false
	})
}

// Users 过滤用户参考数据
func Users(records []models.User, req models.Requester) []models.User {
	return keep(records, func(u models.User) bool {
		switch req.Role {
		case models.RoleManager:
			return true
		case models.RoleTeamLeader:
			return sameTeam(req, u.TeamID) || sameUser(req, u.ID)
		case models.RoleSalesman, models.RoleCustomerService:
			return sameUser(req, u.ID)
		}
		return false
	})
}

// visible 成交和回访共用的可见性规则
func visible(req models.Requester, team, agentID, closingAgentID string) bool {
	switch req.Role {
	case models.RoleManager:
		return true
	case models.RoleTeamLeader:
		return sameTeam(req, team) || sameUser(req, agentID)
	case models.RoleSalesman, models.RoleCustomerService:
		return sameUser(req, agentID) || sameUser(req, closingAgentID)
	}
	return false
}

// sameUser 空ID永远不匹配，避免空值之间误判为同一人
func sameUser(req models.Requester, id string) bool {
	return req.UserID != "" && req.UserID == id
}

// sameTeam 空团队永远不匹配
func sameTeam(req models.Requester, team string) bool {
	return req.TeamID != "" && req.TeamID == team
}

// keep 保序过滤，返回新切片，不修改输入
func keep[T any](records []T, pred func(T) bool) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	return out
}
