// Package normalizer 将各数据源的原始记录统一为规范结构
// 每个实体类型有一张字段优先级表：按顺序查找，第一个非空值生效
// 规范化是纯函数，不产生任何副作用
package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"sales_dashboard/models"
	"sales_dashboard/targets"
)

// ErrDropped 记录缺少身份字段，被丢弃
// 调用方只统计数量，不作为用户可见的错误
var ErrDropped = errors.New("记录缺少必填字段，已丢弃")

// fieldTable 规范字段 → 数据源字段名优先级列表
type fieldTable map[string][]string

// dealFields 成交记录字段映射
var dealFields = fieldTable{
	"id":             {"id", "_id", "dealId", "deal_id"},
	"dealRef":        {"dealRef", "deal_ref", "dealNumber", "deal_number", "reference", "ref"},
	"customerName":   {"customerName", "customer_name", "customer", "clientName", "client_name"},
	"amountPaid":     {"amount", "amountPaid", "amount_paid", "paidAmount", "totalAmount", "total_amount"},
	"salesAgentId":   {"salesAgentId", "sales_agent_id", "salesAgent", "agentId", "agent_id", "userId", "user_id"},
	"salesAgentName": {"salesAgentName", "sales_agent_name", "agentName", "agent_name"},
	"closingAgentId": {"closingAgentId", "closing_agent_id", "closingAgent", "closerId", "closer_id"},
	"salesTeam":      {"salesTeam", "sales_team", "team", "teamId", "team_id"},
	"serviceTier":    {"serviceTier", "service_tier", "tier", "package", "plan"},
	"status":         {"status", "dealStatus", "deal_status", "stage"},
	"signupDate":     {"signupDate", "signup_date", "dateSigned", "date_signed", "dealDate", "deal_date", "date"},
	"createdAt":      {"createdAt", "created_at", "timestamp", "created"},
}

// callbackFields 回访记录字段映射
var callbackFields = fieldTable{
	"id":            {"id", "_id", "callbackId", "callback_id"},
	"customerName":  {"customerName", "customer_name", "customer", "clientName", "client_name", "name"},
	"phone":         {"phone", "phoneNumber", "phone_number", "customerPhone", "customer_phone", "mobile", "contact"},
	"email":         {"email", "customerEmail", "customer_email"},
	"salesAgentId":  {"salesAgentId", "sales_agent_id", "salesAgent", "agentId", "agent_id", "assignedTo", "assigned_to"},
	"salesTeam":     {"salesTeam", "sales_team", "team", "teamId", "team_id"},
	"firstCallDate": {"firstCallDate", "first_call_date", "callbackDate", "callback_date", "date"},
	"firstCallTime": {"firstCallTime", "first_call_time", "callbackTime", "callback_time", "time"},
	"reason":        {"reason", "callbackReason", "callback_reason", "subject"},
	"notes":         {"notes", "note", "comments", "comment"},
	"status":        {"status", "callbackStatus", "callback_status"},
	"createdById":   {"createdById", "created_by_id", "createdBy", "created_by"},
	"createdAt":     {"createdAt", "created_at", "timestamp", "created"},
}

// targetFields 业绩目标字段映射
var targetFields = fieldTable{
	"id":            {"id", "_id", "targetId", "target_id"},
	"agentId":       {"agentId", "agent_id", "salesAgentId", "sales_agent_id", "userId", "user_id"},
	"agentName":     {"agentName", "agent_name", "salesAgentName", "name"},
	"managerId":     {"managerId", "manager_id", "setBy", "set_by"},
	"monthlyTarget": {"monthlyTarget", "monthly_target", "salesTarget", "sales_target", "targetAmount", "target"},
	"dealsTarget":   {"dealsTarget", "deals_target", "targetDeals", "target_deals"},
	"period":        {"period", "month", "targetMonth", "target_month"},
	"currentSales":  {"currentSales", "current_sales", "achievedSales", "achieved_sales"},
	"currentDeals":  {"currentDeals", "current_deals", "achievedDeals", "achieved_deals"},
	"createdAt":     {"createdAt", "created_at"},
	"updatedAt":     {"updatedAt", "updated_at"},
}

// notificationFields 通知字段映射
var notificationFields = fieldTable{
	"id":         {"id", "_id", "notificationId", "notification_id"},
	"title":      {"title", "subject", "heading"},
	"message":    {"message", "body", "content", "text"},
	"recipients": {"recipients", "recipientIds", "recipient_ids", "targetUsers", "target_users", "userIds", "to"},
	"type":       {"type", "category", "kind"},
	"priority":   {"priority", "level", "importance"},
	"read":       {"read", "isRead", "is_read", "seen"},
	"timestamp":  {"timestamp", "createdAt", "created_at", "sentAt", "sent_at"},
}

// userFields 用户字段映射
var userFields = fieldTable{
	"id":     {"id", "_id", "userId", "user_id"},
	"name":   {"name", "fullName", "full_name", "displayName", "username"},
	"role":   {"role", "userRole", "user_role", "type"},
	"teamId": {"teamId", "team_id", "team", "salesTeam", "sales_team", "managedTeam"},
}

// record 带折叠索引的原始记录
type record struct {
	raw    models.RawRecord
	folded map[string]any
}

func newRecord(raw models.RawRecord) record {
	folded := make(map[string]any, len(raw))
	for k, v := range raw {
		fk := foldKey(k)
		if existing, ok := folded[fk]; ok && !isEmpty(existing) {
			continue
		}
		folded[fk] = v
	}
	// 嵌套文档（如 contact: {phone, email}）展开一层，只补充顶层缺失的字段
	for _, v := range raw {
		nested, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for k, inner := range nested {
			fk := foldKey(k)
			if existing, ok := folded[fk]; ok && !isEmpty(existing) {
				continue
			}
			folded[fk] = inner
		}
	}
	return record{raw: raw, folded: folded}
}

// value 按优先级查找规范字段的原始值
func (r record) value(table fieldTable, field string) any {
	for _, candidate := range table[field] {
		if v, ok := r.raw[candidate]; ok && !isEmpty(v) {
			return v
		}
		if v, ok := r.folded[foldKey(candidate)]; ok && !isEmpty(v) {
			return v
		}
	}
	return nil
}

func (r record) str(table fieldTable, field string) string {
	return toString(r.value(table, field))
}

// Normalize 规范化单条记录，返回对应的规范结构
func Normalize(entity models.EntityType, raw models.RawRecord) (any, error) {
	switch entity {
	case models.EntityDeals:
		return NormalizeDeal(raw)
	case models.EntityCallbacks:
		return NormalizeCallback(raw)
	case models.EntityTargets:
		return NormalizeTarget(raw)
	case models.EntityNotifications:
		return NormalizeNotification(raw)
	case models.EntityUsers:
		return NormalizeUser(raw)
	}
	return nil, fmt.Errorf("%w: 未知实体类型 %q", models.ErrValidation, entity)
}

// NormalizeDeal 规范化成交记录
// 缺少客户姓名、成交编号或销售员ID的记录被丢弃
func NormalizeDeal(raw models.RawRecord) (models.Deal, error) {
	r := newRecord(raw)
	deal := models.Deal{
		ID:             r.str(dealFields, "id"),
		DealRef:        r.str(dealFields, "dealRef"),
		CustomerName:   r.str(dealFields, "customerName"),
		AmountPaid:     toDecimal(r.value(dealFields, "amountPaid")),
		SalesAgentID:   r.str(dealFields, "salesAgentId"),
		SalesAgentName: r.str(dealFields, "salesAgentName"),
		ClosingAgentID: r.str(dealFields, "closingAgentId"),
		SalesTeam:      r.str(dealFields, "salesTeam"),
		ServiceTier:    r.str(dealFields, "serviceTier"),
		Status:         models.ParseDealStatus(r.str(dealFields, "status")),
		SignupDate:     toTime(r.value(dealFields, "signupDate")),
		CreatedAt:      toTime(r.value(dealFields, "createdAt")),
	}
	if deal.CustomerName == "" || deal.DealRef == "" || deal.SalesAgentID == "" {
		return models.Deal{}, ErrDropped
	}
	if deal.ID == "" {
		deal.ID = deal.DealRef
	}
	return deal, nil
}

// NormalizeCallback 规范化回访记录
// 缺少客户姓名或电话的记录被丢弃
func NormalizeCallback(raw models.RawRecord) (models.Callback, error) {
	r := newRecord(raw)
	cb := models.Callback{
		ID:           r.str(callbackFields, "id"),
		CustomerName: r.str(callbackFields, "customerName"),
		Contact: models.Contact{
			Phone: r.str(callbackFields, "phone"),
			Email: r.str(callbackFields, "email"),
		},
		SalesAgentID:  r.str(callbackFields, "salesAgentId"),
		SalesTeam:     r.str(callbackFields, "salesTeam"),
		FirstCallDate: toTime(r.value(callbackFields, "firstCallDate")),
		FirstCallTime: r.str(callbackFields, "firstCallTime"),
		Reason:        r.str(callbackFields, "reason"),
		Notes:         r.str(callbackFields, "notes"),
		Status:        models.ParseCallbackStatus(r.str(callbackFields, "status")),
		CreatedByID:   r.str(callbackFields, "createdById"),
		CreatedAt:     toTime(r.value(callbackFields, "createdAt")),
	}
	if cb.CustomerName == "" || cb.Contact.Phone == "" {
		return models.Callback{}, ErrDropped
	}
	if cb.ID == "" {
		cb.ID = cb.CustomerName + ":" + cb.Contact.Phone
	}
	return cb, nil
}

// NormalizeTarget 规范化业绩目标
// 档位总是根据完成率重新推导，不信任数据源中存储的状态
func NormalizeTarget(raw models.RawRecord) (models.Target, error) {
	r := newRecord(raw)
	t := models.Target{
		ID:            r.str(targetFields, "id"),
		AgentID:       r.str(targetFields, "agentId"),
		AgentName:     r.str(targetFields, "agentName"),
		ManagerID:     r.str(targetFields, "managerId"),
		MonthlyTarget: toDecimal(r.value(targetFields, "monthlyTarget")),
		DealsTarget:   toInt(r.value(targetFields, "dealsTarget")),
		Period:        toPeriod(r.value(targetFields, "period")),
		CurrentSales:  toDecimal(r.value(targetFields, "currentSales")),
		CurrentDeals:  toInt(r.value(targetFields, "currentDeals")),
		CreatedAt:     toTime(r.value(targetFields, "createdAt")),
		UpdatedAt:     toTime(r.value(targetFields, "updatedAt")),
	}
	if t.AgentID == "" || t.Period == "" {
		return models.Target{}, ErrDropped
	}
	if t.ID == "" {
		t.ID = t.AgentID + ":" + t.Period
	}
	return targets.Evaluate(t), nil
}

// NormalizeNotification 规范化通知
// 标题和正文都为空的通知被丢弃
func NormalizeNotification(raw models.RawRecord) (models.Notification, error) {
	r := newRecord(raw)
	n := models.Notification{
		ID:         r.str(notificationFields, "id"),
		Title:      r.str(notificationFields, "title"),
		Message:    r.str(notificationFields, "message"),
		Recipients: toStringList(r.value(notificationFields, "recipients")),
		Type:       r.str(notificationFields, "type"),
		Priority:   strings.ToLower(r.str(notificationFields, "priority")),
		Read:       toBool(r.value(notificationFields, "read")),
		Timestamp:  toTime(r.value(notificationFields, "timestamp")),
	}
	if n.Title == "" && n.Message == "" {
		return models.Notification{}, ErrDropped
	}
	if n.ID == "" {
		return models.Notification{}, ErrDropped
	}
	for i, rcpt := range n.Recipients {
		if strings.EqualFold(rcpt, models.RecipientsAll) {
			n.Recipients[i] = models.RecipientsAll
		}
	}
	if n.Priority == "" {
		n.Priority = "normal"
	}
	return n, nil
}

// NormalizeUser 规范化用户
func NormalizeUser(raw models.RawRecord) (models.User, error) {
	r := newRecord(raw)
	u := models.User{
		ID:     r.str(userFields, "id"),
		Name:   r.str(userFields, "name"),
		Role:   models.ParseRole(r.str(userFields, "role")),
		TeamID: r.str(userFields, "teamId"),
	}
	if u.ID == "" {
		return models.User{}, ErrDropped
	}
	return u, nil
}

// normalizeAll 批量规范化，返回成功的记录和被丢弃的数量
func normalizeAll[T any](raws []models.RawRecord, fn func(models.RawRecord) (T, error)) ([]T, int) {
	out := make([]T, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		rec, err := fn(raw)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, rec)
	}
	return out, dropped
}

// Deals 批量规范化成交记录
func Deals(raws []models.RawRecord) ([]models.Deal, int) {
	return normalizeAll(raws, NormalizeDeal)
}

// Callbacks 批量规范化回访记录
func Callbacks(raws []models.RawRecord) ([]models.Callback, int) {
	return normalizeAll(raws, NormalizeCallback)
}

// Targets 批量规范化业绩目标
func Targets(raws []models.RawRecord) ([]models.Target, int) {
	return normalizeAll(raws, NormalizeTarget)
}

// Notifications 批量规范化通知
func Notifications(raws []models.RawRecord) ([]models.Notification, int) {
	return normalizeAll(raws, NormalizeNotification)
}

// Users 批量规范化用户
func Users(raws []models.RawRecord) ([]models.User, int) {
	return normalizeAll(raws, NormalizeUser)
}
