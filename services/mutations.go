package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
	"github.com/shopspring/decimal"

	"sales_dashboard/models"
	"sales_dashboard/providers"
	"sales_dashboard/rolefilter"
	"sales_dashboard/targets"
	"sales_dashboard/utils"
)

// ChangeNotifier 写操作完成后的变更通知
type ChangeNotifier interface {
	Notify(entities ...models.EntityType)
}

// MutationConfig 写操作服务配置
type MutationConfig struct {
	Registry   *providers.Registry
	Aggregator *Aggregator
	Notifier   ChangeNotifier // 可以为nil
	Clock      clock.Clock
}

// Mutations 写操作服务
// 先同步写入数据源，再使缓存失效，最后通知推送
type Mutations struct {
	registry *providers.Registry
	agg      *Aggregator
	notifier ChangeNotifier
	clock    clock.Clock
	locks    *kmutex.Kmutex // 按销售员和周期串行化目标更新
}

// NewMutations 创建写操作服务
func NewMutations(cfg MutationConfig) *Mutations {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Mutations{
		registry: cfg.Registry,
		agg:      cfg.Aggregator,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		locks:    kmutex.New(),
	}
}

// DealResult 创建成交的结果
type DealResult struct {
	Deal   models.Deal    `json:"deal"`
	Target *models.Target `json:"target,omitempty"` // 对应目标不存在时为nil
}

// CreateDeal 创建成交记录，并推进对应销售员当期的业绩目标
func (m *Mutations) CreateDeal(ctx context.Context, req models.Requester, deal models.Deal) (DealResult, error) {
	if req.Role == models.RoleUnknown {
		return DealResult{}, models.ErrAccessDenied
	}

	deal.CustomerName = strings.TrimSpace(deal.CustomerName)
	if deal.CustomerName == "" {
		return DealResult{}, fmt.Errorf("%w: 客户姓名不能为空", models.ErrValidation)
	}
	if deal.AmountPaid.IsNegative() {
		return DealResult{}, fmt.Errorf("%w: 金额不能为负数", models.ErrValidation)
	}

	deal.SalesAgentID = strings.TrimSpace(deal.SalesAgentID)
	if deal.SalesAgentID == "" && req.Role != models.RoleManager {
		deal.SalesAgentID = req.UserID
		if deal.SalesTeam == "" {
			deal.SalesTeam = req.TeamID
		}
	}
	if deal.SalesAgentID == "" {
		return DealResult{}, fmt.Errorf("%w: 销售员ID不能为空", models.ErrValidation)
	}
	if err := m.authorizeAgent(ctx, req, deal.SalesAgentID); err != nil {
		return DealResult{}, err
	}
	if req.Role == models.RoleTeamLeader && deal.SalesTeam == "" {
		deal.SalesTeam = req.TeamID
	}
	// 登记人必须能看到自己创建的成交
	if len(rolefilter.Deals([]models.Deal{deal}, req)) == 0 {
		return DealResult{}, models.ErrAccessDenied
	}

	now := m.clock.Now()
	if deal.SignupDate.IsZero() {
		deal.SignupDate = now
	}
	deal.ID = uuid.NewString()
	if strings.TrimSpace(deal.DealRef) == "" {
		deal.DealRef = utils.GenerateDealRef(deal.SignupDate)
	}
	deal.Status = models.ParseDealStatus(string(deal.Status))
	deal.CreatedAt = now

	if err := m.write(ctx, models.EntityDeals, &deal); err != nil {
		return DealResult{}, err
	}
	m.agg.Invalidate(models.EntityDeals)

	result := DealResult{Deal: deal}
	changed := []models.EntityType{models.EntityDeals}
	event := targets.DealEvent{
		AgentID: deal.SalesAgentID,
		Period:  deal.SignupDate.Format(models.PeriodLayout),
		Amount:  deal.AmountPaid,
	}
	target, err := m.applyDealEvent(ctx, event)
	switch {
	case err == nil:
		result.Target = &target
		changed = append(changed, models.EntityTargets)
	case errors.Is(err, models.ErrNotFound):
		// 没有对应目标，不需要推进
	default:
		log.Printf("成交%s已写入，但推进目标失败: %v", deal.ID, err)
	}

	m.notify(changed...)
	return result, nil
}

// RecordTargetProgress 把一笔成交计入销售员当期目标
// period为空时取当前月份；目标不存在时返回ErrNotFound
func (m *Mutations) RecordTargetProgress(ctx context.Context, req models.Requester, agentID string, amount decimal.Decimal, period string) (models.Target, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return models.Target{}, fmt.Errorf("%w: agentId不能为空", models.ErrValidation)
	}
	if err := m.authorizeAgent(ctx, req, agentID); err != nil {
		return models.Target{}, err
	}
	if amount.IsNegative() {
		return models.Target{}, fmt.Errorf("%w: 金额不能为负数", models.ErrValidation)
	}
	if period == "" {
		period = m.clock.Now().Format(models.PeriodLayout)
	} else if _, err := time.Parse(models.PeriodLayout, period); err != nil {
		return models.Target{}, fmt.Errorf("%w: 周期格式应为YYYY-MM", models.ErrValidation)
	}

	target, err := m.applyDealEvent(ctx, targets.DealEvent{AgentID: agentID, Period: period, Amount: amount})
	if err != nil {
		return models.Target{}, err
	}
	m.notify(models.EntityTargets)
	return target, nil
}

// authorizeAgent 校验请求者能否为agentID登记业绩
//   - manager: 任意销售员
//   - team-leader: 自己或本团队成员
//   - salesman / customer-service: 只能是自己
func (m *Mutations) authorizeAgent(ctx context.Context, req models.Requester, agentID string) error {
	switch req.Role {
	case models.RoleManager:
		return nil
	case models.RoleSalesman, models.RoleCustomerService:
		if agentID == req.UserID {
			return nil
		}
	case models.RoleTeamLeader:
		if agentID == req.UserID {
			return nil
		}
		users, err := m.agg.Users(ctx)
		if err != nil {
			return err
		}
		if u, ok := users[agentID]; ok && req.TeamID != "" && u.TeamID == req.TeamID {
			return nil
		}
	}
	return models.ErrAccessDenied
}

// applyDealEvent 读取最新目标并推进，同一销售员同一周期的更新串行执行
func (m *Mutations) applyDealEvent(ctx context.Context, event targets.DealEvent) (models.Target, error) {
	lockKey := event.AgentID + ":" + event.Period
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)

	list, origins, err := m.loadTargets(ctx)
	if err != nil {
		return models.Target{}, err
	}
	current, ok := targets.Find(list, event)
	if !ok {
		return models.Target{}, fmt.Errorf("%s %s: %w", event.AgentID, event.Period, models.ErrNotFound)
	}

	updated := targets.ApplyDealEvent(current, event.Amount)
	updated.UpdatedAt = m.clock.Now()
	if err := m.update(ctx, models.EntityTargets, updated.ID, origins[updated.ID], &updated); err != nil {
		return models.Target{}, err
	}
	m.agg.Invalidate(models.EntityTargets)
	return updated, nil
}

// CreateTarget 创建业绩目标，只有经理和组长可以设定
func (m *Mutations) CreateTarget(ctx context.Context, req models.Requester, target models.Target) (models.Target, error) {
	if !req.CanManage() {
		return models.Target{}, models.ErrAccessDenied
	}

	target.AgentID = strings.TrimSpace(target.AgentID)
	if target.AgentID == "" {
		return models.Target{}, fmt.Errorf("%w: agentId不能为空", models.ErrValidation)
	}
	if target.Period == "" {
		target.Period = m.clock.Now().Format(models.PeriodLayout)
	}
	if _, err := time.Parse(models.PeriodLayout, target.Period); err != nil {
		return models.Target{}, fmt.Errorf("%w: 周期格式应为YYYY-MM", models.ErrValidation)
	}
	if target.MonthlyTarget.IsNegative() || target.DealsTarget < 0 {
		return models.Target{}, fmt.Errorf("%w: 目标不能为负数", models.ErrValidation)
	}

	lockKey := target.AgentID + ":" + target.Period
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)

	list, _, err := m.loadTargets(ctx)
	if err != nil {
		return models.Target{}, err
	}
	if _, exists := targets.Find(list, targets.DealEvent{AgentID: target.AgentID, Period: target.Period}); exists {
		return models.Target{}, fmt.Errorf("%w: 该销售员本周期的目标已存在", models.ErrValidation)
	}

	if target.AgentName == "" {
		if users, err := m.agg.Users(ctx); err == nil {
			target.AgentName = users[target.AgentID].Name
		}
	}

	now := m.clock.Now()
	target.ID = uuid.NewString()
	target.ManagerID = req.UserID
	// 累计字段只能由成交事件推进
	target.CurrentSales = decimal.Zero
	target.CurrentDeals = 0
	target.CreatedAt = now
	target.UpdatedAt = now
	target = targets.Evaluate(target)

	if err := m.write(ctx, models.EntityTargets, &target); err != nil {
		return models.Target{}, err
	}
	m.agg.Invalidate(models.EntityTargets)
	m.notify(models.EntityTargets)
	return target, nil
}

// CreateCallback 创建回访记录
func (m *Mutations) CreateCallback(ctx context.Context, req models.Requester, cb models.Callback) (models.Callback, error) {
	if req.Role == models.RoleUnknown {
		return models.Callback{}, models.ErrAccessDenied
	}

	cb.CustomerName = strings.TrimSpace(cb.CustomerName)
	cb.Contact.Phone = strings.TrimSpace(cb.Contact.Phone)
	if cb.CustomerName == "" || cb.Contact.Phone == "" {
		return models.Callback{}, fmt.Errorf("%w: 客户姓名和电话不能为空", models.ErrValidation)
	}
	if cb.Status == "" {
		cb.Status = models.CallbackPending
	}
	if !models.IsValidCallbackStatus(cb.Status) {
		return models.Callback{}, fmt.Errorf("%w: 无效的回访状态 %q", models.ErrValidation, cb.Status)
	}
	if strings.TrimSpace(cb.SalesAgentID) == "" && req.Role != models.RoleManager {
		cb.SalesAgentID = req.UserID
		if cb.SalesTeam == "" {
			cb.SalesTeam = req.TeamID
		}
	}

	now := m.clock.Now()
	cb.ID = uuid.NewString()
	cb.CreatedByID = req.UserID
	cb.CreatedAt = now
	if cb.FirstCallDate.IsZero() {
		cb.FirstCallDate = now
	}

	if err := m.write(ctx, models.EntityCallbacks, &cb); err != nil {
		return models.Callback{}, err
	}
	m.agg.Invalidate(models.EntityCallbacks)
	m.notify(models.EntityCallbacks)
	return cb, nil
}

// UpdateCallbackStatus 更新回访状态，只能向前流转或取消
func (m *Mutations) UpdateCallbackStatus(ctx context.Context, req models.Requester, id string, status models.CallbackStatus) (models.Callback, error) {
	if !models.IsValidCallbackStatus(status) {
		return models.Callback{}, fmt.Errorf("%w: 无效的回访状态 %q", models.ErrValidation, status)
	}

	loaded, err := m.agg.load(ctx, models.EntityCallbacks)
	if err != nil {
		return models.Callback{}, err
	}
	var current models.Callback
	found := false
	for _, cb := range loaded.Records.([]models.Callback) {
		if cb.ID == id {
			current, found = cb, true
			break
		}
	}
	// 不可见的记录按不存在处理
	if !found || len(rolefilter.Callbacks([]models.Callback{current}, req)) == 0 {
		return models.Callback{}, fmt.Errorf("回访%s: %w", id, models.ErrNotFound)
	}

	if current.Status == status {
		return current, nil
	}
	if !models.CanTransition(current.Status, status) {
		return models.Callback{}, fmt.Errorf("%w: %s → %s", models.ErrInvalidTransition, current.Status, status)
	}

	current.Status = status
	if err := m.update(ctx, models.EntityCallbacks, current.ID, loaded.Origins[current.ID], &current); err != nil {
		return models.Callback{}, err
	}
	m.agg.Invalidate(models.EntityCallbacks)
	m.notify(models.EntityCallbacks)
	return current, nil
}

// CreateNotification 发送通知，接收人必须是已存在的用户或ALL
func (m *Mutations) CreateNotification(ctx context.Context, req models.Requester, n models.Notification) (models.Notification, error) {
	if !req.CanManage() {
		return models.Notification{}, models.ErrAccessDenied
	}

	n.Title = strings.TrimSpace(n.Title)
	n.Message = strings.TrimSpace(n.Message)
	if n.Title == "" && n.Message == "" {
		return models.Notification{}, fmt.Errorf("%w: 标题和内容不能同时为空", models.ErrValidation)
	}

	recipients, err := m.validateRecipients(ctx, n.Recipients)
	if err != nil {
		return models.Notification{}, err
	}
	n.Recipients = recipients

	n.ID = uuid.NewString()
	n.Timestamp = m.clock.Now()
	n.Read = false
	if n.Type == "" {
		n.Type = "info"
	}
	if n.Priority == "" {
		n.Priority = "normal"
	}

	if err := m.write(ctx, models.EntityNotifications, &n); err != nil {
		return models.Notification{}, err
	}
	m.agg.Invalidate(models.EntityNotifications)
	m.notify(models.EntityNotifications)
	return n, nil
}

// validateRecipients 校验接收人，包含ALL时只保留ALL
func (m *Mutations) validateRecipients(ctx context.Context, raw []string) ([]string, error) {
	cleaned := make([]string, 0, len(raw))
	seen := make(map[string]bool)
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		if strings.EqualFold(r, models.RecipientsAll) {
			return []string{models.RecipientsAll}, nil
		}
		seen[r] = true
		cleaned = append(cleaned, r)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: 至少需要一个接收人", models.ErrInvalidRecipients)
	}

	users, err := m.agg.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("无法校验接收人: %w", err)
	}
	var unknown []string
	for _, id := range cleaned {
		if _, ok := users[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: 用户不存在 %s", models.ErrInvalidRecipients, strings.Join(unknown, ","))
	}
	return cleaned, nil
}

// MarkNotificationRead 标记通知已读
func (m *Mutations) MarkNotificationRead(ctx context.Context, req models.Requester, id string) (models.Notification, error) {
	loaded, err := m.agg.load(ctx, models.EntityNotifications)
	if err != nil {
		return models.Notification{}, err
	}
	visible := rolefilter.Notifications(loaded.Records.([]models.Notification), req)
	for _, n := range visible {
		if n.ID != id {
			continue
		}
		if n.Read {
			return n, nil
		}
		n.Read = true
		if err := m.update(ctx, models.EntityNotifications, n.ID, loaded.Origins[n.ID], &n); err != nil {
			return models.Notification{}, err
		}
		m.agg.Invalidate(models.EntityNotifications)
		m.notify(models.EntityNotifications)
		return n, nil
	}
	return models.Notification{}, fmt.Errorf("通知%s: %w", id, models.ErrNotFound)
}

// loadTargets 读取未过滤的最新目标列表
func (m *Mutations) loadTargets(ctx context.Context) ([]models.Target, map[string]string, error) {
	loaded, err := m.agg.load(ctx, models.EntityTargets)
	if err != nil {
		return nil, nil, err
	}
	return loaded.Records.([]models.Target), loaded.Origins, nil
}

func (m *Mutations) write(ctx context.Context, entity models.EntityType, record any) error {
	w, err := m.registry.Writer(entity)
	if err != nil {
		return err
	}
	if err := w.Insert(ctx, entity, record); err != nil {
		return fmt.Errorf("写入%s失败: %w", entity, err)
	}
	return nil
}

// update 写回记录所在的数据源
// 所在数据源只读（如遗留CSV）时把更新后的记录写入实体的写入源，之后以写入源中的副本为准
func (m *Mutations) update(ctx context.Context, entity models.EntityType, id, origin string, record any) error {
	if w, ok := m.registry.SourceWriter(entity, origin); ok {
		if err := w.Update(ctx, entity, id, record); err != nil {
			return fmt.Errorf("更新%s失败: %w", entity, err)
		}
		return nil
	}
	return m.write(ctx, entity, record)
}

func (m *Mutations) notify(entities ...models.EntityType) {
	if m.notifier != nil {
		m.notifier.Notify(entities...)
	}
}
