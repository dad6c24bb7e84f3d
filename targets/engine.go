// Package targets 实现业绩目标进度引擎
// 目标的累计字段只能通过ApplyDealEvent前进，档位由完成率推导
package targets

import (
	"strings"

	"github.com/shopspring/decimal"

	"sales_dashboard/models"
)

var (
	hundred       = decimal.NewFromInt(100)
	exceededLevel = decimal.NewFromInt(100) // 任一完成率达到100%即超额
	onTrackLevel  = decimal.NewFromInt(70)  // 任一完成率达到70%即正常
)

// DealEvent 成交事件
type DealEvent struct {
	AgentID string          // 销售员ID
	Period  string          // 成交所属周期 YYYY-MM
	Amount  decimal.Decimal // 成交金额
}

// Matches 判断目标是否对应该成交事件
func (e DealEvent) Matches(t models.Target) bool {
	return t.AgentID != "" && t.AgentID == strings.TrimSpace(e.AgentID) && t.Period == e.Period
}

// ratio 计算完成百分比，目标为0时返回0
func ratio(current, goal decimal.Decimal) decimal.Decimal {
	if goal.Sign() <= 0 {
		return decimal.Zero
	}
	return current.Div(goal).Mul(hundred)
}

// StatusFor 根据两项完成率计算档位
func StatusFor(salesProgress, dealsProgress decimal.Decimal) models.TargetStatus {
	if salesProgress.GreaterThanOrEqual(exceededLevel) || dealsProgress.GreaterThanOrEqual(exceededLevel) {
		return models.TargetExceeded
	}
	if salesProgress.GreaterThanOrEqual(onTrackLevel) || dealsProgress.GreaterThanOrEqual(onTrackLevel) {
		return models.TargetOnTrack
	}
	return models.TargetBehind
}

// Evaluate 重新计算目标的完成率和档位，返回新的目标值
func Evaluate(t models.Target) models.Target {
	sales := ratio(t.CurrentSales, t.MonthlyTarget)
	deals := ratio(decimal.NewFromInt(int64(t.CurrentDeals)), decimal.NewFromInt(int64(t.DealsTarget)))

	t.SalesProgress = sales.Round(2).InexactFloat64()
	t.DealsProgress = deals.Round(2).InexactFloat64()
	t.Status = StatusFor(sales, deals)
	return t
}

// ApplyDealEvent 记录一笔成交：销售额累加金额，成交数加1，然后重新计算档位
// 只有累加路径，负数金额按0处理；参数按值传入，不修改调用方持有的目标
func ApplyDealEvent(t models.Target, amount decimal.Decimal) models.Target {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	t.CurrentSales = t.CurrentSales.Add(amount)
	t.CurrentDeals++
	return Evaluate(t)
}

// Replay 依次应用多笔成交金额，便于重放和测试
func Replay(t models.Target, amounts ...decimal.Decimal) models.Target {
	for _, amount := range amounts {
		t = ApplyDealEvent(t, amount)
	}
	return t
}

// Find 在目标列表中查找与事件匹配的目标
func Find(list []models.Target, ev DealEvent) (models.Target, bool) {
	for _, t := range list {
		if ev.Matches(t) {
			return t, true
		}
	}
	return models.Target{}, false
}
