package services

import (
	"github.com/shopspring/decimal"

	"sales_dashboard/models"
)

// Analytics 由过滤后记录集派生的统计
type Analytics struct {
	TotalDeals         int                         `json:"totalDeals"`         // 成交数
	TotalRevenue       decimal.Decimal             `json:"totalRevenue"`       // 实付金额合计
	AverageDealSize    decimal.Decimal             `json:"averageDealSize"`    // 平均成交金额
	ActiveAgents       int                         `json:"activeAgents"`       // 有成交的销售员数（去重）
	TotalCallbacks     int                         `json:"totalCallbacks"`     // 回访数
	CompletedCallbacks int                         `json:"completedCallbacks"` // 已完成回访数
	ConversionRate     float64                     `json:"conversionRate"`     // 回访转化率（百分比）
	DealsByStatus      map[models.DealStatus]int   `json:"dealsByStatus"`      // 各状态成交数
	TargetsByStatus    map[models.TargetStatus]int `json:"targetsByStatus"`    // 各档位目标数
}

// ComputeAnalytics 计算统计，结果只依赖输入记录
func ComputeAnalytics(deals []models.Deal, callbacks []models.Callback, targets []models.Target) Analytics {
	a := Analytics{
		TotalRevenue:    decimal.Zero,
		AverageDealSize: decimal.Zero,
		DealsByStatus:   make(map[models.DealStatus]int),
		TargetsByStatus: make(map[models.TargetStatus]int),
	}

	agents := make(map[string]struct{})
	for _, d := range deals {
		a.TotalDeals++
		a.TotalRevenue = a.TotalRevenue.Add(d.AmountPaid)
		a.DealsByStatus[d.Status]++
		if d.SalesAgentID != "" {
			agents[d.SalesAgentID] = struct{}{}
		}
	}
	a.ActiveAgents = len(agents)
	if a.TotalDeals > 0 {
		a.AverageDealSize = a.TotalRevenue.Div(decimal.NewFromInt(int64(a.TotalDeals))).Round(2)
	}

	for _, cb := range callbacks {
		a.TotalCallbacks++
		if cb.Status == models.CallbackCompleted {
			a.CompletedCallbacks++
		}
	}
	a.ConversionRate = conversionRate(a.CompletedCallbacks, a.TotalCallbacks)

	for _, t := range targets {
		a.TargetsByStatus[t.Status]++
	}
	return a
}

// conversionRate completed/total*100，保留两位小数，total为0时返回0
func conversionRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(completed)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		InexactFloat64()
}
