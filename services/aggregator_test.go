package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales_dashboard/models"
	"sales_dashboard/providers"
)

func fetch(t *testing.T, f *fixture, q Query) *Snapshot {
	t.Helper()
	snap, err := f.agg.FetchUnified(context.Background(), q)
	require.NoError(t, err)
	return snap
}

func dealIDs(deals []models.Deal) []string {
	ids := make([]string, 0, len(deals))
	for _, d := range deals {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestManagerSeesFullSet(t *testing.T) {
	f := newFixture(t)
	snap := fetch(t, f, Query{Requester: manager})

	assert.Equal(t, []string{"d1", "d2", "d3"}, dealIDs(snap.Deals()))
	assert.Len(t, snap.Callbacks(), 3)
	assert.Len(t, snap.Targets(), 2)
	assert.Len(t, snap.Notifications(), 3)
	assert.Equal(t, 1, snap.Metadata.Dropped[models.EntityDeals])
	assert.Equal(t, 3, snap.Metadata.Totals[models.EntityDeals])
	assert.Empty(t, snap.Metadata.PartialErrors)
	assert.False(t, snap.Failed())
}

func TestSalesmanSeesOnlyOwnRecords(t *testing.T) {
	f := newFixture(t)
	for _, req := range []models.Requester{salesmanU1, salesmanU2, serviceU3} {
		snap := fetch(t, f, Query{Requester: req})
		for _, d := range snap.Deals() {
			assert.True(t, d.SalesAgentID == req.UserID || d.ClosingAgentID == req.UserID,
				"%s 看到了 %s", req.UserID, d.ID)
		}
		for _, cb := range snap.Callbacks() {
			assert.Equal(t, req.UserID, cb.SalesAgentID)
		}
	}

	snap := fetch(t, f, Query{Requester: salesmanU1})
	assert.Equal(t, []string{"d1", "d2"}, dealIDs(snap.Deals()))
}

func TestTeamLeaderUsesEnrichedTeam(t *testing.T) {
	f := newFixture(t)
	snap := fetch(t, f, Query{Requester: teamLeader})

	// d2没有团队字段，按销售员u2补全为t2，不属于t1
	assert.Equal(t, []string{"d1"}, dealIDs(snap.Deals()))
	// c3只有agentId，按u1补全为t1
	assert.Len(t, snap.Callbacks(), 2)

	deals := fetch(t, f, Query{Requester: manager}).Deals()
	require.Len(t, deals, 3)
	assert.Equal(t, "小李", deals[1].SalesAgentName)
	assert.Equal(t, "t2", deals[1].SalesTeam)
}

func TestUnknownRoleGetsNothing(t *testing.T) {
	f := newFixture(t)
	snap := fetch(t, f, Query{Requester: unknown})

	assert.Empty(t, snap.Deals())
	assert.Empty(t, snap.Callbacks())
	assert.Empty(t, snap.Targets())
	assert.Empty(t, snap.Notifications())
	assert.NotNil(t, snap.Deals())
	assert.False(t, snap.Failed())
}

func TestNotificationVisibility(t *testing.T) {
	f := newFixture(t)

	ids := func(req models.Requester) []string {
		var out []string
		for _, n := range fetch(t, f, Query{Requester: req, EntityTypes: []models.EntityType{models.EntityNotifications}}).Notifications() {
			out = append(out, n.ID)
		}
		return out
	}
	assert.Equal(t, []string{"n1", "n2", "n3"}, ids(manager))
	assert.Equal(t, []string{"n1", "n2"}, ids(salesmanU2))
	assert.Equal(t, []string{"n1"}, ids(salesmanU1))
	assert.Equal(t, []string{"n1"}, ids(teamLeader))
}

func TestPartialFailureOnTimeout(t *testing.T) {
	f := newFixture(t)

	slow := providers.NewMemoryProvider("callbacks-db")
	slow.Block(models.EntityCallbacks, true)
	registry := providers.NewRegistry()
	registry.Register(models.EntityDeals, f.mem)
	registry.Register(models.EntityUsers, f.mem)
	registry.Register(models.EntityCallbacks, providers.Guard(slow, providers.GuardConfig{Timeout: 20 * time.Millisecond}))
	f.agg.registry = registry

	snap := fetch(t, f, Query{
		Requester:   manager,
		EntityTypes: []models.EntityType{models.EntityDeals, models.EntityCallbacks},
	})

	assert.Len(t, snap.Deals(), 3)
	cbs, ok := snap.Section(models.EntityCallbacks)
	require.True(t, ok)
	assert.Equal(t, []models.Callback{}, cbs.Records)
	require.NotNil(t, cbs.Error)
	assert.Equal(t, "timeout", cbs.Error.Kind)
	assert.Equal(t, "callbacks-db", cbs.Error.Source)
	assert.False(t, snap.Failed())

	require.Len(t, snap.Metadata.PartialErrors, 1)
	assert.Equal(t, models.EntityCallbacks, snap.Metadata.PartialErrors[0].Entity)

	// 失败不缓存，恢复后立即可用
	slow.Block(models.EntityCallbacks, false)
	slow.Seed(models.EntityCallbacks, models.RawRecord{"id": "c9", "customerName": "新客户", "phone": "9"})
	snap = fetch(t, f, Query{Requester: manager, EntityTypes: []models.EntityType{models.EntityCallbacks}})
	assert.Len(t, snap.Callbacks(), 1)
}

func TestWhollyFailedAggregate(t *testing.T) {
	f := newFixture(t)
	f.mem.Fail(models.EntityDeals, errors.New("down"))
	f.mem.Fail(models.EntityCallbacks, errors.New("down"))

	snap := fetch(t, f, Query{
		Requester:   manager,
		EntityTypes: []models.EntityType{models.EntityDeals, models.EntityCallbacks},
	})
	assert.True(t, snap.Failed())
	assert.Len(t, snap.Metadata.PartialErrors, 2)
}

func TestSecondarySourceMergedAndDeduplicated(t *testing.T) {
	f := newFixture(t)

	legacy := providers.NewMemoryProvider("legacy")
	legacy.Seed(models.EntityDeals,
		models.RawRecord{"deal_ref": "R1", "id": "d1", "customer_name": "旧客户A", "amount": "1", "sales_agent_id": "u1"},
		models.RawRecord{"deal_ref": "L9", "customer_name": "旧客户", "amount": "300", "sales_agent_id": "u1"},
	)
	broken := providers.NewMemoryProvider("broken")
	broken.Fail(models.EntityDeals, errors.New("connection refused"))
	f.registry.Register(models.EntityDeals, legacy)
	f.registry.Register(models.EntityDeals, broken)

	snap := fetch(t, f, Query{Requester: manager, EntityTypes: []models.EntityType{models.EntityDeals}})
	deals := snap.Deals()
	assert.Equal(t, []string{"d1", "d2", "d3", "L9"}, dealIDs(deals))
	assert.Equal(t, "客户A", deals[0].CustomerName, "同一id以优先级高的数据源为准")

	require.Len(t, snap.Metadata.PartialErrors, 1)
	pe := snap.Metadata.PartialErrors[0]
	assert.True(t, pe.Partial)
	assert.Equal(t, "broken", pe.Source)
	assert.Equal(t, "provider_unavailable", pe.Kind)
	sec, _ := snap.Section(models.EntityDeals)
	assert.Nil(t, sec.Error)
}

func TestResultsAreCachedUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	q := Query{Requester: manager, EntityTypes: []models.EntityType{models.EntityDeals}}

	fetch(t, f, q)
	fetch(t, f, q)
	assert.Equal(t, 1, f.mem.Fetches(models.EntityDeals))

	// 不同请求者使用不同的键
	fetch(t, f, Query{Requester: salesmanU1, EntityTypes: q.EntityTypes})
	assert.Equal(t, 2, f.mem.Fetches(models.EntityDeals))

	f.agg.Invalidate(models.EntityDeals)
	fetch(t, f, q)
	assert.Equal(t, 3, f.mem.Fetches(models.EntityDeals))

	f.clock.Advance(31 * time.Second)
	fetch(t, f, q)
	assert.Equal(t, 4, f.mem.Fetches(models.EntityDeals))
}

func TestPaging(t *testing.T) {
	f := newFixture(t)
	snap := fetch(t, f, Query{
		Requester:   manager,
		EntityTypes: []models.EntityType{models.EntityDeals},
		Limit:       2,
		Offset:      1,
	})
	assert.Equal(t, []string{"d2", "d3"}, dealIDs(snap.Deals()))
	assert.Equal(t, 3, snap.Metadata.Totals[models.EntityDeals])
	assert.Equal(t, 2, snap.Metadata.Limit)

	snap = fetch(t, f, Query{
		Requester:   manager,
		EntityTypes: []models.EntityType{models.EntityDeals},
		Limit:       5000,
		Offset:      10,
	})
	assert.Empty(t, snap.Deals())
	assert.Equal(t, MaxLimit, snap.Metadata.Limit)

	// 分页共享同一个完整记录集
	assert.Equal(t, 1, f.mem.Fetches(models.EntityDeals))
}

func TestAnalytics(t *testing.T) {
	f := newFixture(t)
	snap := fetch(t, f, Query{Requester: manager, EntityTypes: []models.EntityType{models.EntityAnalytics}})

	a := snap.Analytics()
	require.NotNil(t, a)
	assert.Equal(t, 3, a.TotalDeals)
	assert.True(t, a.TotalRevenue.Equal(decimal.RequireFromString("4000.5")), a.TotalRevenue.String())
	assert.True(t, a.AverageDealSize.Equal(decimal.RequireFromString("1333.5")), a.AverageDealSize.String())
	assert.Equal(t, 3, a.ActiveAgents)
	assert.Equal(t, 3, a.TotalCallbacks)
	assert.Equal(t, 1, a.CompletedCallbacks)
	assert.Equal(t, 33.33, a.ConversionRate)
	assert.Equal(t, 1, a.DealsByStatus[models.DealClosed])
	assert.Equal(t, 1, a.TargetsByStatus[models.TargetOnTrack])
	assert.Equal(t, 1, a.TargetsByStatus[models.TargetBehind])

	// 统计基于角色过滤后的记录
	a = fetch(t, f, Query{Requester: salesmanU1, EntityTypes: []models.EntityType{models.EntityAnalytics}}).Analytics()
	require.NotNil(t, a)
	assert.Equal(t, 2, a.TotalDeals)
	assert.Equal(t, 2, a.TotalCallbacks)
	assert.Equal(t, 50.0, a.ConversionRate)
}

func TestAnalyticsWithFailedDependency(t *testing.T) {
	f := newFixture(t)
	f.mem.Fail(models.EntityCallbacks, errors.New("down"))

	snap := fetch(t, f, Query{Requester: manager, EntityTypes: []models.EntityType{models.EntityAnalytics}})
	a := snap.Analytics()
	require.NotNil(t, a)
	assert.Equal(t, 3, a.TotalDeals)
	assert.Equal(t, 0.0, a.ConversionRate)
	require.Len(t, snap.Metadata.PartialErrors, 1)
	assert.Equal(t, models.EntityAnalytics, snap.Metadata.PartialErrors[0].Entity)
	assert.Equal(t, "callbacks", snap.Metadata.PartialErrors[0].Source)
	assert.True(t, snap.Metadata.PartialErrors[0].Partial)
}

func TestComputeAnalyticsEmpty(t *testing.T) {
	a := ComputeAnalytics(nil, nil, nil)
	assert.Equal(t, 0, a.TotalDeals)
	assert.True(t, a.AverageDealSize.IsZero())
	assert.Equal(t, 0.0, a.ConversionRate)
}

func TestDateRangeFiltersRecords(t *testing.T) {
	f := newFixture(t)
	snap := fetch(t, f, Query{Requester: manager, DateRange: "month"})
	assert.Equal(t, []string{"d1", "d2"}, dealIDs(snap.Deals()))
	assert.Len(t, snap.Targets(), 2)

	snap = fetch(t, f, Query{Requester: manager, DateRange: "2024-04-01,2024-04-30"})
	assert.Equal(t, []string{"d3"}, dealIDs(snap.Deals()))
	assert.Empty(t, snap.Targets())
}

func TestInvalidQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.FetchUnified(context.Background(), Query{Requester: manager, DateRange: "yesterday"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.agg.FetchUnified(context.Background(), Query{
		Requester:   manager,
		EntityTypes: []models.EntityType{models.EntityUsers},
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSnapshotData(t *testing.T) {
	f := newFixture(t)
	snap := fetch(t, f, Query{
		Requester:   manager,
		EntityTypes: []models.EntityType{models.EntityDeals, models.EntityAnalytics},
	})
	data := snap.Data()
	assert.Len(t, data, 2)
	assert.Contains(t, data, "deals")
	assert.Contains(t, data, "analytics")
	assert.NotContains(t, data, "callbacks")
}
