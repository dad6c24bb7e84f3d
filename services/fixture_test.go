package services

import (
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"sales_dashboard/cache"
	"sales_dashboard/models"
	"sales_dashboard/providers"
)

var fixtureNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

// fixture 内存数据源 + 聚合器 + 写操作服务
type fixture struct {
	clock    *testclock.Clock
	mem      *providers.MemoryProvider
	registry *providers.Registry
	cache    *cache.Store
	agg      *Aggregator
	mut      *Mutations
	notifier *recordingNotifier
}

type recordingNotifier struct {
	mu       sync.Mutex
	entities []models.EntityType
}

func (n *recordingNotifier) Notify(entities ...models.EntityType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entities = append(n.entities, entities...)
}

func (n *recordingNotifier) seen() []models.EntityType {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.EntityType(nil), n.entities...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := testclock.NewClock(fixtureNow)
	mem := providers.NewMemoryProvider("primary")
	seed(mem)

	registry := providers.NewRegistry()
	for _, e := range []models.EntityType{
		models.EntityDeals, models.EntityCallbacks, models.EntityTargets,
		models.EntityNotifications, models.EntityUsers,
	} {
		registry.Register(e, mem)
		registry.SetWriter(e, mem)
	}

	store := cache.New(cache.Config{Clock: clk})
	t.Cleanup(store.Close)

	agg := NewAggregator(Config{
		Registry: registry,
		Cache:    store,
		Clock:    clk,
		ListTTL:  30 * time.Second,
	})
	notifier := &recordingNotifier{}
	mut := NewMutations(MutationConfig{
		Registry:   registry,
		Aggregator: agg,
		Notifier:   notifier,
		Clock:      clk,
	})
	return &fixture{
		clock:    clk,
		mem:      mem,
		registry: registry,
		cache:    store,
		agg:      agg,
		mut:      mut,
		notifier: notifier,
	}
}

// seed 各数据源字段写法不同的原始记录
func seed(mem *providers.MemoryProvider) {
	mem.Seed(models.EntityUsers,
		models.RawRecord{"id": "m1", "name": "经理", "role": "manager"},
		models.RawRecord{"id": "tl1", "name": "组长", "role": "team_leader", "teamId": "t1"},
		models.RawRecord{"id": "u1", "name": "小王", "role": "salesman", "teamId": "t1"},
		models.RawRecord{"user_id": "u2", "full_name": "小李", "role": "salesman", "team_id": "t2"},
		models.RawRecord{"id": "u3", "name": "小赵", "role": "customer-service", "team": "t2"},
	)
	mem.Seed(models.EntityDeals,
		models.RawRecord{"id": "d1", "dealRef": "R1", "customerName": "客户A", "amount": "1000",
			"salesAgentId": "u1", "salesTeam": "t1", "status": "closed", "signupDate": "2024-05-03"},
		models.RawRecord{"id": "d2", "deal_ref": "R2", "customer_name": "客户B", "amount_paid": 2500.5,
			"sales_agent_id": "u2", "closing_agent_id": "u1", "status": "active", "signup_date": "2024-05-10"},
		models.RawRecord{"id": "d3", "dealRef": "R3", "customerName": "客户C", "amountPaid": "500",
			"salesAgentId": "u3", "salesTeam": "t2", "signupDate": "2024-04-20"},
		models.RawRecord{"id": "d4", "dealRef": "R4", "customerName": "", "salesAgentId": "u1"},
	)
	mem.Seed(models.EntityCallbacks,
		models.RawRecord{"id": "c1", "customerName": "客户X", "phone": "1001", "salesAgentId": "u1",
			"status": "completed", "firstCallDate": "2024-05-02"},
		models.RawRecord{"id": "c2", "customerName": "客户Y", "phone": "1002", "salesAgentId": "u2",
			"status": "pending", "firstCallDate": "2024-05-04"},
		models.RawRecord{"id": "c3", "customerName": "客户Z", "phoneNumber": "1003", "agentId": "u1",
			"status": "contacted", "firstCallDate": "2024-05-06"},
	)
	mem.Seed(models.EntityTargets,
		models.RawRecord{"id": "tg1", "agentId": "u1", "managerId": "tl1", "period": "2024-05",
			"monthlyTarget": "50000", "dealsTarget": 10, "currentSales": "0", "currentDeals": 0},
		models.RawRecord{"id": "tg2", "agentId": "u2", "managerId": "m1", "period": "2024-05",
			"monthlyTarget": "20000", "dealsTarget": 5, "currentSales": "15000", "currentDeals": 2},
	)
	mem.Seed(models.EntityNotifications,
		models.RawRecord{"id": "n1", "title": "全员会议", "recipients": []any{"ALL"}, "timestamp": "2024-05-14T09:00:00Z"},
		models.RawRecord{"id": "n2", "title": "私信", "recipients": "u2", "timestamp": "2024-05-14T10:00:00Z"},
		models.RawRecord{"id": "n3", "message": "无接收人", "timestamp": "2024-05-14T11:00:00Z"},
	)
}

var (
	manager    = models.Requester{Role: models.RoleManager, UserID: "m1"}
	teamLeader = models.Requester{Role: models.RoleTeamLeader, UserID: "tl1", TeamID: "t1"}
	salesmanU1 = models.Requester{Role: models.RoleSalesman, UserID: "u1", TeamID: "t1"}
	salesmanU2 = models.Requester{Role: models.RoleSalesman, UserID: "u2", TeamID: "t2"}
	serviceU3  = models.Requester{Role: models.RoleCustomerService, UserID: "u3", TeamID: "t2"}
	unknown    = models.Requester{Role: models.RoleUnknown, UserID: "x1"}
)
