package providers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/goleak"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sales_dashboard/models"
	"sales_dashboard/normalizer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Deal{}, &models.Callback{}, &models.Target{}, &models.Notification{},
	))
	return db
}

func TestRelationalProviderRoundTrip(t *testing.T) {
	p := NewRelationalProvider(openTestDB(t))
	ctx := context.Background()

	deal := &models.Deal{
		ID:           "d1",
		DealRef:      "DL-0001",
		CustomerName: "张三",
		AmountPaid:   decimal.RequireFromString("2500.5"),
		SalesAgentID: "u1",
		SalesTeam:    "t1",
		Status:       models.DealActive,
		SignupDate:   time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Insert(ctx, models.EntityDeals, deal))

	rows, err := p.Fetch(ctx, models.EntityDeals)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0], "customer_name")

	deals, dropped := normalizer.Deals(rows)
	assert.Equal(t, 0, dropped)
	require.Len(t, deals, 1)
	assert.Equal(t, "DL-0001", deals[0].DealRef)
	assert.Equal(t, "u1", deals[0].SalesAgentID)
	assert.True(t, deals[0].AmountPaid.Equal(decimal.RequireFromString("2500.5")))
	assert.Equal(t, models.DealActive, deals[0].Status)
}

func TestRelationalProviderUpdate(t *testing.T) {
	p := NewRelationalProvider(openTestDB(t))
	ctx := context.Background()

	target := &models.Target{
		ID:            "t1",
		AgentID:       "u1",
		Period:        "2024-05",
		MonthlyTarget: decimal.NewFromInt(50000),
		DealsTarget:   10,
		CurrentSales:  decimal.Zero,
		Status:        models.TargetBehind,
	}
	require.NoError(t, p.Insert(ctx, models.EntityTargets, target))

	target.CurrentSales = decimal.NewFromInt(40000)
	target.CurrentDeals = 6
	target.Status = models.TargetOnTrack
	require.NoError(t, p.Update(ctx, models.EntityTargets, "t1", target))

	rows, err := p.Fetch(ctx, models.EntityTargets)
	require.NoError(t, err)
	list, _ := normalizer.Targets(rows)
	require.Len(t, list, 1)
	assert.True(t, list[0].CurrentSales.Equal(decimal.NewFromInt(40000)))
	assert.Equal(t, 6, list[0].CurrentDeals)

	missing := &models.Target{ID: "nope", AgentID: "u9", Period: "2024-05"}
	err = p.Update(ctx, models.EntityTargets, "nope", missing)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRelationalProviderNotificationRecipients(t *testing.T) {
	p := NewRelationalProvider(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, p.Insert(ctx, models.EntityNotifications, &models.Notification{
		ID:         "n1",
		Title:      "月度会议",
		Recipients: []string{"u1", "u2"},
	}))

	rows, err := p.Fetch(ctx, models.EntityNotifications)
	require.NoError(t, err)
	list, _ := normalizer.Notifications(rows)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"u1", "u2"}, list[0].Recipients)
}

func TestFlattenDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	amount, err := primitive.ParseDecimal128("1234.50")
	require.NoError(t, err)
	when := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)

	doc := bson.M{
		"_id":          oid,
		"customerName": "李四",
		"amount":       amount,
		"createdAt":    primitive.NewDateTimeFromTime(when),
		"contact":      bson.M{"phone": "13800000000", "email": "li@example.com"},
		"recipients":   bson.A{"u1", "ALL"},
		"meta":         bson.D{{Key: "source", Value: "legacy"}},
	}

	flat := FlattenDocument(doc)
	assert.Equal(t, oid.Hex(), flat["_id"])
	assert.Equal(t, "1234.50", flat["amount"])
	assert.Equal(t, when, flat["createdAt"])
	assert.Equal(t, map[string]any{"phone": "13800000000", "email": "li@example.com"}, flat["contact"])
	assert.Equal(t, []any{"u1", "ALL"}, flat["recipients"])
	assert.Equal(t, map[string]any{"source": "legacy"}, flat["meta"])

	cb, err := normalizer.NormalizeCallback(flat)
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), cb.ID)
	assert.Equal(t, "13800000000", cb.Contact.Phone)
}

func TestToDocumentMovesID(t *testing.T) {
	doc, err := toDocument(&models.Notification{ID: "n1", Title: "hi", Recipients: []string{"ALL"}})
	require.NoError(t, err)
	assert.Equal(t, "n1", doc["_id"])
	assert.NotContains(t, doc, "id")
}

func TestLegacyCSVProvider(t *testing.T) {
	dir := t.TempDir()
	content := "deal_ref,customer_name,amount_paid,sales_agent_id,sales_team\n" +
		"L-1,王五,\"1,200.00\",u2,t1\n" +
		"L-2,,300,u2,t1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deals.csv"), []byte(content), 0o644))

	p := NewLegacyCSVProvider(dir)
	rows, err := p.Fetch(context.Background(), models.EntityDeals)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "L-1", rows[0]["deal_ref"])

	deals, dropped := normalizer.Deals(rows)
	assert.Equal(t, 1, dropped)
	require.Len(t, deals, 1)
	assert.True(t, deals[0].AmountPaid.Equal(decimal.NewFromInt(1200)))

	// 未导出的实体返回空集
	rows, err = p.Fetch(context.Background(), models.EntityCallbacks)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLegacyWatcherReportsEntity(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan models.EntityType, 8)
	w, err := WatchLegacyDir(dir, func(e models.EntityType) { changed <- e })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "callbacks.csv"), []byte("name,phone\n"), 0o644))

	select {
	case e := <-changed:
		assert.Equal(t, models.EntityCallbacks, e)
	case <-time.After(3 * time.Second):
		t.Fatal("没有收到目录变化通知")
	}
}

func TestEntityForFile(t *testing.T) {
	e, ok := entityForFile("/data/Deals.CSV")
	assert.True(t, ok)
	assert.Equal(t, models.EntityDeals, e)

	_, ok = entityForFile("/data/analytics.csv")
	assert.False(t, ok)
	_, ok = entityForFile("/data/deals.csv.swp")
	assert.False(t, ok)
}

func TestGuardTimeout(t *testing.T) {
	mem := NewMemoryProvider("slow")
	mem.Block(models.EntityCallbacks, true)
	g := Guard(mem, GuardConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := g.Fetch(context.Background(), models.EntityCallbacks)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.Equal(t, "timeout", models.ClassifyProviderError(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuardPassesThroughFailure(t *testing.T) {
	boom := errors.New("connection refused")
	mem := NewMemoryProvider("db")
	mem.Fail(models.EntityDeals, boom)
	g := Guard(mem, GuardConfig{Timeout: time.Second, RatePerSecond: 100})

	_, err := g.Fetch(context.Background(), models.EntityDeals)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "provider_unavailable", models.ClassifyProviderError(err))
}

func TestRegistryFetchAllKeepsOrder(t *testing.T) {
	primary := NewMemoryProvider("primary")
	primary.Seed(models.EntityDeals, models.RawRecord{"id": "a"})
	secondary := NewMemoryProvider("secondary")
	secondary.Fail(models.EntityDeals, errors.New("down"))
	tertiary := NewMemoryProvider("tertiary")
	tertiary.Seed(models.EntityDeals, models.RawRecord{"id": "b"})

	r := NewRegistry()
	r.Register(models.EntityDeals, primary)
	r.Register(models.EntityDeals, secondary)
	r.Register(models.EntityDeals, tertiary)

	results := r.FetchAll(context.Background(), models.EntityDeals)
	require.Len(t, results, 3)
	assert.Equal(t, "primary", results[0].Source)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "secondary", results[1].Source)
	assert.Error(t, results[1].Err)
	assert.Equal(t, "b", results[2].Records[0]["id"])

	results = r.FetchAll(context.Background(), models.EntityTargets)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, models.ErrProviderUnavailable)

	_, err := r.Writer(models.EntityDeals)
	assert.ErrorIs(t, err, models.ErrReadOnly)
}

func TestMemoryProviderUpdate(t *testing.T) {
	mem := NewMemoryProvider("mem")
	ctx := context.Background()
	require.NoError(t, mem.Insert(ctx, models.EntityCallbacks, &models.Callback{ID: "c1", Status: models.CallbackPending}))
	require.NoError(t, mem.Update(ctx, models.EntityCallbacks, "c1", &models.Callback{ID: "c1", Status: models.CallbackContacted}))

	rows, err := mem.Fetch(ctx, models.EntityCallbacks)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "contacted", rows[0]["status"])

	err = mem.Update(ctx, models.EntityCallbacks, "c9", &models.Callback{ID: "c9"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRegistrySourceWriter(t *testing.T) {
	primary := NewMemoryProvider("primary")
	document := NewMemoryProvider("document")
	legacy := NewLegacyCSVProvider(t.TempDir())

	r := NewRegistry()
	r.Register(models.EntityCallbacks, Guard(primary, GuardConfig{}))
	r.Register(models.EntityCallbacks, Guard(document, GuardConfig{}))
	r.Register(models.EntityCallbacks, Guard(legacy, GuardConfig{}))

	w, ok := r.SourceWriter(models.EntityCallbacks, "document")
	require.True(t, ok)
	assert.Same(t, document, w)

	// CSV导出只读
	_, ok = r.SourceWriter(models.EntityCallbacks, legacy.Name())
	assert.False(t, ok)
	_, ok = r.SourceWriter(models.EntityCallbacks, "missing")
	assert.False(t, ok)
	_, ok = r.SourceWriter(models.EntityDeals, "document")
	assert.False(t, ok)
}
