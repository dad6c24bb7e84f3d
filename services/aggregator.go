// Package services 实现看板核心的聚合读取和写操作
// 读取路径：数据源并行读取 → 规范化 → 补全 → 日期筛选 → 角色过滤 → 缓存
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"sales_dashboard/cache"
	"sales_dashboard/metrics"
	"sales_dashboard/models"
	"sales_dashboard/normalizer"
	"sales_dashboard/providers"
	"sales_dashboard/rolefilter"
)

const (
	// MaxLimit 单次请求每种实体最多返回的记录数
	MaxLimit = 1000

	defaultListTTL      = 30 * time.Second
	defaultReferenceTTL = 300 * time.Second
	defaultConcurrency  = 8
)

// Config 聚合器配置
type Config struct {
	Registry     *providers.Registry
	Cache        *cache.Store
	Metrics      *metrics.Collector
	Clock        clock.Clock
	ListTTL      time.Duration // 列表数据缓存时间
	ReferenceTTL time.Duration // 用户等参考数据缓存时间
	Concurrency  int           // 同时读取的实体类型数
}

// Aggregator 统一数据聚合器
type Aggregator struct {
	registry     *providers.Registry
	cache        *cache.Store
	metrics      *metrics.Collector
	clock        clock.Clock
	listTTL      time.Duration
	referenceTTL time.Duration
	concurrency  int
}

// NewAggregator 创建聚合器
func NewAggregator(cfg Config) *Aggregator {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New(cache.Config{Clock: cfg.Clock, Metrics: cfg.Metrics})
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = defaultListTTL
	}
	if cfg.ReferenceTTL <= 0 {
		cfg.ReferenceTTL = defaultReferenceTTL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Aggregator{
		registry:     cfg.Registry,
		cache:        cfg.Cache,
		metrics:      cfg.Metrics,
		clock:        cfg.Clock,
		listTTL:      cfg.ListTTL,
		referenceTTL: cfg.ReferenceTTL,
		concurrency:  cfg.Concurrency,
	}
}

// Query 聚合查询
type Query struct {
	Requester   models.Requester
	EntityTypes []models.EntityType // 为空时取默认类型
	DateRange   string
	Limit       int // <=0 表示不分页
	Offset      int
}

// Section 单个实体类型的结果
// Error非nil表示该实体的全部数据源失败，Records为空
type Section struct {
	Entity  models.EntityType    `json:"entity"`
	Records any                  `json:"records"`
	Error   *models.PartialError `json:"error"`

	total   int
	dropped int
	partial []models.PartialError
}

// Metadata 响应元数据
type Metadata struct {
	DateRange     DateRange                 `json:"dateRange"`
	Limit         int                       `json:"limit"`
	Offset        int                       `json:"offset"`
	Totals        map[models.EntityType]int `json:"totals"`
	Dropped       map[models.EntityType]int `json:"dropped"`
	PartialErrors []models.PartialError     `json:"partialErrors"`
}

// Snapshot 一次聚合的完整结果
type Snapshot struct {
	Sections []Section `json:"sections"`
	Metadata Metadata  `json:"metadata"`
}

// Data 按实体类型组织的数据，只包含请求的类型
func (s *Snapshot) Data() map[string]any {
	data := make(map[string]any, len(s.Sections))
	for _, sec := range s.Sections {
		data[string(sec.Entity)] = sec.Records
	}
	return data
}

// Failed 所有请求的实体类型都失败时为true
func (s *Snapshot) Failed() bool {
	if len(s.Sections) == 0 {
		return false
	}
	for _, sec := range s.Sections {
		if sec.Error == nil {
			return false
		}
	}
	return true
}

// Section 返回指定实体的结果
func (s *Snapshot) Section(entity models.EntityType) (Section, bool) {
	for _, sec := range s.Sections {
		if sec.Entity == entity {
			return sec, true
		}
	}
	return Section{}, false
}

// Deals 返回成交记录，未请求时为nil
func (s *Snapshot) Deals() []models.Deal {
	sec, _ := s.Section(models.EntityDeals)
	list, _ := sec.Records.([]models.Deal)
	return list
}

// Callbacks 返回回访记录
func (s *Snapshot) Callbacks() []models.Callback {
	sec, _ := s.Section(models.EntityCallbacks)
	list, _ := sec.Records.([]models.Callback)
	return list
}

// Targets 返回业绩目标
func (s *Snapshot) Targets() []models.Target {
	sec, _ := s.Section(models.EntityTargets)
	list, _ := sec.Records.([]models.Target)
	return list
}

// Notifications 返回通知
func (s *Snapshot) Notifications() []models.Notification {
	sec, _ := s.Section(models.EntityNotifications)
	list, _ := sec.Records.([]models.Notification)
	return list
}

// Analytics 返回统计，未请求或失败时为nil
func (s *Snapshot) Analytics() *Analytics {
	sec, _ := s.Section(models.EntityAnalytics)
	a, _ := sec.Records.(*Analytics)
	return a
}

// entitySet 缓存中的记录集
type entitySet struct {
	Records any // 具体类型的切片
	Total   int // 分页前的记录数
	Dropped int
	Partial []models.PartialError
}

// analyticsResult 缓存中的统计结果
type analyticsResult struct {
	Analytics *Analytics
	Partial   []models.PartialError
}

// entityFailure 某实体的全部数据源失败
type entityFailure struct {
	entity  models.EntityType
	sources []string
	err     error
}

func (f *entityFailure) Error() string {
	return fmt.Sprintf("%s读取失败(%s): %v", f.entity, strings.Join(f.sources, ","), f.err)
}

func (f *entityFailure) Unwrap() error {
	return f.err
}

// FetchUnified 聚合查询
// 单个实体失败不影响其它实体；只有参数错误会返回error
func (a *Aggregator) FetchUnified(ctx context.Context, q Query) (*Snapshot, error) {
	types := q.EntityTypes
	if len(types) == 0 {
		types = models.DefaultEntityTypes
	}
	for _, t := range types {
		if !t.IsRequestable() {
			return nil, fmt.Errorf("%w: 不支持的数据类型 %q", models.ErrValidation, t)
		}
	}
	dr, err := ParseDateRange(q.DateRange, a.clock.Now())
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePaging(q.Limit, q.Offset)

	// 合并计算的结果由多个请求共享，不随单个请求取消
	computeCtx := context.WithoutCancel(ctx)

	sections := make([]Section, len(types))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, entity := range types {
		i, entity := i, entity
		g.Go(func() error {
			sections[i] = a.section(ctx, computeCtx, entity, q.Requester, dr, limit, offset)
			return nil
		})
	}
	_ = g.Wait()

	snap := &Snapshot{
		Sections: sections,
		Metadata: Metadata{
			DateRange:     dr,
			Limit:         limit,
			Offset:        offset,
			Totals:        make(map[models.EntityType]int),
			Dropped:       make(map[models.EntityType]int),
			PartialErrors: []models.PartialError{},
		},
	}
	for _, sec := range sections {
		if sec.Entity != models.EntityAnalytics {
			snap.Metadata.Totals[sec.Entity] = sec.total
			snap.Metadata.Dropped[sec.Entity] = sec.dropped
		}
		if sec.Error != nil {
			snap.Metadata.PartialErrors = append(snap.Metadata.PartialErrors, *sec.Error)
		}
		snap.Metadata.PartialErrors = append(snap.Metadata.PartialErrors, sec.partial...)
	}
	return snap, nil
}

// normalizePaging 规范分页参数
func normalizePaging(limit, offset int) (int, int) {
	if limit < 0 {
		limit = 0
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// section 读取单个实体类型
func (a *Aggregator) section(ctx, computeCtx context.Context, entity models.EntityType, req models.Requester, dr DateRange, limit, offset int) Section {
	if entity == models.EntityAnalytics {
		return a.analyticsSection(ctx, computeCtx, req, dr)
	}

	set, err := a.page(ctx, computeCtx, entity, req, dr, limit, offset)
	if err != nil {
		log.Printf("读取%s失败: %v", entity, err)
		return Section{Entity: entity, Records: emptyRecords(entity), Error: failureOf(entity, err)}
	}
	return Section{
		Entity:  entity,
		Records: set.Records,
		total:   set.Total,
		dropped: set.Dropped,
		partial: set.Partial,
	}
}

// page 返回分页后的记录集
func (a *Aggregator) page(ctx, computeCtx context.Context, entity models.EntityType, req models.Requester, dr DateRange, limit, offset int) (entitySet, error) {
	if limit == 0 && offset == 0 {
		return a.filteredSet(ctx, computeCtx, entity, req, dr)
	}

	key := pageKey(setKey(entity, req, dr), limit, offset)
	v, err := a.cache.GetOrCompute(ctx, key, a.listTTL, func() (any, error) {
		set, err := a.filteredSet(computeCtx, computeCtx, entity, req, dr)
		if err != nil {
			return nil, err
		}
		return set.paged(limit, offset), nil
	})
	if err != nil {
		return entitySet{}, err
	}
	return v.(entitySet), nil
}

// filteredSet 返回按请求者和日期过滤后的完整记录集
func (a *Aggregator) filteredSet(ctx, computeCtx context.Context, entity models.EntityType, req models.Requester, dr DateRange) (entitySet, error) {
	v, err := a.cache.GetOrCompute(ctx, setKey(entity, req, dr), a.listTTL, func() (any, error) {
		return a.buildSet(computeCtx, entity, req, dr)
	})
	if err != nil {
		return entitySet{}, err
	}
	return v.(entitySet), nil
}

// buildSet 读取数据源并完成规范化、补全、日期筛选和角色过滤
func (a *Aggregator) buildSet(ctx context.Context, entity models.EntityType, req models.Requester, dr DateRange) (entitySet, error) {
	loaded, err := a.load(ctx, entity)
	if err != nil {
		return entitySet{}, err
	}

	var users map[string]models.User
	if entity == models.EntityDeals || entity == models.EntityCallbacks {
		users, err = a.Users(ctx)
		if err != nil {
			log.Printf("读取用户参考数据失败，跳过补全: %v", err)
		}
	}

	set := entitySet{Dropped: loaded.Dropped, Partial: loaded.Partial}
	switch records := loaded.Records.(type) {
	case []models.Deal:
		records = enrichDeals(records, users)
		records = keepInRange(records, dr, func(d models.Deal) bool { return dr.Contains(d.EffectiveDate()) })
		set.Records = rolefilter.Deals(records, req)
		set.Total = len(set.Records.([]models.Deal))
	case []models.Callback:
		records = enrichCallbacks(records, users)
		records = keepInRange(records, dr, func(c models.Callback) bool { return dr.Contains(c.EffectiveDate()) })
		set.Records = rolefilter.Callbacks(records, req)
		set.Total = len(set.Records.([]models.Callback))
	case []models.Target:
		records = keepInRange(records, dr, func(t models.Target) bool {
			start, end, ok := t.PeriodRange()
			return ok && dr.Overlaps(start, end)
		})
		set.Records = rolefilter.Targets(records, req)
		set.Total = len(set.Records.([]models.Target))
	case []models.Notification:
		records = keepInRange(records, dr, func(n models.Notification) bool { return dr.Contains(n.Timestamp) })
		set.Records = rolefilter.Notifications(records, req)
		set.Total = len(set.Records.([]models.Notification))
	default:
		return entitySet{}, fmt.Errorf("%w: 不支持的数据类型 %q", models.ErrValidation, entity)
	}
	return set, nil
}

// loadResult 合并后的规范记录
type loadResult struct {
	Records any
	Origins map[string]string // 记录id到来源数据源名称
	Dropped int
	Partial []models.PartialError
}

// load 读取实体的全部数据源并合并
// 按数据源注册顺序拼接，同一id只保留优先级最高的数据源中的记录
func (a *Aggregator) load(ctx context.Context, entity models.EntityType) (loadResult, error) {
	if a.registry == nil {
		return loadResult{}, fmt.Errorf("%s: %w", entity, models.ErrProviderUnavailable)
	}
	results := a.registry.FetchAll(ctx, entity)

	ok := make([]providers.SourceResult, 0, len(results))
	var failed []providers.SourceResult
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res)
			continue
		}
		ok = append(ok, res)
	}

	if len(ok) == 0 {
		f := &entityFailure{entity: entity}
		errs := make([]error, 0, len(failed))
		for _, res := range failed {
			f.sources = append(f.sources, res.Source)
			errs = append(errs, fmt.Errorf("%s: %w", res.Source, res.Err))
		}
		f.err = errors.Join(errs...)
		return loadResult{}, f
	}

	out := loadResult{}
	for _, res := range failed {
		log.Printf("数据源%s读取%s失败，使用其它数据源: %v", res.Source, entity, res.Err)
		out.Partial = append(out.Partial, models.PartialError{
			Entity:  entity,
			Source:  res.Source,
			Kind:    models.ClassifyProviderError(res.Err),
			Message: res.Err.Error(),
			Partial: true,
		})
	}

	switch entity {
	case models.EntityDeals:
		out.Records, out.Origins, out.Dropped = mergeSources(ok, normalizer.Deals, func(d models.Deal) string { return d.ID })
	case models.EntityCallbacks:
		out.Records, out.Origins, out.Dropped = mergeSources(ok, normalizer.Callbacks, func(c models.Callback) string { return c.ID })
	case models.EntityTargets:
		out.Records, out.Origins, out.Dropped = mergeSources(ok, normalizer.Targets, func(t models.Target) string { return t.ID })
	case models.EntityNotifications:
		out.Records, out.Origins, out.Dropped = mergeSources(ok, normalizer.Notifications, func(n models.Notification) string { return n.ID })
	case models.EntityUsers:
		out.Records, out.Origins, out.Dropped = mergeSources(ok, normalizer.Users, func(u models.User) string { return u.ID })
	default:
		return loadResult{}, fmt.Errorf("%w: 不支持的数据类型 %q", models.ErrValidation, entity)
	}
	a.metrics.Dropped(string(entity), out.Dropped)
	return out, nil
}

// mergeSources 规范化各数据源的记录并按id去重，同时记下每条记录来自哪个数据源
func mergeSources[T any](results []providers.SourceResult, normalize func([]models.RawRecord) ([]T, int), id func(T) string) ([]T, map[string]string, int) {
	origins := make(map[string]string)
	merged := make([]T, 0)
	dropped := 0
	for _, res := range results {
		records, n := normalize(res.Records)
		dropped += n
		for _, r := range records {
			key := id(r)
			if _, dup := origins[key]; dup {
				continue
			}
			origins[key] = res.Source
			merged = append(merged, r)
		}
	}
	return merged, origins, dropped
}

// Users 返回按id索引的用户参考数据
func (a *Aggregator) Users(ctx context.Context) (map[string]models.User, error) {
	v, err := a.cache.GetOrCompute(ctx, usersKey, a.referenceTTL, func() (any, error) {
		loaded, err := a.load(context.WithoutCancel(ctx), models.EntityUsers)
		if err != nil {
			return nil, err
		}
		list := loaded.Records.([]models.User)
		index := make(map[string]models.User, len(list))
		for _, u := range list {
			index[u.ID] = u
		}
		return index, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]models.User), nil
}

// analyticsSection 计算统计
// 依赖的成交、回访、目标中部分失败时用可用数据计算，并标记为部分结果
func (a *Aggregator) analyticsSection(ctx, computeCtx context.Context, req models.Requester, dr DateRange) Section {
	v, err := a.cache.GetOrCompute(ctx, analyticsKey(req, dr), a.listTTL, func() (any, error) {
		var (
			deals     []models.Deal
			callbacks []models.Callback
			targets   []models.Target
			partial   []models.PartialError
			failures  []error
			sources   []string
		)
		for _, dep := range []models.EntityType{models.EntityDeals, models.EntityCallbacks, models.EntityTargets} {
			set, err := a.filteredSet(computeCtx, computeCtx, dep, req, dr)
			if err != nil {
				failures = append(failures, err)
				sources = append(sources, string(dep))
				partial = append(partial, models.PartialError{
					Entity:  models.EntityAnalytics,
					Source:  string(dep),
					Kind:    models.ClassifyProviderError(err),
					Message: err.Error(),
					Partial: true,
				})
				continue
			}
			switch records := set.Records.(type) {
			case []models.Deal:
				deals = records
			case []models.Callback:
				callbacks = records
			case []models.Target:
				targets = records
			}
		}
		if len(failures) == 3 {
			return nil, &entityFailure{entity: models.EntityAnalytics, sources: sources, err: errors.Join(failures...)}
		}
		stats := ComputeAnalytics(deals, callbacks, targets)
		return analyticsResult{Analytics: &stats, Partial: partial}, nil
	})
	if err != nil {
		log.Printf("计算统计失败: %v", err)
		return Section{Entity: models.EntityAnalytics, Records: (*Analytics)(nil), Error: failureOf(models.EntityAnalytics, err)}
	}
	res := v.(analyticsResult)
	return Section{Entity: models.EntityAnalytics, Records: res.Analytics, partial: res.Partial}
}

// Invalidate 使实体相关的缓存失效
// 统计依赖全部列表数据，一并失效；用户变化影响成交和回访的补全
func (a *Aggregator) Invalidate(entities ...models.EntityType) {
	prefixes := map[string]struct{}{EntityPrefix(models.EntityAnalytics): {}}
	for _, e := range entities {
		prefixes[EntityPrefix(e)] = struct{}{}
		if e == models.EntityUsers {
			prefixes[EntityPrefix(models.EntityDeals)] = struct{}{}
			prefixes[EntityPrefix(models.EntityCallbacks)] = struct{}{}
		}
	}
	for p := range prefixes {
		a.cache.InvalidatePrefix(p)
	}
}

// failureOf 把实体失败转换成部分错误说明
func failureOf(entity models.EntityType, err error) *models.PartialError {
	pe := &models.PartialError{
		Entity:  entity,
		Kind:    models.ClassifyProviderError(err),
		Message: err.Error(),
	}
	var f *entityFailure
	if errors.As(err, &f) {
		pe.Source = strings.Join(f.sources, ",")
	}
	return pe
}

// emptyRecords 返回实体对应类型的空切片
func emptyRecords(entity models.EntityType) any {
	switch entity {
	case models.EntityDeals:
		return []models.Deal{}
	case models.EntityCallbacks:
		return []models.Callback{}
	case models.EntityTargets:
		return []models.Target{}
	case models.EntityNotifications:
		return []models.Notification{}
	}
	return []any{}
}

// paged 返回分页后的副本，Total保持分页前的数量
func (s entitySet) paged(limit, offset int) entitySet {
	switch records := s.Records.(type) {
	case []models.Deal:
		s.Records = pageOf(records, limit, offset)
	case []models.Callback:
		s.Records = pageOf(records, limit, offset)
	case []models.Target:
		s.Records = pageOf(records, limit, offset)
	case []models.Notification:
		s.Records = pageOf(records, limit, offset)
	}
	return s
}

func pageOf[T any](records []T, limit, offset int) []T {
	if offset >= len(records) {
		return []T{}
	}
	end := len(records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, records[offset:end])
	return out
}

// keepInRange 不限日期时原样返回
func keepInRange[T any](records []T, dr DateRange, in func(T) bool) []T {
	if dr.Unbounded() {
		return records
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		if in(r) {
			out = append(out, r)
		}
	}
	return out
}

// enrichDeals 用用户参考数据补全销售员姓名和团队
func enrichDeals(deals []models.Deal, users map[string]models.User) []models.Deal {
	if len(users) == 0 {
		return deals
	}
	for i := range deals {
		u, ok := users[deals[i].SalesAgentID]
		if !ok {
			continue
		}
		if deals[i].SalesAgentName == "" {
			deals[i].SalesAgentName = u.Name
		}
		if deals[i].SalesTeam == "" {
			deals[i].SalesTeam = u.TeamID
		}
	}
	return deals
}

// enrichCallbacks 用用户参考数据补全团队
func enrichCallbacks(callbacks []models.Callback, users map[string]models.User) []models.Callback {
	if len(users) == 0 {
		return callbacks
	}
	for i := range callbacks {
		if callbacks[i].SalesTeam != "" {
			continue
		}
		if u, ok := users[callbacks[i].SalesAgentID]; ok {
			callbacks[i].SalesTeam = u.TeamID
		}
	}
	return callbacks
}
