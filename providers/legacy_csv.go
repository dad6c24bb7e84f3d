package providers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"sales_dashboard/models"
)

// LegacyCSVProvider 遗留系统导出的CSV数据源（只读）
// 每种实体对应目录下的<entity>.csv，首行为字段名
type LegacyCSVProvider struct {
	dir string
}

// NewLegacyCSVProvider 创建CSV数据源
func NewLegacyCSVProvider(dir string) *LegacyCSVProvider {
	return &LegacyCSVProvider{dir: dir}
}

// Name 数据源名称
func (p *LegacyCSVProvider) Name() string {
	return "legacy-csv"
}

// Dir 导出目录
func (p *LegacyCSVProvider) Dir() string {
	return p.dir
}

// Fetch 读取实体对应的CSV文件
// 文件不存在表示遗留系统没有导出该实体，返回空集
func (p *LegacyCSVProvider) Fetch(ctx context.Context, entity models.EntityType) ([]models.RawRecord, error) {
	path := filepath.Join(p.dir, string(entity)+".csv")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.RawRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, models.ErrProviderUnavailable, err)
	}
	defer f.Close()

	records, err := readCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// readCSV 解析CSV，字段数不一致的行按已有列处理
func readCSV(ctx context.Context, r io.Reader) ([]models.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []models.RawRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 读取表头失败: %v", models.ErrProviderUnavailable, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	records := make([]models.RawRecord, 0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, models.ErrTimeout
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
		}

		rec := make(models.RawRecord, len(header))
		for i, name := range header {
			if name == "" || i >= len(row) {
				continue
			}
			rec[name] = row[i]
		}
		records = append(records, rec)
	}
	return records, nil
}

// LegacyWatcher 监听CSV导出目录，文件变化时回调对应的实体类型
type LegacyWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func(models.EntityType)

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// WatchLegacyDir 开始监听目录
func WatchLegacyDir(dir string, onChange func(models.EntityType)) (*LegacyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建目录监听失败: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("监听目录%s失败: %w", dir, err)
	}

	lw := &LegacyWatcher{watcher: w, onChange: onChange}
	lw.wg.Add(1)
	go lw.loop()
	return lw, nil
}

func (lw *LegacyWatcher) loop() {
	defer lw.wg.Done()
	for {
		select {
		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if entity, ok := entityForFile(event.Name); ok {
				lw.onChange(entity)
			}
		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("CSV目录监听出错: %v", err)
		}
	}
}

// Close 停止监听
func (lw *LegacyWatcher) Close() error {
	var err error
	lw.closeOnce.Do(func() {
		err = lw.watcher.Close()
	})
	lw.wg.Wait()
	return err
}

// entityForFile 由文件名推出实体类型
func entityForFile(path string) (models.EntityType, bool) {
	base := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(base), ".csv") {
		return "", false
	}
	entity := models.EntityType(strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base))))
	switch entity {
	case models.EntityDeals, models.EntityCallbacks, models.EntityTargets,
		models.EntityNotifications, models.EntityUsers:
		return entity, true
	}
	return "", false
}
