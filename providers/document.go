package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sales_dashboard/models"
)

// defaultCollections 实体类型到文档库集合名的映射
var defaultCollections = map[models.EntityType]string{
	models.EntityNotifications: "notifications",
	models.EntityCallbacks:     "callbacks",
}

// DocumentProvider 文档库数据源
type DocumentProvider struct {
	db          *mongo.Database
	collections map[models.EntityType]string
}

// ConnectMongo 连接文档库并确认可用
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("连接文档库失败: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("文档库不可用: %w", err)
	}
	return client, client.Database(database), nil
}

// NewDocumentProvider 创建文档库数据源
func NewDocumentProvider(db *mongo.Database) *DocumentProvider {
	collections := make(map[models.EntityType]string, len(defaultCollections))
	for k, v := range defaultCollections {
		collections[k] = v
	}
	return &DocumentProvider{db: db, collections: collections}
}

// Name 数据源名称
func (p *DocumentProvider) Name() string {
	return "document"
}

// Fetch 读取集合中的全部文档
func (p *DocumentProvider) Fetch(ctx context.Context, entity models.EntityType) ([]models.RawRecord, error) {
	name, ok := p.collections[entity]
	if !ok {
		return nil, fmt.Errorf("文档库不提供%s: %w", entity, models.ErrProviderUnavailable)
	}

	cursor, err := p.db.Collection(name).Find(ctx, bson.D{})
	if err != nil {
		return nil, wrapMongoError(ctx, name, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapMongoError(ctx, name, err)
	}

	records := make([]models.RawRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, FlattenDocument(doc))
	}
	return records, nil
}

// Insert 插入规范记录，id写入_id
func (p *DocumentProvider) Insert(ctx context.Context, entity models.EntityType, record any) error {
	name, ok := p.collections[entity]
	if !ok {
		return fmt.Errorf("文档库不提供%s: %w", entity, models.ErrReadOnly)
	}
	doc, err := toDocument(record)
	if err != nil {
		return err
	}
	if _, err := p.db.Collection(name).InsertOne(ctx, doc); err != nil {
		return wrapMongoError(ctx, name, err)
	}
	return nil
}

// Update 按_id替换文档
func (p *DocumentProvider) Update(ctx context.Context, entity models.EntityType, id string, record any) error {
	name, ok := p.collections[entity]
	if !ok {
		return fmt.Errorf("文档库不提供%s: %w", entity, models.ErrReadOnly)
	}
	doc, err := toDocument(record)
	if err != nil {
		return err
	}
	res, err := p.db.Collection(name).ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return wrapMongoError(ctx, name, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s %s: %w", name, id, models.ErrNotFound)
	}
	return nil
}

// toDocument 规范结构转文档，id改存为_id
func toDocument(record any) (bson.M, error) {
	raw, err := toRawRecord(record)
	if err != nil {
		return nil, err
	}
	doc := bson.M{}
	for k, v := range raw {
		if k == "id" {
			doc["_id"] = v
			continue
		}
		doc[k] = v
	}
	return doc, nil
}

// FlattenDocument 把文档中的BSON专有类型转换成普通Go值
// ObjectID转十六进制字符串，DateTime转time.Time，Decimal128转字符串，嵌套文档转map[string]any
func FlattenDocument(doc bson.M) models.RawRecord {
	out := make(models.RawRecord, len(doc))
	for k, v := range doc {
		out[k] = flattenValue(v)
	}
	return out
}

func flattenValue(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case primitive.Decimal128:
		return t.String()
	case bson.M:
		return map[string]any(FlattenDocument(t))
	case map[string]any:
		return map[string]any(FlattenDocument(bson.M(t)))
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = flattenValue(e.Value)
		}
		return m
	case bson.A:
		return flattenArray(t)
	case []any:
		return flattenArray(t)
	}
	return v
}

func flattenArray(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, flattenValue(item))
	}
	return out
}

// wrapMongoError 统一文档库错误
func wrapMongoError(ctx context.Context, collection string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", collection, models.ErrNotFound)
	case ctx.Err() != nil || mongo.IsTimeout(err):
		return fmt.Errorf("%s: %w", collection, models.ErrTimeout)
	}
	return fmt.Errorf("%s: %w: %v", collection, models.ErrProviderUnavailable, err)
}
