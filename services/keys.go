package services

import (
	"strconv"

	"sales_dashboard/models"
)

// usersKey 用户参考数据的缓存键
const usersKey = "users:all"

// EntityPrefix 实体类型的缓存键前缀，写操作按前缀失效
func EntityPrefix(entity models.EntityType) string {
	return string(entity) + ":"
}

// setKey 过滤后完整记录集的缓存键
// 格式 <entity>:<role>:<user>:<team>:<from>:<to>
func setKey(entity models.EntityType, req models.Requester, r DateRange) string {
	return EntityPrefix(entity) + req.Key() + ":" + r.KeyPart()
}

// pageKey 分页结果的缓存键，在记录集键后追加limit和offset
func pageKey(set string, limit, offset int) string {
	return set + ":" + strconv.Itoa(limit) + ":" + strconv.Itoa(offset)
}

// analyticsKey 统计结果的缓存键
func analyticsKey(req models.Requester, r DateRange) string {
	return EntityPrefix(models.EntityAnalytics) + req.Key() + ":" + r.KeyPart()
}
