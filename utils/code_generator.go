package utils

import (
	"crypto/rand"
	mathrand "math/rand"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// 字符集常量
const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// 全局原子计数器，用于确保同一毫秒内生成的编号不重复
var codeCounter int64

// GenerateRandomCode 生成指定长度的随机字符码
func GenerateRandomCode(length int) string {
	code := make([]byte, length)

	// 使用安全的随机数生成
	_, err := rand.Read(code)
	if err != nil {
		// 安全随机数生成失败时回退到math/rand
		r := mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
		for i := range code {
			code[i] = charset[r.Intn(len(charset))]
		}
		return string(code)
	}

	// 将随机字节映射到字符集
	for i := range code {
		code[i] = charset[int(code[i])%len(charset)]
	}

	return string(code)
}

// GenerateDealRef 生成成交编号
// 格式 DL-YYYYMMDD-<计数器36进制><4位随机>，日期取签约时间
func GenerateDealRef(at time.Time) string {
	counter := atomic.AddInt64(&codeCounter, 1)
	return "DL-" + at.Format("20060102") + "-" +
		strings.ToUpper(strconv.FormatInt(counter, 36)) + GenerateRandomCode(4)
}
