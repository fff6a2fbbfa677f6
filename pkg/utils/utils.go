// Package utils 提供雪花 ID、JSON 序列化与抖动时长等通用工具
package utils

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"
)

// SnowflakeID 雪花算法 ID 生成器
type SnowflakeID struct {
	mu        sync.Mutex
	timestamp int64
	sequence  int64
	nodeID    int64
}

// NewSnowflakeID 创建雪花 ID 生成器
func NewSnowflakeID(nodeID int64) *SnowflakeID {
	return &SnowflakeID{
		timestamp: 0,
		sequence:  0,
		nodeID:    nodeID & 0x3FF, // 10 bits
	}
}

// Generate 生成雪花 ID
func (s *SnowflakeID) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & 0xFFF // 12 bits
		if s.sequence == 0 {
			// 等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	// 组合 ID：timestamp(41 bits) + nodeID(10 bits) + sequence(12 bits)
	return (now << 22) | (s.nodeID << 12) | s.sequence
}

// ToJSON 序列化为 JSON 字符串
func ToJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// FromJSON 从 JSON 字符串反序列化
func FromJSON(data string, v interface{}) error {
	return json.Unmarshal([]byte(data), v)
}

// Jitter 在 base 附近返回 ±ratio 范围内的随机时长
func Jitter(base time.Duration, ratio float64) time.Duration {
	if ratio <= 0 {
		return base
	}
	delta := float64(base) * ratio
	return time.Duration(float64(base) - delta + rand.Float64()*2*delta)
}
