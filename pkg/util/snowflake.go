package util

import (
	"fmt"
	"sync"
	"time"
)

// Snowflake 雪花算法 ID 生成器。
// 64 位布局：1 位符号 | 41 位时间戳 | 5 位数据中心 | 5 位机器 | 12 位序列号。
// 同一进程内并发安全，生成的 ID 单调递增。
type Snowflake struct {
	mu           sync.Mutex
	workerID     int64
	datacenterID int64
	sequence     int64
	lastStamp    int64
}

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	snowflakeEpoch = int64(1704038400000)

	workerIDBits     = int64(5)
	datacenterIDBits = int64(5)
	sequenceBits     = int64(12)

	maxWorkerID     = -1 ^ (-1 << workerIDBits)
	maxDatacenterID = -1 ^ (-1 << datacenterIDBits)
	sequenceMask    = -1 ^ (-1 << sequenceBits)

	workerIDShift     = sequenceBits
	datacenterIDShift = sequenceBits + workerIDBits
	timestampShift    = sequenceBits + workerIDBits + datacenterIDBits
)

// NewSnowflake 创建生成器，workerID/datacenterID 取值范围均为 0-31
func NewSnowflake(workerID, datacenterID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("worker id must be in [0, %d]", maxWorkerID)
	}
	if datacenterID < 0 || datacenterID > maxDatacenterID {
		return nil, fmt.Errorf("datacenter id must be in [0, %d]", maxDatacenterID)
	}
	return &Snowflake{workerID: workerID, datacenterID: datacenterID, lastStamp: -1}, nil
}

// NextID 生成下一个 ID。时钟回拨时返回错误而不是生成重复 ID。
func (s *Snowflake) NextID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.lastStamp {
		return 0, fmt.Errorf("clock moved backwards, refusing to generate id for %dms", s.lastStamp-now)
	}

	if now == s.lastStamp {
		s.sequence = (s.sequence + 1) & sequenceMask
		if s.sequence == 0 {
			// 当前毫秒序列号用尽，自旋等待下一毫秒
			for now <= s.lastStamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastStamp = now

	id := (now-snowflakeEpoch)<<timestampShift |
		s.datacenterID<<datacenterIDShift |
		s.workerID<<workerIDShift |
		s.sequence
	return id, nil
}
