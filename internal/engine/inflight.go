package engine

import "sync"

// inflightSet 是并发安全的在途集合。加入即获得独占权，重复加入失败。
// 原始实现用一个全局布尔串行化了所有用户的确认轮询；这里改为按键
// （用户或交易签名）互斥，互不相关的交易可以并行确认。
type inflightSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflightSet() *inflightSet {
	return &inflightSet{keys: make(map[string]struct{})}
}

// tryAcquire 原子地测试并占用一个键。
func (s *inflightSet) tryAcquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// release 释放键。释放未占用的键是无害的空操作。
func (s *inflightSet) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}
