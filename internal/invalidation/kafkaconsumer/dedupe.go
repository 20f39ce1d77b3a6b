package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type versionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[int, uint64]
}

func newVersionDedupe(size int) *versionDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[int, uint64](size)
	return &versionDedupe{lru: c}
}

// returns true if seq is greater than the last one seen for the bottle
func (d *versionDedupe) shouldApply(bottle int, seq uint64) bool {
	if bottle == 0 || seq == 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(bottle); ok && seq <= last {
		return false
	}
	d.lru.Add(bottle, seq)
	return true
}
