package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CounterStore 分配单调递增的 clientEventId，并在客户端本地持久化下一个值
type CounterStore interface {
	Next() (int64, error)
}

// MemoryCounter 进程内计数器，从 1 开始
type MemoryCounter struct {
	mu   sync.Mutex
	next int64
}

// NewMemoryCounter 创建从 1 开始的计数器
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{next: 1}
}

// Next 实现 CounterStore
func (c *MemoryCounter) Next() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next < 1 {
		c.next = 1
	}
	id := c.next
	c.next++
	return id, nil
}

type counterFile struct {
	NextClientEventID int64 `json:"nextClientEventId"`
}

// FileCounter 把 nextClientEventId 保存在 JSON 文件中，进程重启后继续递增
type FileCounter struct {
	mu     sync.Mutex
	path   string
	next   int64
	loaded bool
}

// NewFileCounter 创建基于文件的计数器，文件在第一次分配时读取
func NewFileCounter(path string) *FileCounter {
	return &FileCounter{path: path}
}

// Next 实现 CounterStore。每次分配都先落盘再返回。
func (c *FileCounter) Next() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		if err := c.load(); err != nil {
			return 0, err
		}
		c.loaded = true
	}

	id := c.next
	if err := c.save(id + 1); err != nil {
		return 0, err
	}
	c.next = id + 1
	return id, nil
}

func (c *FileCounter) load() error {
	c.next = 1
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read counter file: %w", err)
	}
	var f counterFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode counter file: %w", err)
	}
	if f.NextClientEventID > 1 {
		c.next = f.NextClientEventID
	}
	return nil
}

func (c *FileCounter) save(next int64) error {
	data, err := json.Marshal(counterFile{NextClientEventID: next})
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create counter dir: %w", err)
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write counter file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace counter file: %w", err)
	}
	return nil
}
