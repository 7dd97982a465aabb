// Package cache 按源文件修改时间缓存解析结果，并支持显式失效
package cache

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Observer 缓存命中/重算回调，用于指标统计
type Observer interface {
	Hit(name string)
	Miss(name string)
	Loaded(name string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) Hit(string)                   {}
func (nopObserver) Miss(string)                  {}
func (nopObserver) Loaded(string, time.Duration) {}

// Entry 可失效的缓存项
type Entry interface {
	Name() string
	Paths() []string
	Invalidate()
}

// fingerprint 文件指纹：修改时间 + 大小，不存在的文件为零值
type fingerprint struct {
	mtime int64
	size  int64
}

func stat(paths []string) []fingerprint {
	fps := make([]fingerprint, len(paths))
	for i, p := range paths {
		if info, err := os.Stat(p); err == nil {
			fps[i] = fingerprint{mtime: info.ModTime().UnixNano(), size: info.Size()}
		}
	}
	return fps
}

func sameFingerprints(a, b []fingerprint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Memo 单个提取器的缓存：源文件指纹不变时返回上次结果
type Memo[T any] struct {
	name     string
	paths    []string
	load     func() T
	observer Observer
	logger   *zap.Logger

	mu    sync.Mutex
	valid bool
	fps   []fingerprint
	value T
	loads atomic.Int64
}

// NewMemo 创建缓存项，load 不返回错误（提取器自行降级）
func NewMemo[T any](name string, paths []string, load func() T, logger *zap.Logger) *Memo[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memo[T]{
		name:     name,
		paths:    paths,
		load:     load,
		observer: nopObserver{},
		logger:   logger,
	}
}

// WithObserver 设置指标回调
func (m *Memo[T]) WithObserver(o Observer) *Memo[T] {
	if o != nil {
		m.observer = o
	}
	return m
}

func (m *Memo[T]) Name() string    { return m.name }
func (m *Memo[T]) Paths() []string { return m.paths }

// Loads 实际解析次数
func (m *Memo[T]) Loads() int64 { return m.loads.Load() }

// Get 返回缓存结果，源文件变化或已失效时重算
func (m *Memo[T]) Get() T {
	fps := stat(m.paths)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid && sameFingerprints(m.fps, fps) {
		m.observer.Hit(m.name)
		m.logger.Debug("Cache hit", zap.String("cache", m.name))
		return m.value
	}

	m.observer.Miss(m.name)
	start := time.Now()
	value := m.load()
	elapsed := time.Since(start)

	m.value = value
	m.fps = fps
	m.valid = true
	m.loads.Add(1)
	m.observer.Loaded(m.name, elapsed)
	m.logger.Info("Cache reloaded", zap.String("cache", m.name), zap.Duration("elapsed", elapsed))
	return value
}

// Invalidate 显式失效；同进程写文件后必须调用，mtime 精度不足以保证能检测到变化
func (m *Memo[T]) Invalidate() {
	m.mu.Lock()
	m.valid = false
	m.mu.Unlock()
}

// Registry 缓存项集合，按名称或源文件失效
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRegistry 创建缓存注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// Register 注册缓存项
func (r *Registry) Register(entries ...Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
}

// Names 已注册的缓存名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name()
	}
	return names
}

// Invalidate 失效指定名称的缓存，names 为空时全部失效，返回实际失效的名称
func (r *Registry) Invalidate(names ...string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var done []string
	for _, e := range r.entries {
		if len(names) == 0 || want[e.Name()] {
			e.Invalidate()
			done = append(done, e.Name())
		}
	}
	return done
}

// InvalidatePath 失效所有依赖该文件的缓存
func (r *Registry) InvalidatePath(path string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var done []string
	for _, e := range r.entries {
		for _, p := range e.Paths() {
			if p == path {
				e.Invalidate()
				done = append(done, e.Name())
				break
			}
		}
	}
	return done
}
