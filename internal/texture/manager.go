// Package texture manages textures and render targets.
//
// Every texture keeps its decoded image on the CPU so its GPU copy can be
// dropped at any time: on eviction when the memory budget is exceeded, on
// a group release, or when the device is lost. GPU copies are created
// lazily by Acquire. Render targets have no CPU image; they are created
// eagerly, never evicted, and recreated after a device reset.
package texture

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"

	"github.com/katze7514/ManaGameFramework-sub000/device"
	"github.com/katze7514/ManaGameFramework-sub000/internal/cache"
)

// Errors returned by Manager.
var (
	ErrDuplicateName   = errors.New("texture: name already registered")
	ErrNotFound        = errors.New("texture: not registered")
	ErrBudgetExceeded  = errors.New("texture: memory budget exceeded")
	ErrTooManyTextures = errors.New("texture: device texture limit reached")
	ErrInvalidSize     = errors.New("texture: invalid size")
	ErrRenderTarget    = errors.New("texture: render target cannot be updated")
	ErrManagerClosed   = errors.New("texture: manager closed")
)

// Default limits.
const (
	// DefaultBudget is the default GPU memory budget (256 MB).
	DefaultBudget = 256 << 20

	// MinBudget is the smallest accepted budget (16 MB).
	MinBudget = 16 << 20

	bytesPerPixel = 4
)

// Config configures a Manager.
type Config struct {
	// Budget is the GPU memory budget in bytes for sampled textures.
	// Values below MinBudget select DefaultBudget.
	Budget uint64

	// Reserved is the expected number of textures.
	Reserved int

	// MaxDimension is the largest texture side; larger images are
	// downscaled. 0 takes the device limit.
	MaxDimension int
}

// Info describes a registered texture.
type Info struct {
	ID       uint32
	Name     string
	Group    string
	Width    int
	Height   int
	Target   bool
	Priority int
	Resident bool
}

// Stats reports residency statistics.
type Stats struct {
	Registered int
	Resident   int
	UsedBytes  uint64
	Budget     uint64
	Evictions  uint64
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("registered", s.Registered),
		slog.Int("resident", s.Resident),
		slog.Uint64("used_bytes", s.UsedBytes),
		slog.Uint64("budget", s.Budget),
		slog.Uint64("evictions", s.Evictions),
	)
}

type entry struct {
	info   Info
	image  *image.RGBA
	handle device.Handle
	size   uint64
	node   *cache.Node[uint32]
}

// Manager registers textures by name and keeps their GPU copies within a
// memory budget.
//
// Lookups by name are safe for concurrent use. Every other method calls the
// device and must run on the render goroutine.
type Manager struct {
	mu sync.RWMutex

	dev device.Device
	log *slog.Logger

	byName  map[string]uint32
	entries map[uint32]*entry
	nextID  uint32

	lru       cache.List[uint32]
	pinned    map[uint32]struct{}
	budget    uint64
	used      uint64
	evictions uint64
	maxDim    int
	maxCount  int
	closed    bool
}

// New creates a manager creating textures on dev.
func New(dev device.Device, cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	budget := cfg.Budget
	if budget < MinBudget {
		budget = DefaultBudget
	}
	caps := dev.Capabilities()
	maxDim := cfg.MaxDimension
	if limit := int(caps.Limits.MaxTextureDimension2D); limit > 0 && (maxDim <= 0 || maxDim > limit) {
		maxDim = limit
	}
	reserved := max(cfg.Reserved, 0)
	return &Manager{
		dev:      dev,
		log:      log,
		byName:   make(map[string]uint32, reserved),
		entries:  make(map[uint32]*entry, reserved),
		pinned:   make(map[uint32]struct{}),
		budget:   budget,
		maxDim:   maxDim,
		maxCount: caps.MaxTextures,
	}
}

// ID returns the id registered for name.
func (m *Manager) ID(name string) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[name]
	return id, ok
}

// Lookup returns the description of id.
func (m *Manager) Lookup(id uint32) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return Info{}, false
	}
	info := e.info
	info.Resident = e.handle != 0
	return info, true
}

// Group returns the ids tagged with group, ascending.
func (m *Manager) Group(group string) []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []uint32
	for id, e := range m.entries {
		if e.info.Group == group {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// AddImage registers a sampled texture. The manager takes ownership of img.
// The GPU copy is created on first Acquire.
func (m *Manager) AddImage(name, group string, img *image.RGBA) (uint32, error) {
	if img == nil || img.Rect.Empty() {
		return 0, ErrInvalidSize
	}
	img = Fit(ToRGBA(img), m.maxDim)

	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.registerLocked(name, group, img.Rect.Dx(), img.Rect.Dy())
	if err != nil {
		return 0, err
	}
	e.image = img
	return e.info.ID, nil
}

// AddFile decodes the image at path and registers it as AddImage does.
func (m *Manager) AddFile(name, group, path string) (uint32, error) {
	img, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	return m.AddImage(name, group, img)
}

// AddTarget registers a render target and creates it on the device.
func (m *Manager) AddTarget(name, group string, width, height, priority int) (uint32, error) {
	if width <= 0 || height <= 0 || (m.maxDim > 0 && (width > m.maxDim || height > m.maxDim)) {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.registerLocked(name, group, width, height)
	if err != nil {
		return 0, err
	}
	e.info.Target = true
	e.info.Priority = priority
	if err := m.createLocked(e); err != nil {
		m.unregisterLocked(e)
		return 0, err
	}
	return e.info.ID, nil
}

func (m *Manager) registerLocked(name, group string, w, h int) (*entry, error) {
	if m.closed {
		return nil, ErrManagerClosed
	}
	if _, dup := m.byName[name]; dup {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if m.maxCount > 0 && len(m.entries) >= m.maxCount {
		return nil, ErrTooManyTextures
	}
	m.nextID++
	e := &entry{
		info: Info{ID: m.nextID, Name: name, Group: group, Width: w, Height: h},
		size: uint64(w) * uint64(h) * bytesPerPixel,
	}
	m.byName[name] = e.info.ID
	m.entries[e.info.ID] = e
	return e, nil
}

// Update replaces the image of a sampled texture. Its GPU copy is dropped
// and uploaded again on the next Acquire.
func (m *Manager) Update(id uint32, img *image.RGBA) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.info.Target {
		return ErrRenderTarget
	}
	m.dropLocked(e)
	e.image = img
	e.info.Width, e.info.Height = img.Rect.Dx(), img.Rect.Dy()
	e.size = uint64(e.info.Width) * uint64(e.info.Height) * bytesPerPixel
	return nil
}

// Acquire returns the device handle of id, uploading it if needed, and
// marks it most recently used.
func (m *Manager) Acquire(id uint32) (device.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrManagerClosed
	}
	e, ok := m.entries[id]
	if !ok {
		return 0, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if e.handle != 0 {
		m.lru.Touch(e.node)
		return e.handle, nil
	}
	if !e.info.Target {
		if e.size > m.budget {
			return 0, fmt.Errorf("%w: %q needs %d bytes, budget %d", ErrBudgetExceeded, e.info.Name, e.size, m.budget)
		}
		m.evictLocked(e.size, id)
	}
	if err := m.createLocked(e); err != nil {
		return 0, err
	}
	return e.handle, nil
}

func (m *Manager) createLocked(e *entry) error {
	desc := device.SampledTexture(e.info.Name, e.info.Width, e.info.Height)
	if e.info.Target {
		desc = device.RenderTarget(e.info.Name, e.info.Width, e.info.Height)
	}
	h, err := m.dev.CreateTexture(desc, e.image)
	if err != nil {
		return fmt.Errorf("texture: create %q: %w", e.info.Name, err)
	}
	e.handle = h
	if !e.info.Target {
		e.node = m.lru.PushFront(e.info.ID)
		m.used += e.size
	}
	return nil
}

// dropLocked destroys the GPU copy of e and keeps it registered.
func (m *Manager) dropLocked(e *entry) {
	if e.handle == 0 {
		return
	}
	m.dev.DestroyResource(e.handle)
	e.handle = 0
	if e.node != nil {
		m.lru.Remove(e.node)
		e.node = nil
		m.used -= e.size
	}
}

func (m *Manager) unregisterLocked(e *entry) {
	m.dropLocked(e)
	delete(m.pinned, e.info.ID)
	delete(m.entries, e.info.ID)
	delete(m.byName, e.info.Name)
}

// Release drops the GPU copy of id; it stays registered.
// Render targets are not released.
func (m *Manager) Release(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok && !e.info.Target {
		m.dropLocked(e)
	}
}

// Remove unregisters id and destroys its GPU copy.
func (m *Manager) Remove(id uint32) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	m.unregisterLocked(e)
	return e.info, nil
}

// EvictIfOverBudget drops least recently used GPU copies until the
// resident textures fit the budget and returns how many were dropped.
func (m *Manager) EvictIfOverBudget() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked(0, 0)
}

// Pin keeps id resident until UnpinAll. Textures drawn in the current
// frame are pinned so uploading a later texture cannot evict them.
func (m *Manager) Pin(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; ok {
		m.pinned[id] = struct{}{}
	}
}

// UnpinAll makes every pinned texture evictable again.
func (m *Manager) UnpinAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.pinned)
}

// evictLocked drops textures until need more bytes fit. keep and pinned
// textures are never evicted; the budget may be exceeded when only they
// remain.
func (m *Manager) evictLocked(need uint64, keep uint32) int {
	n := 0
	skip := func(id uint32) bool {
		_, pinned := m.pinned[id]
		return id == keep || pinned
	}
	for m.used+need > m.budget {
		node := m.lru.Back(skip)
		if node == nil {
			break
		}
		e := m.entries[node.Key]
		m.log.Debug("texture: evict", slog.String("name", e.info.Name), slog.Uint64("bytes", e.size))
		m.dropLocked(e)
		m.evictions++
		n++
	}
	return n
}

// InvalidateAll drops every GPU copy, render targets included.
// It is called when the device is lost.
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.handle != 0 {
			m.dev.DestroyResource(e.handle)
			e.handle = 0
		}
		e.node = nil
	}
	m.lru.Clear()
	m.used = 0
}

// RecreateAll creates every render target again after a device reset.
// Sampled textures are uploaded again on their next Acquire.
func (m *Manager) RecreateAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint32, 0, len(m.entries))
	for id, e := range m.entries {
		if e.info.Target && e.handle == 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := m.createLocked(m.entries[id]); err != nil {
			return err
		}
	}
	return nil
}

// Targets returns the registered render targets, ascending by id.
func (m *Manager) Targets() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Info
	for _, e := range m.entries {
		if e.info.Target {
			info := e.info
			info.Resident = e.handle != 0
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b Info) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Stats returns residency statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Registered: len(m.entries),
		Resident:   m.lru.Len(),
		UsedBytes:  m.used,
		Budget:     m.budget,
		Evictions:  m.evictions,
	}
}

// Close destroys every GPU copy and unregisters everything.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, e := range m.entries {
		m.dropLocked(e)
	}
	clear(m.entries)
	clear(m.byName)
	m.lru.Clear()
	m.used = 0
	m.closed = true
}
