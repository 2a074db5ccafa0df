package wasm

import (
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wasmengine/internal/platform"
)

const (
	// MemoryPageSize is the unit of memory length, and is defined as 2^16 = 65536.
	MemoryPageSize = uint32(65536)
	// MemoryMaxPages is maximum number of pages defined (2^16).
	MemoryMaxPages = uint32(65536)
	// MemoryPageSizeInBits satisfies the relation: "1 << MemoryPageSizeInBits == MemoryPageSize".
	MemoryPageSizeInBits = 16
)

// MemoryRelocator is implemented by module engines whose compiled code embeds the base address or the size of a
// linear memory. MemoryInstance.Grow calls it after the buffer changed.
type MemoryRelocator interface {
	// RelocateMemory rewrites every reference to the old buffer's base and size to the new one, returning how many
	// references changed.
	RelocateMemory(old, new []byte) int
}

// MemoryInstance is a linear memory, owned by the instance that declared it and shared with every instance that
// imports it.
type MemoryInstance struct {
	Buffer   []byte
	Min, Max uint32

	// reservation is non-nil when Buffer is the committed prefix of a guard region sized to Max.
	reservation *platform.Reservation
	relocators  []MemoryRelocator
}

// NewMemoryInstance allocates min pages of zeroed memory. With guard set, the address range for max pages is
// reserved up front so that Grow never moves the buffer.
func NewMemoryInstance(min, max uint32, guard bool) (*MemoryInstance, error) {
	m := &MemoryInstance{Min: min, Max: max}
	if !guard {
		m.Buffer = make([]byte, MemoryPagesToBytesNum(min))
		return m, nil
	}
	r, err := platform.Reserve(int(MemoryPagesToBytesNum(max)), int(MemoryPagesToBytesNum(min)))
	if err != nil {
		return nil, fmt.Errorf("%w: reserve %s: %v", ErrOutOfMemory, PagesToUnitOfBytes(max), err)
	}
	m.reservation = r
	m.Buffer = r.Bytes()
	return m, nil
}

// Kind implements HostValue.Kind
func (m *MemoryInstance) Kind() ExternType {
	return ExternTypeMemory
}

// HasGuardRegion is true when the memory grows in place.
func (m *MemoryInstance) HasGuardRegion() bool {
	return m.reservation != nil
}

// AddRelocator registers a module engine to be notified when the buffer changes.
func (m *MemoryInstance) AddRelocator(r MemoryRelocator) {
	m.relocators = append(m.relocators, r)
}

// RemoveRelocator undoes AddRelocator.
func (m *MemoryInstance) RemoveRelocator(r MemoryRelocator) {
	for i, existing := range m.relocators {
		if existing == r {
			m.relocators = append(m.relocators[:i], m.relocators[i+1:]...)
			return
		}
	}
}

// Size returns the length of the buffer in bytes.
func (m *MemoryInstance) Size() uint64 {
	return uint64(len(m.Buffer))
}

// hasSize returns true if Len is sufficient for sizeInBytes at the given offset.
func (m *MemoryInstance) hasSize(offset uint32, sizeInBytes uint32) bool {
	return uint64(offset)+uint64(sizeInBytes) <= m.Size() // uint64 prevents overflow on add
}

// ReadByte returns the byte at offset or false if out of range.
func (m *MemoryInstance) ReadByte(offset uint32) (byte, bool) {
	if !m.hasSize(offset, 1) {
		return 0, false
	}
	return m.Buffer[offset], true
}

// ReadUint32Le returns the little-endian uint32 at offset or false if out of range.
func (m *MemoryInstance) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.hasSize(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.Buffer[offset : offset+4]), true
}

// ReadUint64Le returns the little-endian uint64 at offset or false if out of range.
func (m *MemoryInstance) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.hasSize(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.Buffer[offset : offset+8]), true
}

// Read returns a view of byteCount bytes at offset or false if out of range.
func (m *MemoryInstance) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.hasSize(offset, byteCount) {
		return nil, false
	}
	return m.Buffer[offset : offset+byteCount : offset+byteCount], true
}

// WriteByte writes v at offset or returns false if out of range.
func (m *MemoryInstance) WriteByte(offset uint32, v byte) bool {
	if !m.hasSize(offset, 1) {
		return false
	}
	m.Buffer[offset] = v
	return true
}

// WriteUint32Le writes v in little-endian at offset or returns false if out of range.
func (m *MemoryInstance) WriteUint32Le(offset, v uint32) bool {
	if !m.hasSize(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.Buffer[offset:], v)
	return true
}

// WriteUint64Le writes v in little-endian at offset or returns false if out of range.
func (m *MemoryInstance) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.hasSize(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.Buffer[offset:], v)
	return true
}

// Write copies val to offset or returns false if out of range.
func (m *MemoryInstance) Write(offset uint32, val []byte) bool {
	if !m.hasSize(offset, uint32(len(val))) {
		return false
	}
	copy(m.Buffer[offset:], val)
	return true
}

// MemoryPagesToBytesNum converts the given pages into the number of bytes contained in these pages.
func MemoryPagesToBytesNum(pages uint32) (bytesNum uint64) {
	return uint64(pages) << MemoryPageSizeInBits
}

// memoryBytesNumToPages converts the given number of bytes into the number of pages.
func memoryBytesNumToPages(bytesNum uint64) (pages uint32) {
	return uint32(bytesNum >> MemoryPageSizeInBits)
}

// PageSize returns the current memory buffer size in pages.
func (m *MemoryInstance) PageSize() uint32 {
	return memoryBytesNumToPages(m.Size())
}

// Grow extends the memory by delta pages and returns the page count before growing.
//
// A zero delta returns the current page count without touching the buffer or notifying relocators. Growing past Max
// returns ErrMemoryLimit and leaves the memory untouched. Otherwise, the buffer grows in place when there's a guard
// region, or is reallocated and copied, and every registered MemoryRelocator is called with the old and new buffers.
func (m *MemoryInstance) Grow(delta uint32) (uint32, error) {
	current := m.PageSize()
	if delta == 0 {
		return current, nil
	}
	if uint64(current)+uint64(delta) > uint64(m.Max) {
		return 0, fmt.Errorf("%w: %d + %d pages > max %d pages", ErrMemoryLimit, current, delta, m.Max)
	}

	old := m.Buffer
	newLen := MemoryPagesToBytesNum(current + delta)
	if m.reservation != nil {
		buf, err := m.reservation.Commit(int(newLen))
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
		}
		m.Buffer = buf
	} else {
		buf := make([]byte, newLen)
		copy(buf, old)
		m.Buffer = buf
	}

	for _, r := range m.relocators {
		r.RelocateMemory(old, m.Buffer)
	}
	return current, nil
}

// Close releases the guard region, if any. The memory must not be used afterwards.
func (m *MemoryInstance) Close() error {
	m.relocators = nil
	if m.reservation == nil {
		return nil
	}
	m.Buffer = nil
	return m.reservation.Release()
}

// PagesToUnitOfBytes converts the pages to a human-readable form similar to what's specified. Ex. 1 -> "64 Ki"
func PagesToUnitOfBytes(pages uint32) string {
	k := uint64(pages) * 64
	if k < 1024 {
		return fmt.Sprintf("%d Ki", k)
	}
	m := k / 1024
	if m < 1024 {
		return fmt.Sprintf("%d Mi", m)
	}
	g := m / 1024
	if g < 1024 {
		return fmt.Sprintf("%d Gi", g)
	}
	return fmt.Sprintf("%d Ti", g/1024)
}
