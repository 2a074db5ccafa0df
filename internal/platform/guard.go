// Package platform includes OS-specific code needed to reserve linear memory.
package platform

import (
	"errors"
	"fmt"
)

// ErrGuardUnsupported is returned by Reserve on platforms without mmap.
var ErrGuardUnsupported = errors.New("guard regions unsupported")

// Reservation is an address range reserved for a linear memory up to its maximum size. Only the committed prefix is
// readable and writable. Accessing the rest faults, so the memory can grow in place without moving.
type Reservation struct {
	mem       []byte
	committed int
}

// Reserve maps size bytes of inaccessible address space, then commits the first commit bytes.
//
// Note: size and commit must be multiples of the OS page size. Linear memory is sized in 64KiB pages, which is.
func Reserve(size, commit int) (*Reservation, error) {
	if commit > size {
		return nil, fmt.Errorf("commit %d exceeds reservation %d", commit, size)
	}
	r := &Reservation{}
	if size == 0 {
		return r, nil
	}
	mem, err := reserve(size)
	if err != nil {
		return nil, err
	}
	r.mem = mem
	if _, err = r.Commit(commit); err != nil {
		_ = r.Release()
		return nil, err
	}
	return r, nil
}

// Bytes returns the committed prefix.
func (r *Reservation) Bytes() []byte {
	return r.mem[:r.committed:r.committed]
}

// Cap returns the size of the reservation in bytes.
func (r *Reservation) Cap() int {
	return len(r.mem)
}

// Commit makes the first size bytes accessible and returns them. Shrinking is not supported: a size below what's
// already committed returns the current prefix.
func (r *Reservation) Commit(size int) ([]byte, error) {
	if size > len(r.mem) {
		return nil, fmt.Errorf("commit %d exceeds reservation %d", size, len(r.mem))
	}
	if size > r.committed {
		if err := commit(r.mem[r.committed:size]); err != nil {
			return nil, err
		}
		r.committed = size
	}
	return r.Bytes(), nil
}

// Release unmaps the reservation. It is safe to call more than once.
func (r *Reservation) Release() error {
	if r.mem == nil {
		return nil
	}
	mem := r.mem
	r.mem, r.committed = nil, 0
	return release(mem)
}
