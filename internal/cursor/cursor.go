// Package cursor implements a bounds-checked reader over module bytes.
//
// A Cursor never panics on malformed input. The first violation is recorded
// as a positioned *Error and every later read returns zero without advancing,
// so decode loops only need to check Err once per record.
package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tetratelabs/wasmengine/internal/leb128"
)

// Error is the first bounds or encoding violation observed by a Cursor.
type Error struct {
	// Offset is the absolute position of the read that failed.
	Offset int
	Msg    string
	Err    error
}

// Error implements error.Error
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s @+%d: %v", e.Msg, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s @+%d", e.Msg, e.Offset)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrEndOfBuffer is wrapped by any Error raised because a read ran past the limit.
var ErrEndOfBuffer = errors.New("unexpected end of buffer")

// Cursor reads a window of a byte slice. Offsets reported are absolute, i.e.
// relative to the start of the enclosing module, not to the window.
type Cursor struct {
	buf []byte
	// base is the absolute offset of buf[0].
	base int
	pos  int
	// limit is the exclusive end of readable bytes within buf.
	limit int
	err   *Error
	// parent is the cursor this window was taken from. It records the same first error.
	parent *Cursor
}

// New returns a Cursor over all of buf whose first byte sits at absolute offset base.
func New(buf []byte, base int) *Cursor {
	return &Cursor{buf: buf, base: base, limit: len(buf)}
}

// Offset is the absolute offset of the next byte to be read.
func (c *Cursor) Offset() int {
	return c.base + c.pos
}

// Pos is the offset of the next byte relative to the start of the window.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining is the count of unread bytes before the limit.
func (c *Cursor) Remaining() int {
	return c.limit - c.pos
}

// Done returns true when the limit was reached or an error was recorded.
func (c *Cursor) Done() bool {
	return c.err != nil || c.pos >= c.limit
}

// OK returns true if no error has been recorded.
func (c *Cursor) OK() bool {
	return c.err == nil
}

// Err returns the first recorded error or nil.
func (c *Cursor) Err() error {
	if c.err == nil {
		return nil
	}
	return c.err
}

// Errorf records a positioned error at the absolute offset unless one is already recorded.
func (c *Cursor) Errorf(offset int, format string, args ...interface{}) {
	c.fail(offset, fmt.Sprintf(format, args...), nil)
}

func (c *Cursor) fail(offset int, msg string, err error) {
	if c.err != nil {
		return
	}
	c.stop(&Error{Offset: offset, Msg: msg, Err: err})
}

// stop records e on c and every enclosing cursor without an error yet, and stops any further progress.
func (c *Cursor) stop(e *Error) {
	for ; c != nil && c.err == nil; c = c.parent {
		c.err = e
		c.pos = c.limit
	}
}

// Window returns a cursor over the next n bytes and advances past them. The
// returned cursor reports absolute offsets, and its first error is also
// recorded on c. If n overruns the limit, c records an error and an empty
// cursor is returned.
func (c *Cursor) Window(n uint32, what string) *Cursor {
	start := c.pos
	if !c.CheckRange(start, n, what) {
		return &Cursor{base: c.Offset(), err: c.err}
	}
	c.pos += int(n)
	return &Cursor{buf: c.buf[:start+int(n)], base: c.base, pos: start, limit: start + int(n), parent: c}
}

// Rest returns the unread bytes without advancing.
func (c *Cursor) Rest() []byte {
	if c.err != nil {
		return nil
	}
	return c.buf[c.pos:c.limit]
}

// CheckRange records an error unless [offset, offset+length) lies within the
// window. offset is relative to the window.
func (c *Cursor) CheckRange(offset int, length uint32, what string) bool {
	if c.err != nil {
		return false
	}
	if offset < 0 || offset > c.limit || uint64(length) > uint64(c.limit-offset) {
		c.fail(c.base+offset, fmt.Sprintf("%s: expected %d bytes, fell off end", what, length), ErrEndOfBuffer)
		return false
	}
	return true
}

// Skip advances n bytes.
func (c *Cursor) Skip(n uint32, what string) {
	if c.CheckRange(c.pos, n, what) {
		c.pos += int(n)
	}
}

// Seek moves to the window-relative position pos, which must lie within the window.
func (c *Cursor) Seek(pos int) {
	if c.err == nil && pos >= 0 && pos <= c.limit {
		c.pos = pos
	}
}

// PeekU8 returns the next byte without consuming it, or zero at the limit.
func (c *Cursor) PeekU8() byte {
	if c.err != nil || c.pos >= c.limit {
		return 0
	}
	return c.buf[c.pos]
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8(what string) byte {
	if !c.CheckRange(c.pos, 1, what) {
		return 0
	}
	b := c.buf[c.pos]
	c.pos++
	return b
}

// ReadU32 reads a fixed-width little-endian uint32.
func (c *Cursor) ReadU32(what string) uint32 {
	if !c.CheckRange(c.pos, 4, what) {
		return 0
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v
}

// ReadU64 reads a fixed-width little-endian uint64.
func (c *Cursor) ReadU64(what string) uint64 {
	if !c.CheckRange(c.pos, 8, what) {
		return 0
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v
}

// ReadBytes returns the next n bytes without copying them.
func (c *Cursor) ReadBytes(n uint32, what string) []byte {
	if !c.CheckRange(c.pos, n, what) {
		return nil
	}
	b := c.buf[c.pos : c.pos+int(n) : c.pos+int(n)]
	c.pos += int(n)
	return b
}

// ReadVarUint32 reads an unsigned LEB128 value of at most 32 bits.
func (c *Cursor) ReadVarUint32(what string) uint32 {
	v, _ := c.ReadVarUint32Len(what)
	return v
}

// ReadVarUint32Len is like ReadVarUint32, but also returns the count of bytes consumed.
func (c *Cursor) ReadVarUint32Len(what string) (uint32, int) {
	if c.err != nil {
		return 0, 0
	}
	v, n, err := leb128.LoadUint32(c.buf[c.pos:c.limit])
	if err != nil {
		c.varintFailure(what, err)
		return 0, 0
	}
	c.pos += int(n)
	return v, int(n)
}

// ReadVarUint64 reads an unsigned LEB128 value of at most 64 bits.
func (c *Cursor) ReadVarUint64(what string) uint64 {
	if c.err != nil {
		return 0
	}
	v, n, err := leb128.LoadUint64(c.buf[c.pos:c.limit])
	if err != nil {
		c.varintFailure(what, err)
		return 0
	}
	c.pos += int(n)
	return v
}

// ReadVarInt32 reads a signed LEB128 value of at most 32 bits.
func (c *Cursor) ReadVarInt32(what string) int32 {
	v, _ := c.ReadVarInt32Len(what)
	return v
}

// ReadVarInt32Len is like ReadVarInt32, but also returns the count of bytes consumed.
func (c *Cursor) ReadVarInt32Len(what string) (int32, int) {
	if c.err != nil {
		return 0, 0
	}
	v, n, err := leb128.LoadInt32(c.buf[c.pos:c.limit])
	if err != nil {
		c.varintFailure(what, err)
		return 0, 0
	}
	c.pos += int(n)
	return v, int(n)
}

// ReadVarInt64 reads a signed LEB128 value of at most 64 bits.
func (c *Cursor) ReadVarInt64(what string) int64 {
	v, _ := c.ReadVarInt64Len(what)
	return v
}

// ReadVarInt64Len is like ReadVarInt64, but also returns the count of bytes consumed.
func (c *Cursor) ReadVarInt64Len(what string) (int64, int) {
	if c.err != nil {
		return 0, 0
	}
	v, n, err := leb128.LoadInt64(c.buf[c.pos:c.limit])
	if err != nil {
		c.varintFailure(what, err)
		return 0, 0
	}
	c.pos += int(n)
	return v, int(n)
}

func (c *Cursor) varintFailure(what string, err error) {
	if errors.Is(err, leb128.ErrOverflow32) || errors.Is(err, leb128.ErrOverflow64) {
		c.fail(c.Offset(), fmt.Sprintf("invalid %s varint", what), err)
		return
	}
	c.fail(c.Offset(), fmt.Sprintf("expected %s", what), ErrEndOfBuffer)
}

// ReadName reads a length-prefixed UTF-8 string.
func (c *Cursor) ReadName(what string) string {
	start := c.Offset()
	n := c.ReadVarUint32(what + " length")
	b := c.ReadBytes(n, what)
	if c.err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		c.fail(start, fmt.Sprintf("%s is not valid UTF-8", what), nil)
		return ""
	}
	return string(b)
}
