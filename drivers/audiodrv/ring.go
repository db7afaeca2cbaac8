package audiodrv

import (
	"audiodrv-go/errcode"
	"audiodrv-go/x/mathx"
)

// Ring divides caller memory into equal blocks and tracks a write and a read
// cursor. Cursors are monotonic and wrap at 32 bits; a slot is cursor & (N-1).
//
// Blocks lent to the transfer engine form a window next to the engine's
// cursor: [rd, rd+lent) when the engine reads (TX), [wr, wr+lent) when it
// writes (RX). The application cursor never enters that window.
// Ring is not safe for concurrent use; the owning direction serialises access.
type Ring struct {
	buf        []byte // not owned
	count      uint32
	mask       uint32
	blockSize  uint32 // samples
	width      uint32 // bytes per sample
	blockBytes uint32

	wr   uint32
	rd   uint32
	lent uint32
}

// Bind attaches buf as blockCount blocks of blockSize samples of width bytes.
// On error the previous binding is left untouched.
func (r *Ring) Bind(buf []byte, blockCount, blockSize, width uint32) error {
	if blockCount < 2 || !mathx.IsPow2(blockCount) {
		return errcode.New("SetBuf", errcode.Parameter, "block count must be a power of two >= 2")
	}
	if blockSize == 0 || width == 0 {
		return errcode.New("SetBuf", errcode.Parameter, "block size must be non-zero")
	}
	need := uint64(blockCount) * uint64(blockSize) * uint64(width)
	if uint64(len(buf)) < need {
		return errcode.New("SetBuf", errcode.Parameter, "buffer shorter than block_count*block_size")
	}
	r.buf = buf
	r.count = blockCount
	r.mask = blockCount - 1
	r.blockSize = blockSize
	r.width = width
	r.blockBytes = blockSize * width
	r.wr, r.rd, r.lent = 0, 0, 0
	return nil
}

// Reshape re-derives the block byte size for f. It fails, leaving the ring
// unchanged, when the bound memory cannot hold f's layout.
func (r *Ring) Reshape(f Format) bool {
	if !r.Bound() {
		return false
	}
	w := f.Width()
	if w == 0 || f.Channels == 0 || r.blockSize%f.Channels != 0 {
		return false
	}
	if uint64(len(r.buf)) < uint64(r.count)*uint64(r.blockSize)*uint64(w) {
		return false
	}
	r.width = w
	r.blockBytes = r.blockSize * w
	return true
}

// Unbind forgets the memory and resets the cursors.
func (r *Ring) Unbind() { *r = Ring{} }

func (r *Ring) Bound() bool        { return r.count != 0 }
func (r *Ring) Count() uint32      { return r.count }
func (r *Ring) BlockSize() uint32  { return r.blockSize }
func (r *Ring) BlockBytes() uint32 { return r.blockBytes }

// Used returns the number of blocks between the read and write cursors.
func (r *Ring) Used() uint32 { return r.wr - r.rd }

// Block returns the bytes of slot (masked).
func (r *Ring) Block(slot uint32) []byte {
	off := (slot & r.mask) * r.blockBytes
	return r.buf[off : off+r.blockBytes : off+r.blockBytes]
}

func (r *Ring) NextWriteSlot() uint32 { return r.wr & r.mask }
func (r *Ring) NextReadSlot() uint32  { return r.rd & r.mask }

// AdvanceWrite publishes the block at the write cursor. It reports false,
// leaving the ring unchanged, when every slot is occupied.
func (r *Ring) AdvanceWrite() bool {
	if r.wr-r.rd >= r.count {
		return false
	}
	r.wr++
	return true
}

// AdvanceRead consumes the block at the read cursor. It reports false on an
// empty ring.
func (r *Ring) AdvanceRead() bool {
	if r.wr == r.rd {
		return false
	}
	r.rd++
	return true
}

// Lent returns the number of blocks currently owned by the engine.
func (r *Ring) Lent() uint32 { return r.lent }

// LendRead hands the engine the next block to read (transmit). A block the
// producer has not committed is sent again as it stands: the write cursor is
// dragged past it and stale is true.
func (r *Ring) LendRead() (slot uint32, stale bool) {
	c := r.rd + r.lent
	if c == r.wr {
		r.wr++
		stale = true
	}
	r.lent++
	return c & r.mask, stale
}

// ReturnRead retires the oldest lent block after the engine has read it.
func (r *Ring) ReturnRead() bool {
	if r.lent == 0 {
		return false
	}
	r.lent--
	r.rd++
	return true
}

// LendWrite hands the engine the next block to fill (receive). If that slot
// still holds the oldest unread block, the block is dropped and dropped is true.
func (r *Ring) LendWrite() (slot uint32, dropped bool) {
	c := r.wr + r.lent
	if c+1-r.rd > r.count {
		r.rd++
		dropped = true
	}
	r.lent++
	return c & r.mask, dropped
}

// ReturnWrite publishes the oldest lent block after the engine has filled it.
func (r *Ring) ReturnWrite() bool {
	if r.lent == 0 {
		return false
	}
	r.lent--
	r.wr++
	return true
}

// Reclaim takes back every lent block once the engine is idle. Blocks it never
// completed keep their cursor position.
func (r *Ring) Reclaim() { r.lent = 0 }
