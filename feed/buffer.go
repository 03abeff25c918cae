package feed

import (
	"slices"
	"strings"
)

// Block is one subtitle unit: an ordered group of words shown or spoken
// together.
type Block struct {
	Seq   int      // Position in the run, starting at 1
	Words []string // Words in display order
}

// Text returns the block as a single space separated line.
func (b Block) Text() string {
	return strings.Join(b.Words, " ")
}

// Len returns the number of words in the block.
func (b Block) Len() int {
	return len(b.Words)
}

// Buffer accumulates complete words and carves them into fixed-size blocks.
//
// Words that do not yet fill a block wait in the pending area. Carved blocks
// wait in a FIFO display queue until the scheduler pops them. Words move from
// pending to the queue exactly once and never change order.
type Buffer struct {
	blockSize int
	smallTail int

	pending []string
	queue   [][]string
}

// NewBuffer creates a buffer carving blocks of blockSize words. Remainders
// shorter than smallTail words may be force-flushed with FlushSmallTail.
func NewBuffer(blockSize, smallTail int) *Buffer {
	if blockSize < 1 {
		blockSize = 1
	}
	return &Buffer{
		blockSize: blockSize,
		smallTail: smallTail,
	}
}

// Push appends words to the pending area and moves every full block to the
// display queue. It returns the number of blocks carved.
func (b *Buffer) Push(words []string) int {
	b.pending = append(b.pending, words...)

	carved := 0
	for len(b.pending) >= b.blockSize {
		b.queue = append(b.queue, slices.Clone(b.pending[:b.blockSize]))
		b.pending = b.pending[b.blockSize:]
		carved++
	}
	if len(b.pending) == 0 {
		b.pending = nil
	}
	return carved
}

// FlushSmallTail moves the pending remainder to the display queue as one
// block, but only when it is non-empty and shorter than the small-tail
// threshold. It reports whether a block was queued.
func (b *Buffer) FlushSmallTail() bool {
	if len(b.pending) == 0 || len(b.pending) >= b.smallTail {
		return false
	}
	return b.FlushAll()
}

// FlushAll moves any non-empty pending remainder to the display queue as one
// block, whatever its size. It reports whether a block was queued.
func (b *Buffer) FlushAll() bool {
	if len(b.pending) == 0 {
		return false
	}
	b.queue = append(b.queue, b.pending)
	b.pending = nil
	return true
}

// Pop removes and returns the block at the head of the display queue.
func (b *Buffer) Pop() ([]string, bool) {
	if len(b.queue) == 0 {
		return nil, false
	}
	next := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return next, true
}

// Pending returns the number of words not yet carved into a block.
func (b *Buffer) Pending() int {
	return len(b.pending)
}

// Queued returns the number of blocks waiting in the display queue.
func (b *Buffer) Queued() int {
	return len(b.queue)
}

// SmallTail returns the small-tail threshold.
func (b *Buffer) SmallTail() int {
	return b.smallTail
}
