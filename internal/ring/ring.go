package ring

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

var (
	// ErrFull はリングに空きがないことを示す
	ErrFull = errors.New("ring: full")
	// ErrEmpty はリングが空であることを示す
	ErrEmpty = errors.New("ring: empty")
	// ErrInvalidCapacity は容量が1未満であることを示す
	ErrInvalidCapacity = errors.New("ring: capacity must be at least 1")
)

// buffer はProducerとConsumerが共有する状態
//
// head は Consumer だけが、tail は Producer だけが進める。
// 不変条件: 0 <= tail-head <= capacity
type buffer[T any] struct {
	_    cpu.CacheLinePad
	head atomic.Uint64
	_    cpu.CacheLinePad
	tail atomic.Uint64
	_    cpu.CacheLinePad

	capacity uint64
	slots    []T
}

// Producer はリングの書き込み側
type Producer[T any] struct {
	buf        *buffer[T]
	tail       uint64
	cachedHead uint64
}

// Consumer はリングの読み出し側
type Consumer[T any] struct {
	buf        *buffer[T]
	head       uint64
	cachedTail uint64
}

// New は容量 capacity のリングを作成し、書き込み側と読み出し側を返す
func New[T any](capacity int) (*Producer[T], *Consumer[T], error) {
	if capacity < 1 {
		return nil, nil, ErrInvalidCapacity
	}
	b := &buffer[T]{
		capacity: uint64(capacity),
		slots:    make([]T, capacity),
	}
	return &Producer[T]{buf: b}, &Consumer[T]{buf: b}, nil
}

// TryPush は値を追加する。空きがなければ ErrFull を即座に返す
func (p *Producer[T]) TryPush(v T) error {
	b := p.buf
	t := p.tail
	if t-p.cachedHead == b.capacity {
		p.cachedHead = b.head.Load()
		if t-p.cachedHead == b.capacity {
			return ErrFull
		}
	}

	b.slots[t%b.capacity] = v
	b.tail.Store(t + 1)
	p.tail = t + 1
	return nil
}

// Cap は容量を返す
func (p *Producer[T]) Cap() int {
	return int(p.buf.capacity)
}

// Len はバッファ中の要素数を返す（スナップショット）
func (p *Producer[T]) Len() int {
	return p.buf.len()
}

// TryPop は先頭の値を取り出す。空なら ErrEmpty を即座に返す
func (c *Consumer[T]) TryPop() (T, error) {
	var zero T
	b := c.buf
	h := c.head
	if h == c.cachedTail {
		c.cachedTail = b.tail.Load()
		if h == c.cachedTail {
			return zero, ErrEmpty
		}
	}

	i := h % b.capacity
	v := b.slots[i]
	b.slots[i] = zero // 取り出した値を保持しない
	b.head.Store(h + 1)
	c.head = h + 1
	return v, nil
}

// Cap は容量を返す
func (c *Consumer[T]) Cap() int {
	return int(c.buf.capacity)
}

// Len はバッファ中の要素数を返す（スナップショット）
func (c *Consumer[T]) Len() int {
	return c.buf.len()
}

func (b *buffer[T]) len() int {
	// head を先に読むことで tail-head が負にならない
	h := b.head.Load()
	t := b.tail.Load()
	n := t - h
	if n > b.capacity {
		n = b.capacity
	}
	return int(n)
}
