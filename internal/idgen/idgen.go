// Package idgen выдаёт числовые идентификаторы, выведенные из времени создания.
package idgen

import (
	"sync"
	"time"
)

// Generator возвращает строго возрастающие ID в миллисекундах Unix.
// Если два вызова попадают в одну миллисекунду, второй получает last+1.
type Generator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// New создаёт генератор на системных часах.
func New() *Generator {
	return &Generator{now: time.Now}
}

// NewWithClock создаёт генератор с подменяемыми часами.
func NewWithClock(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Next возвращает следующий ID.
func (g *Generator) Next() int64 {
	return g.NextAfter(0)
}

// NextAfter возвращает следующий ID, строго больший floor. Так ID остаётся
// уникальным среди уже сохранённых записей, даже если их выдал другой генератор.
func (g *Generator) NextAfter(floor int64) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	if id <= floor {
		id = floor + 1
	}
	g.last = id
	return id
}

// Now возвращает текущее время генератора в UTC.
func (g *Generator) Now() time.Time {
	return g.now().UTC()
}
