// Package progress реализует ограниченный по частоте репортер
// прогресса миграции: скорость, процент выполнения и оценку
// оставшегося времени.
package progress

import (
	"sync"
	"time"
)

const (
	// DefaultInterval - минимальный интервал между снапшотами
	DefaultInterval = 3 * time.Second

	// DefaultCountGate - счетный порог эмиссии: снапшот выдается
	// и при накоплении такого количества записей с прошлой эмиссии
	DefaultCountGate = 50000

	// minRate - порог скорости ниже которого ETA считается неизвестным
	// (иначе деление на почти ноль дает абсурдные оценки)
	minRate = 1e-6
)

// Snapshot - неизменяемый срез прогресса на момент времени
type Snapshot struct {
	// Processed - обработано записей (монотонный счетчик)
	Processed int64

	// Total - всего записей в текущей фазе
	Total int64

	// Elapsed - прошло времени с начала фазы
	Elapsed time.Duration

	// RatePerSecond - мгновенная скорость: записей в секунду
	// за интервал с прошлой эмиссии, не средняя за все время.
	// Оператору важна текущая пропускная способность.
	RatePerSecond float64

	// Remaining - оценка оставшегося времени (валидна при RemainingKnown)
	Remaining time.Duration

	// RemainingKnown - false когда скорость слишком мала для оценки
	RemainingKnown bool
}

// Percent возвращает процент выполнения (0-100)
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Processed) / float64(s.Total) * 100
}

// Reporter копит счетчик обработанных записей и выдает снапшоты
// не чаще чем раз в interval и не реже чем каждые countGate записей.
// Ограничение частоты - осознанный backpressure: репортинг не должен
// быть заметен на фоне параллельных batch-завершений.
//
// Observe безопасен для вызова из нескольких горутин.
type Reporter struct {
	mu        sync.Mutex
	total     int64
	processed int64
	start     time.Time

	interval  time.Duration
	countGate int64

	lastEmit      time.Time
	lastProcessed int64

	// now подменяется в тестах
	now func() time.Time
}

// Option настраивает Reporter
type Option func(*Reporter)

// WithInterval устанавливает минимальный интервал между снапшотами
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) { r.interval = d }
}

// WithCountGate устанавливает счетный порог эмиссии
func WithCountGate(n int64) Option {
	return func(r *Reporter) { r.countGate = n }
}

// WithClock подменяет источник времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// NewReporter создает репортер для фазы из total записей
func NewReporter(total int64, opts ...Option) *Reporter {
	r := &Reporter{
		total:     total,
		interval:  DefaultInterval,
		countGate: DefaultCountGate,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.start = r.now()
	r.lastEmit = r.start
	return r
}

// Observe увеличивает счетчик на delta и возвращает снапшот,
// если пройден временной или счетный порог; иначе nil.
func (r *Reporter) Observe(delta int64) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed += delta
	now := r.now()

	sinceEmit := now.Sub(r.lastEmit)
	sinceCount := r.processed - r.lastProcessed

	if sinceEmit < r.interval && sinceCount < r.countGate {
		return nil
	}

	snap := r.snapshot(now, sinceEmit, sinceCount)
	r.lastEmit = now
	r.lastProcessed = r.processed
	return &snap
}

// Final возвращает завершающий снапшот фазы независимо от порогов.
// Скорость в нем - средняя за всю фазу.
func (r *Reporter) Final() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	return r.snapshot(now, now.Sub(r.start), r.processed)
}

// Processed возвращает текущее значение счетчика
func (r *Reporter) Processed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed
}

// snapshot строит снапшот; вызывается под мьютексом
func (r *Reporter) snapshot(now time.Time, window time.Duration, count int64) Snapshot {
	snap := Snapshot{
		Processed: r.processed,
		Total:     r.total,
		Elapsed:   now.Sub(r.start),
	}

	if window > 0 {
		snap.RatePerSecond = float64(count) / window.Seconds()
	}

	if snap.RatePerSecond > minRate && r.total > 0 {
		left := r.total - r.processed
		if left < 0 {
			left = 0
		}
		snap.Remaining = time.Duration(float64(left) / snap.RatePerSecond * float64(time.Second))
		snap.RemainingKnown = true
	}

	return snap
}
