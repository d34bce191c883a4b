// The MIT License (MIT)
//
// Copyright (c) 2026 Chemokoren
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package engine

import "sync"

// RefreshKind identifies a throttled per-item sub-fetch.
type RefreshKind int

const (
	KindLabels RefreshKind = iota
	KindStatuses
)

type throttleKey struct {
	item int64
	kind RefreshKind
}

// RefreshThrottle skips expensive per-item sub-fetches on most cycles. An
// item with no counter is always eligible; a skipped item's counter grows by
// one per cycle until it reaches the configured interval.
type RefreshThrottle struct {
	mu       sync.Mutex
	counters map[throttleKey]int
}

func NewRefreshThrottle() *RefreshThrottle {
	return &RefreshThrottle{counters: map[throttleKey]int{}}
}

// ShouldRefresh reports whether the item is due a refresh this cycle, and
// counts the skipped cycle when it is not.
func (t *RefreshThrottle) ShouldRefresh(item int64, kind RefreshKind, interval int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := throttleKey{item: item, kind: kind}
	n, ok := t.counters[key]
	if !ok || n >= interval {
		return true
	}
	t.counters[key] = n + 1
	return false
}

// MarkRefreshed resets the item's counter to its base value after a
// completed refresh.
func (t *RefreshThrottle) MarkRefreshed(item int64, kind RefreshKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters[throttleKey{item: item, kind: kind}] = 1
}

// Evict drops every counter of the given kind. Used when the feature is
// disabled, so a re-enable starts with a clean check.
func (t *RefreshThrottle) Evict(kind RefreshKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.counters {
		if key.kind == kind {
			delete(t.counters, key)
		}
	}
}
