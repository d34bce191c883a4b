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

package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// backoffStep is added to a URL's backoff duration on every failure.
	backoffStep = 2 * time.Minute
	// backoffCap is the ceiling on any single URL's backoff duration.
	backoffCap = time.Hour
)

type backoffEntry struct {
	nextAttempt time.Time
	duration    time.Duration
}

// Backoff is a per-URL circuit breaker. Keys are exact request URLs including
// query parameters, so sub-pages of one endpoint are tracked independently.
type Backoff struct {
	mu       sync.Mutex
	badLinks map[string]backoffEntry
	now      func() time.Time
}

func NewBackoff() *Backoff {
	return &Backoff{
		badLinks: map[string]backoffEntry{},
		now:      time.Now,
	}
}

// ShouldAttempt reports whether the URL may be fetched right now. Callers
// must treat false as a synthetic failure without making a network call.
func (b *Backoff) ShouldAttempt(url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.badLinks[url]
	if !ok {
		return true
	}
	return !b.now().Before(entry.nextAttempt)
}

// NextAttempt returns when the URL becomes eligible again, if it is tracked.
func (b *Backoff) NextAttempt(url string) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.badLinks[url]
	return entry.nextAttempt, ok
}

// RecordFailure extends (or creates) the URL's backoff for status >= 400.
func (b *Backoff) RecordFailure(url string, status int) {
	if status < 400 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if entry, ok := b.badLinks[url]; ok {
		if entry.duration < backoffCap {
			entry.duration += backoffStep
			if entry.duration > backoffCap {
				entry.duration = backoffCap
			}
		}
		entry.nextAttempt = now.Add(entry.duration)
		b.badLinks[url] = entry
		logrus.Debugf("extending backoff for already throttled URL %s by %s", url, backoffStep)
		return
	}
	b.badLinks[url] = backoffEntry{
		nextAttempt: now.Add(backoffStep),
		duration:    backoffStep,
	}
	logrus.Debugf("placing URL %s on the throttled list", url)
}

// RecordSuccess removes the URL's entry. Recovery is immediate and full.
func (b *Backoff) RecordSuccess(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.badLinks, url)
}
