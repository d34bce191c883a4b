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

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Chemokoren/trailer/pkg/data"
)

// completeSync reconciles per server, then persists. A failed server has all
// its pending changes discarded; the failure flag is re-asserted because the
// rollback itself restores pre-cycle state. Only then are delete-flagged
// objects physically removed and the cycle committed.
func (e *Engine) completeSync() error {
	for _, server := range e.store.Servers() {
		if server.GoodToGo() && !server.LastSyncSucceeded {
			logrus.Debugf("discarding changes from failed server %s", server.Label)
			e.store.RollbackServer(server.ID)
			e.store.MarkServerFailed(server.ID)
		}
	}

	e.store.NukeDeletedItems()
	e.postProcess()

	meta := e.store.GetMeta()
	if e.store.AllServersSucceeded() {
		meta.LastSuccessfulRefresh = e.now()
	}
	e.store.SetMeta(meta)

	e.store.ClearDispositions()
	if err := e.store.Commit(); err != nil {
		logrus.Errorf("committing sync failed: %v", err)
		return fmt.Errorf("committing sync failed: %v", err)
	}
	return nil
}

// postProcess files each surviving pull under a section for the
// presentation layer.
func (e *Engine) postProcess() {
	for _, p := range e.store.AllPulls() {
		switch p.Condition {
		case data.ConditionMerged:
			p.Section = data.SectionMerged
		case data.ConditionClosed:
			p.Section = data.SectionClosed
		default:
			if p.AssignedToMe {
				p.Section = data.SectionMine
			} else {
				p.Section = data.SectionAll
			}
		}
	}
}

// LastUpdateDescription is the only state the presentation layer gets:
// refreshing, failed, or how long ago the last good update was.
func (e *Engine) LastUpdateDescription() string {
	if e.Refreshing() {
		return "Refreshing..."
	}
	if !e.store.AllServersSucceeded() {
		return "Last update failed"
	}
	last := e.store.GetMeta().LastSuccessfulRefresh
	if last.IsZero() {
		return "Never updated"
	}
	ago := e.now().Sub(last)
	if ago < 10*time.Second {
		return "Just updated"
	}
	return fmt.Sprintf("Updated %d seconds ago", int(ago.Seconds()))
}
