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

// Package config exposes the knobs the engine consults during a sync cycle.
package config

import "time"

// HandlingPolicy decides what happens to a pull request once the engine
// discovers it was merged or closed upstream.
type HandlingPolicy int

const (
	// KeepMine keeps the item only if it is filed under one of the user's
	// own sections; items filed under All are still discarded.
	KeepMine HandlingPolicy = iota
	// KeepAll keeps every merged/closed item.
	KeepAll
	// Discard lets the delete stand.
	Discard
)

func (p HandlingPolicy) String() string {
	switch p {
	case KeepMine:
		return "keepMine"
	case KeepAll:
		return "keepAll"
	case Discard:
		return "discard"
	}
	return "unknown"
}

// Settings is the configuration collaborator. The engine never mutates it.
type Settings struct {
	MergeHandlingPolicy HandlingPolicy
	CloseHandlingPolicy HandlingPolicy

	// DontKeepMergedByMe discards a merged item outright when the merge
	// actor is the authenticated user, before the policy is consulted.
	DontKeepMergedByMe bool

	ShowStatusItems bool
	ShowLabels      bool

	// Refresh intervals are measured in sync cycles, not wall time.
	StatusRefreshInterval int
	LabelRefreshInterval  int

	// Repos untouched for longer than this are force-marked dirty.
	StalenessWindow time.Duration

	// How often the watched-repository list itself is rescanned.
	NewRepoCheckPeriod time.Duration

	HideNewRepositories bool
}

// Default returns the stock settings.
func Default() Settings {
	return Settings{
		MergeHandlingPolicy:   KeepMine,
		CloseHandlingPolicy:   KeepMine,
		ShowStatusItems:       true,
		ShowLabels:            true,
		StatusRefreshInterval: 10,
		LabelRefreshInterval:  4,
		StalenessWindow:       time.Hour,
		NewRepoCheckPeriod:    2 * time.Hour,
		HideNewRepositories:   false,
	}
}
