package engine

import (
	"testing"

	"gotest.tools/assert"

	"github.com/Chemokoren/trailer/pkg/config"
	"github.com/Chemokoren/trailer/pkg/data"
	"github.com/Chemokoren/trailer/pkg/store"
)

func policyEngine(settings config.Settings) *Engine {
	return &Engine{
		settings: settings,
		store:    store.NewMemory(),
		throttle: NewRefreshThrottle(),
	}
}

func deletablePull(section data.Section) *data.PullRequest {
	return &data.PullRequest{
		ID:        10,
		Title:     "some pull",
		Condition: data.ConditionOpen,
		Action:    data.ActionDelete,
		Section:   section,
	}
}

func TestMergedPullPolicies(t *testing.T) {
	me := &data.Server{ID: "a", UserID: 7, UserName: "tester"}

	tests := []struct {
		name          string
		policy        config.HandlingPolicy
		section       data.Section
		mergedByID    int64
		dontKeepMine  bool
		wantAction    data.PostSyncAction
		wantCondition data.Condition
	}{
		{
			"keep-all keeps everything",
			config.KeepAll, data.SectionAll, 99, false,
			data.ActionDoNothing, data.ConditionMerged,
		}, {
			"keep-mine keeps items in my sections",
			config.KeepMine, data.SectionMine, 99, false,
			data.ActionDoNothing, data.ConditionMerged,
		}, {
			"keep-mine lets items filed under all go",
			config.KeepMine, data.SectionAll, 99, false,
			data.ActionDelete, data.ConditionOpen,
		}, {
			"discard lets the delete stand",
			config.Discard, data.SectionMine, 99, false,
			data.ActionDelete, data.ConditionOpen,
		}, {
			"self-merged items go regardless of policy",
			config.KeepAll, data.SectionMine, 7, true,
			data.ActionDelete, data.ConditionOpen,
		}, {
			"self-merge override only applies to my own merges",
			config.KeepAll, data.SectionMine, 99, true,
			data.ActionDoNothing, data.ConditionMerged,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			e := policyEngine(config.Settings{
				MergeHandlingPolicy: tt.policy,
				DontKeepMergedByMe:  tt.dontKeepMine,
			})
			p := deletablePull(tt.section)
			e.pullMerged(p, tt.mergedByID, me)
			assert.Equal(t, tt.wantAction, p.Action)
			assert.Equal(t, tt.wantCondition, p.Condition)
		})
	}
}

func TestClosedPullPolicies(t *testing.T) {
	tests := []struct {
		name          string
		policy        config.HandlingPolicy
		section       data.Section
		wantAction    data.PostSyncAction
		wantCondition data.Condition
	}{
		{
			"keep-all keeps closed items",
			config.KeepAll, data.SectionAll,
			data.ActionDoNothing, data.ConditionClosed,
		}, {
			"keep-mine keeps items in my sections",
			config.KeepMine, data.SectionParticipated,
			data.ActionDoNothing, data.ConditionClosed,
		}, {
			"keep-mine lets items filed under all go",
			config.KeepMine, data.SectionAll,
			data.ActionDelete, data.ConditionOpen,
		}, {
			"discard lets the delete stand",
			config.Discard, data.SectionMine,
			data.ActionDelete, data.ConditionOpen,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			e := policyEngine(config.Settings{CloseHandlingPolicy: tt.policy})
			p := deletablePull(tt.section)
			e.pullClosed(p)
			assert.Equal(t, tt.wantAction, p.Action)
			assert.Equal(t, tt.wantCondition, p.Condition)
		})
	}
}

func TestPostProcessSections(t *testing.T) {
	e := policyEngine(config.Default())

	e.store.SetPull(&data.PullRequest{ID: 1, Condition: data.ConditionMerged})
	e.store.SetPull(&data.PullRequest{ID: 2, Condition: data.ConditionClosed})
	e.store.SetPull(&data.PullRequest{ID: 3, Condition: data.ConditionOpen, AssignedToMe: true})
	e.store.SetPull(&data.PullRequest{ID: 4, Condition: data.ConditionOpen})

	e.postProcess()

	assert.Equal(t, data.SectionMerged, e.store.PullByID(1).Section)
	assert.Equal(t, data.SectionClosed, e.store.PullByID(2).Section)
	assert.Equal(t, data.SectionMine, e.store.PullByID(3).Section)
	assert.Equal(t, data.SectionAll, e.store.PullByID(4).Section)
}
