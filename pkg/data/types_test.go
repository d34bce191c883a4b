package data_test

import (
	"testing"

	"gotest.tools/assert"

	"github.com/Chemokoren/trailer/pkg/data"
)

// The integer values are persisted; changing them silently corrupts
// existing databases.
func TestPersistedEnumValuesAreStable(t *testing.T) {
	assert.Equal(t, int64(0), int64(data.ConditionOpen))
	assert.Equal(t, int64(1), int64(data.ConditionClosed))
	assert.Equal(t, int64(2), int64(data.ConditionMerged))

	assert.Equal(t, int64(0), int64(data.ActionDoNothing))
	assert.Equal(t, int64(1), int64(data.ActionDelete))
	assert.Equal(t, int64(2), int64(data.ActionNoteNew))
	assert.Equal(t, int64(3), int64(data.ActionNoteUpdated))
}

func TestGoodToGo(t *testing.T) {
	var missing *data.Server
	assert.Assert(t, !missing.GoodToGo())
	assert.Assert(t, !(&data.Server{}).GoodToGo())
	assert.Assert(t, (&data.Server{AuthToken: "t"}).GoodToGo())
}

func TestSyncable(t *testing.T) {
	assert.Assert(t, (&data.Repo{}).Syncable())
	assert.Assert(t, !(&data.Repo{Hidden: true}).Syncable())
	assert.Assert(t, !(&data.Repo{Inaccessible: true}).Syncable())
	assert.Assert(t, !(&data.Repo{Action: data.ActionDelete}).Syncable())
}

func TestLabelsLink(t *testing.T) {
	p := &data.PullRequest{}
	assert.Equal(t, "", p.LabelsLink())

	p.IssueLink = "https://api.github.com/repos/o/r/issues/5"
	assert.Equal(t, "https://api.github.com/repos/o/r/issues/5/labels", p.LabelsLink())
}
