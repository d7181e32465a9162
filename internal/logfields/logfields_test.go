package logfields

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorAttr(t *testing.T) {
	a := Error(errors.New("boom"))
	assert.Equal(t, KeyError, a.Key)
	assert.Equal(t, "boom", a.Value.String())
}

func TestErrorAttrNil(t *testing.T) {
	a := Error(nil)
	assert.Equal(t, KeyError, a.Key)
	assert.Equal(t, "", a.Value.String())
}

func TestFieldKeys(t *testing.T) {
	assert.Equal(t, KeyRunID, RunID("x").Key)
	assert.Equal(t, KeyRepo, Repository("x").Key)
	assert.Equal(t, KeyBranch, Branch("develop").Key)
	assert.Equal(t, KeyCommit, Commit("abc123").Key)
	assert.Equal(t, KeyOutcome, Outcome("success").Key)
}
