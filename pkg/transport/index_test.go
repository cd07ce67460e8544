package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/solidb/pkg/types"
)

func TestMaintainerForRejectsUnknownKind(t *testing.T) {
	idx := &types.Index{Name: "bogus", Kind: types.IndexKind("not-a-real-kind")}
	_, err := maintainerFor(nil, nil, "db", "coll", idx)
	assert.Error(t, err)

	e, ok := err.(*types.Error)
	if assert.True(t, ok) {
		assert.Equal(t, types.ErrInvalidArgument, e.Kind)
	}
}
