package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/solidb/pkg/replog"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

func newTestManager(t *testing.T) (*Manager, *storage.Documents) {
	t.Helper()
	e, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	catalog := storage.NewCatalog(e)
	_, err = catalog.CreateDatabase("app")
	require.NoError(t, err)
	docs := storage.NewDocuments(e, catalog, "app", "n1")

	lg, err := replog.Open(e, "n1")
	require.NoError(t, err)

	return NewManager(docs, lg), docs
}

func fieldsWithKey(key, name string) *types.Object {
	o := types.NewObject()
	if key != "" {
		o.Set(types.FieldKey, types.String(key))
	}
	o.Set("name", types.String(name))
	return o
}

func TestAutocommitInsertIsVisibleAfterCommit(t *testing.T) {
	m, docs := newTestManager(t)
	err := m.Autocommit(func(t *Transaction) error {
		_, err := t.Insert("widgets", fieldsWithKey("w1", "gadget"))
		return err
	})
	require.NoError(t, err)

	doc, err := docs.Get("widgets", "w1")
	require.NoError(t, err)
	assert.Equal(t, "gadget", mustString(doc, "name"))
}

func TestTransactionReadYourOwnWrites(t *testing.T) {
	m, _ := newTestManager(t)
	tx := m.Begin(types.ReadCommitted)
	_, err := tx.Insert("widgets", fieldsWithKey("w1", "gadget"))
	require.NoError(t, err)

	doc, err := tx.Get("widgets", "w1")
	require.NoError(t, err)
	assert.Equal(t, "gadget", mustString(doc, "name"))
	require.NoError(t, tx.Commit())
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	m, docs := newTestManager(t)
	tx := m.Begin(types.ReadCommitted)
	_, err := tx.Insert("widgets", fieldsWithKey("w1", "gadget"))
	require.NoError(t, err)
	tx.Rollback()

	_, err = docs.Get("widgets", "w1")
	assert.Equal(t, types.ErrNotFound, types.KindOf(err))
}

func TestTransactionUpdateMergePatch(t *testing.T) {
	m, docs := newTestManager(t)
	_, err := docs.Insert("widgets", fieldsWithKey("w1", "gadget"))
	require.NoError(t, err)

	tx := m.Begin(types.ReadCommitted)
	patch := types.NewObject()
	patch.Set("color", types.String("red"))
	require.NoError(t, tx.Update("widgets", "w1", patch, ""))
	require.NoError(t, tx.Commit())

	doc, err := docs.Get("widgets", "w1")
	require.NoError(t, err)
	assert.Equal(t, "gadget", mustString(doc, "name"))
	assert.Equal(t, "red", mustString(doc, "color"))
}

func TestRepeatableReadReusesSnapshotAcrossExternalWrite(t *testing.T) {
	m, docs := newTestManager(t)
	_, err := docs.Insert("widgets", fieldsWithKey("w1", "gadget"))
	require.NoError(t, err)

	tx := m.Begin(types.RepeatableRead)
	first, err := tx.Get("widgets", "w1")
	require.NoError(t, err)

	// External write commits in between, outside this transaction.
	_, err = docs.Update("widgets", "w1", patchWith("name", "changed"), "")
	require.NoError(t, err)

	second, err := tx.Get("widgets", "w1")
	require.NoError(t, err)
	assert.Equal(t, first.Rev(), second.Rev())
	assert.Equal(t, "gadget", mustString(second, "name"))
}

func TestReadCommittedSeesExternalWrite(t *testing.T) {
	m, docs := newTestManager(t)
	_, err := docs.Insert("widgets", fieldsWithKey("w1", "gadget"))
	require.NoError(t, err)

	tx := m.Begin(types.ReadCommitted)
	_, err = tx.Get("widgets", "w1")
	require.NoError(t, err)

	_, err = docs.Update("widgets", "w1", patchWith("name", "changed"), "")
	require.NoError(t, err)

	second, err := tx.Get("widgets", "w1")
	require.NoError(t, err)
	assert.Equal(t, "changed", mustString(second, "name"))
}

func TestSerializableCommitFailsOnConflictingExternalWrite(t *testing.T) {
	m, docs := newTestManager(t)
	_, err := docs.Insert("widgets", fieldsWithKey("w1", "gadget"))
	require.NoError(t, err)

	tx := m.Begin(types.Serializable)
	_, err = tx.Get("widgets", "w1")
	require.NoError(t, err)

	_, err = docs.Update("widgets", "w1", patchWith("name", "changed"), "")
	require.NoError(t, err)

	require.NoError(t, tx.Update("widgets", "w1", patchWith("color", "blue"), ""))
	err = tx.Commit()
	require.Error(t, err)
	assert.Equal(t, types.ErrSerializationConflict, types.KindOf(err))
}

func TestSerializableCommitSucceedsWithoutConflict(t *testing.T) {
	m, docs := newTestManager(t)
	_, err := docs.Insert("widgets", fieldsWithKey("w1", "gadget"))
	require.NoError(t, err)

	tx := m.Begin(types.Serializable)
	_, err = tx.Get("widgets", "w1")
	require.NoError(t, err)
	require.NoError(t, tx.Update("widgets", "w1", patchWith("color", "blue"), ""))
	require.NoError(t, tx.Commit())

	doc, err := docs.Get("widgets", "w1")
	require.NoError(t, err)
	assert.Equal(t, "blue", mustString(doc, "color"))
}

func TestTransactionDeleteStagesRemoval(t *testing.T) {
	m, docs := newTestManager(t)
	_, err := docs.Insert("widgets", fieldsWithKey("w1", "gadget"))
	require.NoError(t, err)

	tx := m.Begin(types.ReadCommitted)
	require.NoError(t, tx.Delete("widgets", "w1", ""))

	_, err = tx.Get("widgets", "w1")
	assert.Equal(t, types.ErrNotFound, types.KindOf(err))

	require.NoError(t, tx.Commit())
	_, err = docs.Get("widgets", "w1")
	assert.Equal(t, types.ErrNotFound, types.KindOf(err))
}

func patchWith(key, value string) *types.Object {
	o := types.NewObject()
	o.Set(key, types.String(value))
	return o
}

func mustString(doc *types.Document, field string) string {
	v, ok := doc.Fields.Get(field)
	if !ok {
		return ""
	}
	return v.AsString()
}
