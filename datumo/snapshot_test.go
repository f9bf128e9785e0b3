package datumo

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSnapshot_ParentChain(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Put(ctx, "dataset/annotations/train.json", strings.NewReader("12345")))

	cfg := DefaultConfig()
	cfg.ProjectName = "demo"
	cfg.Sources = []Source{{Name: "voc"}}
	ev := SaveEvent{Dir: "/unused", Config: cfg, Dataset: sampleDataset()}

	first, err := WriteSnapshot(ctx, store, ev)
	require.NoError(t, err)
	assert.Empty(t, first.ParentSnapshotID)
	assert.Equal(t, "demo", first.Project)
	assert.Equal(t, []string{"voc"}, first.Sources)
	assert.Equal(t, 3, first.ItemCount)
	assert.Equal(t, map[string]int{"train": 2, DefaultSubset: 1}, first.Subsets)
	assert.Equal(t, []FileRef{{Path: "annotations/train.json", SizeBytes: 5}}, first.Files)

	second, err := WriteSnapshot(ctx, store, ev)
	require.NoError(t, err)
	assert.Equal(t, first.SnapshotID, second.ParentSnapshotID)

	all, err := ListSnapshots(ctx, store, DefaultEnvDir)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.SnapshotID, all[0].SnapshotID)
	assert.Equal(t, second.SnapshotID, all[1].SnapshotID)
}

func TestListSnapshots_Malformed(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Put(ctx, ".datumo/snapshots/bad.json", strings.NewReader("{")))

	_, err := ListSnapshots(ctx, store, DefaultEnvDir)
	assert.ErrorIs(t, err, ErrMalformedInput)
}
