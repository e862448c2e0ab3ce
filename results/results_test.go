package results

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagetagger/types"
)

func TestStorePut(t *testing.T) {
	t.Parallel()

	s := NewStore()
	prev := s.Put("a.png", types.ImageRecord{Path: "/x/a.png", AITags: []string{"tabby"}})
	assert.Nil(t, prev)
	assert.Equal(t, 1, s.Len())

	prev = s.Put("a.png", types.ImageRecord{Path: "/y/a.png"})
	require.NotNil(t, prev)
	assert.Equal(t, "/x/a.png", prev.Path)
	assert.Equal(t, 1, s.Len())

	rec, ok := s.Get("a.png")
	require.True(t, ok)
	assert.Equal(t, "/y/a.png", rec.Path)
	assert.NotNil(t, rec.AITags)
	assert.Empty(t, rec.AITags)
}

func TestStoreRecordsIsCopy(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Put("a.png", types.ImageRecord{Path: "a.png"})
	snapshot := s.Records()
	delete(snapshot, "a.png")
	assert.Equal(t, 1, s.Len())
}

func TestEncodeFormat(t *testing.T) {
	t.Parallel()

	data, err := Encode(map[string]types.ImageRecord{
		"b.jpg": {Path: "/imgs/b.jpg", AITags: []string{"tiger_cat", "tabby"}},
		"a.png": {Path: "/imgs/sub/a.png"},
	})
	require.NoError(t, err)

	want := `{
  "a.png": {
    "path": "/imgs/sub/a.png",
    "ai_tags": []
  },
  "b.jpg": {
    "path": "/imgs/b.jpg",
    "ai_tags": [
      "tiger_cat",
      "tabby"
    ]
  }
}
`
	assert.Equal(t, want, string(data))
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	data, err := Encode(map[string]types.ImageRecord{})
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}

func TestEncodeNoHTMLEscaping(t *testing.T) {
	t.Parallel()

	data, err := Encode(map[string]types.ImageRecord{
		"a&b.png": {Path: "dir<1>/a&b.png"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dir<1>/a&b.png"`)
}

func TestJSONFileCheckpointOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, DefaultOutputFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"stale.png": {"path": "old", "ai_tags": []}}`), 0o644))

	w := NewJSONFile(path)
	require.NoError(t, w.Checkpoint(map[string]types.ImageRecord{
		"a.png": {Path: "/imgs/a.png", AITags: []string{"tabby"}},
	}))
	require.NoError(t, w.Checkpoint(map[string]types.ImageRecord{
		"a.png": {Path: "/imgs/a.png", AITags: []string{"tabby"}},
		"b.png": {Path: "/imgs/b.png", AITags: []string{}},
	}))
	assert.Equal(t, 2, w.Writes())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
	assert.NotContains(t, loaded, "stale.png")
	assert.Equal(t, []string{"tabby"}, loaded["a.png"].AITags)

	// no temporary files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJSONFileCheckpointError(t *testing.T) {
	t.Parallel()

	w := NewJSONFile(filepath.Join(t.TempDir(), "missing-dir", DefaultOutputFile))
	err := w.Checkpoint(map[string]types.ImageRecord{})
	require.Error(t, err)
	assert.Equal(t, 0, w.Writes())
}

func TestSummarizeAndFindByTag(t *testing.T) {
	t.Parallel()

	records := map[string]types.ImageRecord{
		"a.jpg": {Path: "/p/a.jpg", AITags: []string{"tabby", "tiger_cat"}},
		"b.jpg": {Path: "/p/b.jpg", AITags: []string{"tabby"}},
		"c.png": {Path: "/p/c.png", AITags: []string{}},
		"d.png": {Path: "/p/d.png", AITags: []string{"seashore", "sandbar"}},
	}

	s := Summarize(records, 2)
	assert.Equal(t, 4, s.Images)
	assert.Equal(t, 3, s.Tagged)
	assert.Equal(t, 4, s.UniqueTags)
	assert.Equal(t, []TagCount{{Tag: "tabby", Count: 2}, {Tag: "sandbar", Count: 1}}, s.TopTags)

	assert.Nil(t, Summarize(records, 0).TopTags)
	assert.Equal(t, Summary{}, Summarize(nil, 5))

	assert.Equal(t, []string{"a.jpg", "b.jpg"}, FindByTag(records, "tabby"))
	assert.Empty(t, FindByTag(records, "tiger"))
}

func TestLoadRoundTripsCheckpoint(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultOutputFile)
	records := map[string]types.ImageRecord{
		"a.jpg": {Path: "/p/a.jpg", AITags: []string{"tabby"}},
	}
	require.NoError(t, NewJSONFile(path).Checkpoint(records))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("[1,2"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "cannot parse")
}
