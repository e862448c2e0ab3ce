package results

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"imagetagger/types"
)

// DefaultOutputFile is the name of the result document
const DefaultOutputFile = "ai_categories.json"

// JSONFile persists the full store to a JSON document, replacing it on every write
type JSONFile struct {
	Path   string
	writes int
}

// NewJSONFile returns a writer targeting path
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{Path: path}
}

// Name identifies the sink in log output
func (j *JSONFile) Name() string {
	return "json:" + j.Path
}

// Writes returns the number of completed writes
func (j *JSONFile) Writes() int {
	return j.writes
}

// Checkpoint rewrites the document with every record in the store. The new
// content is written to a temporary file and renamed over the target.
func (j *JSONFile) Checkpoint(records map[string]types.ImageRecord) error {
	data, err := Encode(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(j.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(j.Path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "cannot create temporary file for %s", j.Path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "cannot write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "cannot sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "cannot close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrapf(err, "cannot set permissions on %s", tmpName)
	}
	if err := os.Rename(tmpName, j.Path); err != nil {
		return errors.Wrapf(err, "cannot replace %s", j.Path)
	}

	j.writes++
	return nil
}

// Encode renders records as a 2-space indented JSON object with sorted keys
func Encode(records map[string]types.ImageRecord) ([]byte, error) {
	normalized := make(map[string]types.ImageRecord, len(records))
	for k, rec := range records {
		if rec.AITags == nil {
			rec.AITags = []string{}
		}
		normalized[k] = rec
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(normalized); err != nil {
		return nil, errors.Wrap(err, "cannot encode results")
	}
	return buf.Bytes(), nil
}

// Load reads a document previously written by JSONFile
func Load(path string) (map[string]types.ImageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}
	records := make(map[string]types.ImageRecord)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(err, "cannot parse %s", path)
	}
	return records, nil
}
