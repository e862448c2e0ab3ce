package classifier

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// LabelsHint explains how to obtain the ImageNet label files
const LabelsHint = "download imagenet_class_index.json (keras) or synset_words.txt (caffe) " +
	"and point model.labels / --labels at it"

// synsetPrefix matches the WordNet id that leads each line of synset_words.txt
var synsetPrefix = regexp.MustCompile(`^n\d{8}\s+`)

// LoadLabels reads class labels from path. Three layouts are understood: the keras
// imagenet_class_index.json object, caffe's synset_words.txt and a plain list
// with one label per line.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithHint(
				errors.Wrapf(ErrModelUnavailable, "labels file not found: %s", path), LabelsHint)
		}
		return nil, errors.Wrapf(err, "cannot read labels file %s", path)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return parseClassIndex(trimmed)
	}
	return parseLabelLines(data)
}

// parseClassIndex decodes {"0": ["n01440764", "tench"], ...}
func parseClassIndex(data []byte) ([]string, error) {
	var index map[string][]string
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, errors.Wrap(err, "invalid class index json")
	}

	ids := make([]int, 0, len(index))
	byID := make(map[int]string, len(index))
	for key, entry := range index {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Newf("invalid class id %q", key)
		}
		if len(entry) == 0 {
			return nil, errors.Newf("class %d has no name", id)
		}
		ids = append(ids, id)
		byID[id] = normalizeLabel(entry[len(entry)-1])
	}
	sort.Ints(ids)

	labels := make([]string, len(ids))
	for i, id := range ids {
		if id != i {
			return nil, errors.Newf("class index is not contiguous: expected %d, found %d", i, id)
		}
		labels[i] = byID[id]
	}
	if len(labels) == 0 {
		return nil, errors.New("class index is empty")
	}
	return labels, nil
}

func parseLabelLines(data []byte) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line = synsetPrefix.ReplaceAllString(line, "")
		if name, _, found := strings.Cut(line, ","); found {
			line = name
		}
		labels = append(labels, normalizeLabel(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "cannot scan labels")
	}
	if len(labels) == 0 {
		return nil, errors.New("labels file is empty")
	}
	return labels, nil
}

// normalizeLabel matches the keras naming: "tiger cat" becomes "tiger_cat"
func normalizeLabel(label string) string {
	return strings.Join(strings.Fields(label), "_")
}
