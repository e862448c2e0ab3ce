package results

import (
	"slices"
	"sort"

	"imagetagger/types"
)

// TagCount is the number of images carrying a tag
type TagCount struct {
	Tag   string
	Count int
}

// Summary describes a result set loaded from an output file
type Summary struct {
	Images     int
	Tagged     int
	UniqueTags int
	TopTags    []TagCount
}

// Summarize counts images and tags, keeping the topN most frequent tags
func Summarize(records map[string]types.ImageRecord, topN int) Summary {
	counts := make(map[string]int)
	s := Summary{Images: len(records)}

	for _, rec := range records {
		if len(rec.AITags) > 0 {
			s.Tagged++
		}
		for _, tag := range rec.AITags {
			counts[tag]++
		}
	}
	s.UniqueTags = len(counts)

	if topN <= 0 {
		return s
	}
	for tag, n := range counts {
		s.TopTags = append(s.TopTags, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(s.TopTags, func(i, j int) bool {
		if s.TopTags[i].Count != s.TopTags[j].Count {
			return s.TopTags[i].Count > s.TopTags[j].Count
		}
		return s.TopTags[i].Tag < s.TopTags[j].Tag
	})
	if len(s.TopTags) > topN {
		s.TopTags = s.TopTags[:topN]
	}
	return s
}

// FindByTag returns the keys of the records carrying tag, sorted
func FindByTag(records map[string]types.ImageRecord, tag string) []string {
	var keys []string
	for key, rec := range records {
		if slices.Contains(rec.AITags, tag) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
