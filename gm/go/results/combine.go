package results

import (
	"fmt"
	"sort"
)

// DuplicateTestKeyError means one test key was found under two categories,
// which only happens when the upstream results are corrupt.
type DuplicateTestKeyError struct {
	Key        string
	Categories [2]string
}

func (e *DuplicateTestKeyError) Error() string {
	return fmt.Sprintf("test key %q appears in both %q and %q", e.Key, e.Categories[0], e.Categories[1])
}

// CombineSubdicts flattens {category: {testKey: value}} into
// {testKey: value}. A testKey found in two categories is an error.
func CombineSubdicts[V any](byCategory map[string]map[string]V) (map[string]V, error) {
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	ret := map[string]V{}
	seenIn := map[string]string{}
	for _, c := range categories {
		for k, v := range byCategory[c] {
			if prev, ok := seenIn[k]; ok {
				return nil, &DuplicateTestKeyError{Key: k, Categories: [2]string{prev, c}}
			}
			seenIn[k] = c
			ret[k] = v
		}
	}
	return ret, nil
}
