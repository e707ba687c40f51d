package results

import (
	"regexp"

	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/util"
)

// Filter decides which builders' results are ignored.
type Filter struct {
	match []*regexp.Regexp
	skip  []*regexp.Regexp
}

// NewFilter compiles the match and skip patterns. Patterns are anchored at
// the start of the builder name, so ".*TSAN" matches "SomethingTSAN" and
// also "SomethingTSAN-Trybot". Either list may be empty.
func NewFilter(matchPatterns, skipPatterns []string) (*Filter, error) {
	match, err := compileAll(matchPatterns)
	if err != nil {
		return nil, skerr.Wrapf(err, "match patterns")
	}
	skip, err := compileAll(skipPatterns)
	if err != nil {
		return nil, skerr.Wrapf(err, "skip patterns")
	}
	return &Filter{match: match, skip: skip}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	ret := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, skerr.Wrapf(err, "compiling %q", p)
		}
		ret = append(ret, re)
	}
	return ret, nil
}

// IgnoreBuilder returns true if the builder matches a skip pattern, or if
// match patterns are set and the builder matches none of them. A nil Filter
// ignores nothing.
func (f *Filter) IgnoreBuilder(builder string) bool {
	if f == nil {
		return false
	}
	if util.AnyMatch(f.skip, builder) {
		return true
	}
	return len(f.match) > 0 && !util.AnyMatch(f.match, builder)
}
