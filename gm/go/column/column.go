// Package column describes how a report UI may present one extra column of
// an image pair set.
package column

// Header configures one extra column.
type Header struct {
	HeaderText        string
	HeaderURL         string
	IsFilterable      bool
	IsSortable        bool
	UseFreeformFilter bool

	// IncludeHistogram controls whether the distinct values of the column,
	// with their counts, are reported.
	IncludeHistogram bool
}

// New returns a filterable, sortable Header with a histogram.
func New(headerText string) Header {
	return Header{
		HeaderText:       headerText,
		IsFilterable:     true,
		IsSortable:       true,
		IncludeHistogram: true,
	}
}

// Dict is the serialized form of a Header.
type Dict struct {
	HeaderText        string         `json:"headerText"`
	HeaderURL         string         `json:"headerUrl,omitempty"`
	IsFilterable      bool           `json:"isFilterable"`
	IsSortable        bool           `json:"isSortable"`
	UseFreeformFilter bool           `json:"useFreeformFilter"`
	ValuesAndCounts   map[string]int `json:"valuesAndCounts,omitempty"`
}

// AsDict returns the serializable form of h. valuesAndCounts is only
// reported if h.IncludeHistogram is set.
func (h Header) AsDict(valuesAndCounts map[string]int) Dict {
	ret := Dict{
		HeaderText:        h.HeaderText,
		HeaderURL:         h.HeaderURL,
		IsFilterable:      h.IsFilterable,
		IsSortable:        h.IsSortable,
		UseFreeformFilter: h.UseFreeformFilter,
	}
	if h.IncludeHistogram {
		ret.ValuesAndCounts = valuesAndCounts
	}
	return ret
}
