package domain

// Source is the wire-level flattening of a SourceRecord: the variant is
// discriminated by which metadata keys are present.
type Source struct {
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata"`
}

// SourceRecord is a closed tagged union over the citation shapes the pipeline
// produces. Every candidate carries exactly one record; every item in the
// final answer must trace back to exactly one record.
type SourceRecord interface {
	Citation() Source
	sourceRecord()
}

// WebSource attributes a candidate retrieved from the web search provider.
type WebSource struct {
	URL         string
	Title       string
	Description string
	Age         string
}

func (s WebSource) sourceRecord() {}

func (s WebSource) Citation() Source {
	return Source{
		URL: s.URL,
		Metadata: map[string]string{
			"title":       s.Title,
			"description": s.Description,
			"page_age":    s.Age,
		},
	}
}

// DocumentSource attributes a candidate retrieved from the document corpus.
type DocumentSource struct {
	URL      string
	Title    string
	Abstract string
}

func (s DocumentSource) sourceRecord() {}

func (s DocumentSource) Citation() Source {
	return Source{
		URL: s.URL,
		Metadata: map[string]string{
			"title":    s.Title,
			"abstract": s.Abstract,
		},
	}
}

// Citations renders records in order. Order matters: it defines citation
// numbering in the final answer.
func Citations(records []SourceRecord) []Source {
	sources := make([]Source, 0, len(records))
	for _, r := range records {
		sources = append(sources, r.Citation())
	}
	return sources
}
