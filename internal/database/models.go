package database

import "github.com/uptrace/bun"

// RecordTitle maps a document identifier to its article title.
type RecordTitle struct {
	bun.BaseModel `bun:"table:record_titles"`

	Identifier int64  `bun:"identifier,pk"`
	Title      string `bun:"title"`
}

// PassageText holds the raw text of one child passage referenced from a
// cluster point's payload.
type PassageText struct {
	bun.BaseModel `bun:"table:passage_texts"`

	ID       string `bun:"id,pk"`
	NodeText string `bun:"node_text"`
}
