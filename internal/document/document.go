package document

import "fmt"

// SourceKind tells whether a document came from a URL or an uploaded file.
type SourceKind string

const (
	SourceURL  SourceKind = "url"
	SourceFile SourceKind = "file"
)

// Origin identifies where a document came from.
type Origin struct {
	Kind SourceKind `json:"kind"`
	Name string     `json:"name"` // URL or original filename
}

func (o Origin) String() string {
	return o.Name
}

// RawDocument is the extracted text of one successfully ingested source.
type RawDocument struct {
	Content string
	Origin  Origin
}

// Chunk is a bounded text segment of a RawDocument.
type Chunk struct {
	Text   string `json:"text"`
	Source Origin `json:"source"`
	Index  int    `json:"index"` // position within the parent document
}

// Label is the source identifier shown to the model next to the chunk text.
func (c Chunk) Label() string {
	if c.Source.Name == "" {
		return fmt.Sprintf("chunk-%d", c.Index)
	}
	return c.Source.Name
}
