package models

// SourcedValue is a raw MARC value together with the path that produced it.
// The path encodes field, occurrence and subfield, e.g. "260[0]$a".
// Values are never mutated after ingestion; normalization writes elsewhere.
type SourcedValue struct {
	Value      string `json:"value"`
	SourcePath string `json:"source_path"`
}

// Imprint is one occurrence of a MARC 260/264 field.
type Imprint struct {
	Place     *SourcedValue `json:"place,omitempty"`
	Publisher *SourcedValue `json:"publisher,omitempty"`
	Date      *SourcedValue `json:"date,omitempty"`
}

// Agent is a person or corporate body attached to the record (1xx/7xx).
type Agent struct {
	Name        *SourcedValue `json:"name"`
	Role        string        `json:"role,omitempty"`
	AuthorityID *SourcedValue `json:"authority_id,omitempty"` // $0 when present
}

// CanonicalRecord is the parser output for a single MARC record. All leaf
// values are SourcedValues; occurrence order follows the source document.
type CanonicalRecord struct {
	MMSID           string         `json:"mms_id"`
	SourceFile      string         `json:"source_file"`
	JSONLLineNumber int            `json:"jsonl_line_number"`
	Title           *SourcedValue  `json:"title,omitempty"`
	Imprints        []Imprint      `json:"imprints"`
	Agents          []Agent        `json:"agents"`
	Subjects        []SourcedValue `json:"subjects"`
	Languages       []SourcedValue `json:"languages"`
	Notes           []SourcedValue `json:"notes"`

	// M2 carries normalization output. The canonical fields above are
	// read-only for every layer past the parser.
	M2 *M2 `json:"m2,omitempty"`
}

// M2 is the normalization layer added to a canonical record. ImprintsNorm
// is index-parallel to Imprints; same for agents and subjects.
type M2 struct {
	ImprintsNorm []ImprintNorm    `json:"imprints_norm"`
	AgentsNorm   []NormalizedText `json:"agents_norm,omitempty"`
	SubjectsNorm []NormalizedText `json:"subjects_norm,omitempty"`
}

// ImprintNorm holds the normalized projection of one imprint occurrence.
type ImprintNorm struct {
	DateNorm      *NormalizedDate `json:"date_norm,omitempty"`
	PlaceNorm     *NormalizedText `json:"place_norm,omitempty"`
	PublisherNorm *NormalizedText `json:"publisher_norm,omitempty"`
}
