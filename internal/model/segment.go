package model

// Segment is a reusable set of users referenced by segmentMatch clauses.
type Segment struct {
	Key      string        `json:"key"`
	Version  int           `json:"version"`
	Included []string      `json:"included,omitempty"`
	Excluded []string      `json:"excluded,omitempty"`
	Salt     string        `json:"salt"`
	Rules    []SegmentRule `json:"rules,omitempty"`
	Deleted  bool          `json:"deleted,omitempty"`

	// Unbounded marks a big segment: membership is stored externally and
	// queried per user. Generation stamps the membership data set.
	Unbounded  bool `json:"unbounded,omitempty"`
	Generation *int `json:"generation,omitempty"`
}

// GetKey implements VersionedData.
func (s *Segment) GetKey() string { return s.Key }

// GetVersion implements VersionedData.
func (s *Segment) GetVersion() int { return s.Version }

// IsDeleted implements VersionedData.
func (s *Segment) IsDeleted() bool { return s.Deleted }

// SegmentRule matches clauses with an optional percentage weight.
type SegmentRule struct {
	Clauses  []Clause `json:"clauses"`
	Weight   *int     `json:"weight,omitempty"`
	BucketBy string   `json:"bucketBy,omitempty"`
}
