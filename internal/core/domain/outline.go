package domain

// Outline is the raw hierarchical proposal returned by the
// structure-reasoning collaborator, before it is materialized into a
// DocumentTree with generated node ids and depths.
type Outline struct {
	Title      string           `json:"title"`
	Confidence float64          `json:"confidence"`
	Sections   []OutlineSection `json:"sections"`
}

type OutlineSection struct {
	Label      string           `json:"label"`
	Content    string           `json:"content"`
	Confidence float64          `json:"confidence"`
	Children   []OutlineSection `json:"children,omitempty"`
}

// Empty reports whether the outline carries no usable sections.
func (o Outline) Empty() bool {
	return len(o.Sections) == 0
}
