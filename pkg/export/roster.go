package export

// Roster is a tabular document split into titled sections, one per schedule day.
type Roster struct {
	Title    string
	Subtitle string
	Headers  []string
	Sections []Section
}

// Section groups rows under a heading such as a calendar day.
type Section struct {
	Heading string
	Rows    [][]string
}

// RowCount returns the total number of rows across sections.
func (r Roster) RowCount() int {
	total := 0
	for _, section := range r.Sections {
		total += len(section.Rows)
	}
	return total
}

// Renderer turns a roster into a downloadable file.
type Renderer interface {
	Render(r Roster) ([]byte, error)
	ContentType() string
	Extension() string
}
