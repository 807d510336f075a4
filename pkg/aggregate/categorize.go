package aggregate

// Categorizer maps a normalized value to a category label. ok is false for
// values outside the category domain.
type Categorizer interface {
	Categorize(value string) (label string, ok bool)
}

// Category is one member of a closed set: the label reported plus every
// spelling that maps to it. The label itself always matches.
type Category struct {
	Label     string
	Spellings []string
}

// ClosedSet matches values against a fixed list of categories, ignoring case.
type ClosedSet struct {
	labels map[string]string
	order  []string
}

// Closed builds a ClosedSet. When two categories claim the same spelling the
// first one wins.
func Closed(categories ...Category) *ClosedSet {
	s := &ClosedSet{labels: make(map[string]string)}
	for _, c := range categories {
		s.order = append(s.order, c.Label)
		for _, sp := range append([]string{c.Label}, c.Spellings...) {
			n, ok := Normalize(sp)
			if !ok {
				continue
			}
			key := Fold(n)
			if _, dup := s.labels[key]; !dup {
				s.labels[key] = c.Label
			}
		}
	}
	return s
}

// Labels returns category labels in declaration order.
func (s *ClosedSet) Labels() []string {
	return append([]string(nil), s.order...)
}

func (s *ClosedSet) Categorize(value string) (string, bool) {
	label, ok := s.labels[Fold(value)]
	return label, ok
}

// Open accepts every value as its own category.
type Open struct{}

func (Open) Categorize(value string) (string, bool) {
	return value, true
}
