package alert

// Summary counts raised alerts since the last reset. Cleared alerts are
// counted separately and not by severity.
type Summary struct {
	Total      int            `json:"total"`
	Cleared    int            `json:"cleared"`
	BySeverity map[string]int `json:"bySeverity"`
	ByKind     map[string]int `json:"byKind"`
	BySensor   map[string]int `json:"bySensor"`
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{
		BySeverity: make(map[string]int),
		ByKind:     make(map[string]int),
		BySensor:   make(map[string]int),
	}
}

func (s *Summary) add(a Alert) {
	if a.Cleared() {
		s.Cleared++
		return
	}
	s.Total++
	s.BySeverity[a.Severity.String()]++
	s.ByKind[a.Kind]++
	s.BySensor[a.SensorID]++
}

func (s *Summary) clone() Summary {
	out := Summary{
		Total:      s.Total,
		Cleared:    s.Cleared,
		BySeverity: make(map[string]int, len(s.BySeverity)),
		ByKind:     make(map[string]int, len(s.ByKind)),
		BySensor:   make(map[string]int, len(s.BySensor)),
	}
	for k, v := range s.BySeverity {
		out.BySeverity[k] = v
	}
	for k, v := range s.ByKind {
		out.ByKind[k] = v
	}
	for k, v := range s.BySensor {
		out.BySensor[k] = v
	}
	return out
}
