package align

import "github.com/okian/physalign/internal/domain/model"

// Index is an in-memory Catalog keyed by modality and subject.
type Index struct {
	series map[model.Modality]map[string]model.Series
	order  []string
}

// NewIndex builds an Index from series. Series for the same subject and
// modality are concatenated in the order given.
func NewIndex(series ...model.Series) *Index {
	idx := &Index{series: make(map[model.Modality]map[string]model.Series)}
	for _, s := range series {
		idx.Add(s)
	}
	return idx
}

// Add merges s into the index.
func (x *Index) Add(s model.Series) {
	bySubject, ok := x.series[s.Modality]
	if !ok {
		bySubject = make(map[string]model.Series)
		x.series[s.Modality] = bySubject
	}
	cur, ok := bySubject[s.Subject]
	if !ok {
		x.order = append(x.order, string(s.Modality)+"\x00"+s.Subject)
		cur = model.Series{Subject: s.Subject, Modality: s.Modality}
	}
	cur.Readings = append(cur.Readings, s.Readings...)
	bySubject[s.Subject] = cur
}

// Lookup implements Catalog. Series with no readings report false.
func (x *Index) Lookup(subject string, m model.Modality) (model.Series, bool) {
	s, ok := x.series[m][subject]
	if !ok || s.Empty() {
		return model.Series{}, false
	}
	return s, true
}

// All returns every series of modality m in insertion order.
func (x *Index) All(m model.Modality) []model.Series {
	var out []model.Series
	prefix := string(m) + "\x00"
	for _, key := range x.order {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, x.series[m][key[len(prefix):]])
		}
	}
	return out
}
