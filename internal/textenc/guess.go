package textenc

import "fmt"

// Guess is an ordered, de-duplicated candidate list headed by UTF-8.
type Guess struct {
	candidates []Encoding
}

// ParseGuess resolves names into a Guess. The first name must resolve to UTF-8;
// duplicates (after alias resolution) are dropped.
func ParseGuess(names []string) (Guess, error) {
	var g Guess
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		enc, err := Lookup(name)
		if err != nil {
			return Guess{}, err
		}
		if _, ok := seen[enc.Name()]; ok {
			continue
		}
		seen[enc.Name()] = struct{}{}
		g.candidates = append(g.candidates, enc)
	}
	if len(g.candidates) == 0 {
		return Guess{}, fmt.Errorf("no candidate encodings")
	}
	if !g.candidates[0].IsUTF8() {
		return Guess{}, fmt.Errorf("first candidate must be %s, got %s", UTF8Name, g.candidates[0].Name())
	}
	return g, nil
}

// Candidates returns a copy of the ordered candidates.
func (g Guess) Candidates() []Encoding {
	return append([]Encoding(nil), g.candidates...)
}

// Names returns the candidate names in order.
func (g Guess) Names() []string {
	names := make([]string, 0, len(g.candidates))
	for _, enc := range g.candidates {
		names = append(names, enc.Name())
	}
	return names
}

// FirstLegacy returns the first non-UTF-8 candidate.
func (g Guess) FirstLegacy() (Encoding, bool) {
	for _, enc := range g.candidates {
		if !enc.IsUTF8() {
			return enc, true
		}
	}
	return Encoding{}, false
}

// AttemptOrder returns first followed by the remaining candidates in order.
func (g Guess) AttemptOrder(first Encoding) []Encoding {
	order := make([]Encoding, 0, len(g.candidates)+1)
	order = append(order, first)
	for _, enc := range g.candidates {
		if enc.Name() != first.Name() {
			order = append(order, enc)
		}
	}
	return order
}

// DecodeFirst tries each candidate in order and returns the first success.
func (g Guess) DecodeFirst(subject string, raw []byte) (string, Encoding, error) {
	exhausted := &ExhaustedError{Subject: subject}
	for _, enc := range g.candidates {
		text, err := enc.Decode(raw)
		if err == nil {
			return text, enc, nil
		}
		exhausted.Attempts = append(exhausted.Attempts, Attempt{Encoding: enc.Name(), Err: err})
	}
	return "", Encoding{}, exhausted
}
