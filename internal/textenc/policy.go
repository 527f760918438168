package textenc

import "fmt"

// MaxSampleBytes caps the detector sample.
const MaxSampleBytes = 4096

// Policy is a versioned lead-byte heuristic: any sample byte within [Low, High]
// marks the sample as UTF-8.
type Policy struct {
	Name string
	Low  byte
	High byte
}

var (
	// LeadV1 is the original broad range, including bytes UTF-8 never uses as leads.
	LeadV1 = Policy{Name: "utf8-lead-v1", Low: 0xC0, High: 0xFD}
	// LeadV2 is the valid UTF-8 multi-byte lead range.
	LeadV2 = Policy{Name: "utf8-lead-v2", Low: 0xC2, High: 0xF4}
)

// DefaultPolicy is used when no policy is configured.
var DefaultPolicy = LeadV2

// PolicyByName returns the named policy; an empty name selects DefaultPolicy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "":
		return DefaultPolicy, nil
	case LeadV1.Name:
		return LeadV1, nil
	case LeadV2.Name:
		return LeadV2, nil
	default:
		return Policy{}, fmt.Errorf("unknown detector policy %q", name)
	}
}

// Verdict is the outcome of a detection.
type Verdict struct {
	Encoding Encoding
	// Reason is one of "ascii", "lead-byte", or "no-lead-byte".
	Reason string
	// LeadOffset is the position of the first lead byte, or -1.
	LeadOffset int
}

// Detect classifies sample. Pure ASCII and samples holding a lead byte are
// UTF-8; anything else is the first legacy candidate of g.
func (p Policy) Detect(sample []byte, g Guess) Verdict {
	highSeen := false
	for i, c := range sample {
		if c >= p.Low && c <= p.High {
			return Verdict{Encoding: UTF8(), Reason: "lead-byte", LeadOffset: i}
		}
		if c >= 0x80 {
			highSeen = true
		}
	}
	if !highSeen {
		return Verdict{Encoding: UTF8(), Reason: "ascii", LeadOffset: -1}
	}
	legacy, ok := g.FirstLegacy()
	if !ok {
		return Verdict{Encoding: UTF8(), Reason: "no-lead-byte", LeadOffset: -1}
	}
	return Verdict{Encoding: legacy, Reason: "no-lead-byte", LeadOffset: -1}
}

// Sample joins up to n whole names with newlines, truncated to MaxSampleBytes.
func Sample(names [][]byte, n int) []byte {
	var out []byte
	for i, name := range names {
		if i >= n {
			break
		}
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, name...)
		if len(out) >= MaxSampleBytes {
			return out[:MaxSampleBytes]
		}
	}
	return out
}
