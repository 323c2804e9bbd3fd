package ticker

// Pattern gates individual ticks. Each Step consumes the next element of a working
// copy; an exhausted working copy is refilled from the original.
type Pattern struct {
	original  []bool
	remaining []bool
}

func NewPattern(p []bool) *Pattern {
	original := make([]bool, len(p))
	copy(original, p)
	return &Pattern{original: original, remaining: cloneBools(original)}
}

// Step advances the pattern by one tick and reports whether the tick fires.
// An empty pattern never fires.
func (p *Pattern) Step() bool {
	if len(p.remaining) == 0 {
		p.remaining = cloneBools(p.original)
	}
	if len(p.remaining) == 0 {
		return false
	}
	v := p.remaining[0]
	p.remaining = p.remaining[1:]
	return v
}

// Remaining returns the unconsumed part of the working copy.
func (p *Pattern) Remaining() []bool {
	return cloneBools(p.remaining)
}

func (p *Pattern) Len() int {
	return len(p.original)
}

func cloneBools(in []bool) []bool {
	out := make([]bool, len(in))
	copy(out, in)
	return out
}
