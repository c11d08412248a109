package form

import "sort"

// Completion maps section number to whether every required field in that
// section currently holds a value.
type Completion map[int]bool

// Complete reports whether every section is complete.
func (c Completion) Complete() bool {
	for _, ok := range c {
		if !ok {
			return false
		}
	}
	return true
}

// Incomplete returns the incomplete section numbers in ascending order.
func (c Completion) Incomplete() []int {
	var out []int
	for n, ok := range c {
		if !ok {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// ComputeCompletion evaluates every section of the snapshot's form. A section
// with no required fields is complete. Disabled fields count as empty.
func ComputeCompletion(s *Snapshot) Completion {
	c := make(Completion, len(s.reg.sections))
	for _, sec := range s.reg.sections {
		complete := true
		for _, name := range s.reg.RequiredFields(sec.Number) {
			if s.IsEmpty(name) {
				complete = false
				break
			}
		}
		c[sec.Number] = complete
	}
	return c
}
