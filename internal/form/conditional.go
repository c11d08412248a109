package form

// EnabledStates evaluates bindings against the current controller values.
// A dependent is enabled if and only if its controller currently equals the
// trigger value.
func EnabledStates(bindings []Binding, current func(name string) string) map[string]bool {
	states := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		states[b.Dependent] = current(b.Controller) == b.Trigger
	}
	return states
}

// Change reports dependent fields whose enabled state flipped after an edit.
type Change struct {
	Enabled  []string `json:"enabled,omitempty"`
	Disabled []string `json:"disabled,omitempty"`

	// Focus names the field that should receive input focus, if any.
	Focus string `json:"focus,omitempty"`
}

// diffStates compares two EnabledStates results in binding order.
func diffStates(bindings []Binding, before, after map[string]bool) Change {
	var c Change
	for _, b := range bindings {
		was, is := before[b.Dependent], after[b.Dependent]
		switch {
		case !was && is:
			c.Enabled = append(c.Enabled, b.Dependent)
			if c.Focus == "" {
				c.Focus = b.Dependent
			}
		case was && !is:
			c.Disabled = append(c.Disabled, b.Dependent)
		}
	}
	return c
}
