package forms

// errors holds validation failures keyed by form field.
type errors map[string][]string

// Add appends a message to the failures of the given field.
func (e errors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Get returns the first failure message of the given field.
func (e errors) Get(field string) string {
	es := e[field]
	if len(es) == 0 {
		return ""
	}
	return es[0]
}
