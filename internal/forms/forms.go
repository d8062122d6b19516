package forms

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Form embeds parsed form data plus any validation failures.
type Form struct {
	url.Values
	Errors errors
}

// New initializes a Form for the given data.
func New(data url.Values) *Form {
	return &Form{
		data,
		errors(map[string][]string{}),
	}
}

// Required marks the given fields as mandatory.
func (f *Form) Required(fields ...string) {
	for _, field := range fields {
		value := f.Get(field)
		if strings.TrimSpace(value) == "" {
			f.Errors.Add(field, "This field cannot be blank")
		}
	}
}

// MaxLength limits the number of characters a field accepts.
func (f *Form) MaxLength(field string, d int) {
	value := f.Get(field)
	if value == "" {
		return
	}
	if utf8.RuneCountInString(value) > d {
		f.Errors.Add(field, fmt.Sprintf("This field is too long (maximum is %d characters)", d))
	}
}

// Decimal parses a field as a non-negative decimal amount. The zero value is
// returned alongside a recorded failure when the field does not parse.
func (f *Form) Decimal(field string) decimal.Decimal {
	value := f.Get(field)
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		f.Errors.Add(field, "This field must be a number")
		return decimal.Zero
	}
	if d.IsNegative() {
		f.Errors.Add(field, "This field cannot be negative")
		return decimal.Zero
	}
	return d
}

// Valid reports whether the form passed all checks.
func (f *Form) Valid() bool {
	return len(f.Errors) == 0
}
