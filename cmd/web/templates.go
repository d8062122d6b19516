package main

import (
	"html/template"
	"path/filepath"

	"github.com/denver-code/fixly-frontend/internal/forms"
	"github.com/denver-code/fixly-frontend/internal/product"
	"github.com/shopspring/decimal"
)

// view modes the dashboard recognizes
const (
	viewModeTable = "table"
	viewModeCards = "cards"
)

type templateData struct {
	CSRFToken       string
	CurrentYear     int
	Error           string
	Flash           string
	Form            *forms.Form
	IsAuthenticated bool
	Product         *product.Product
	Products        []dashboardRow
	Username        string
	Version         string
	ViewMode        string
}

// formatPrice renders a decimal amount in the currency the backend uses.
func formatPrice(d decimal.Decimal) string {
	return "£" + d.StringFixed(2)
}

// formatNullPrice renders an optional amount, an em-dash when absent.
func formatNullPrice(d decimal.NullDecimal) string {
	if !d.Valid {
		return "—"
	}
	return formatPrice(d.Decimal)
}

var functions = template.FuncMap{
	"formatNullPrice": formatNullPrice,
	"formatPrice":     formatPrice,
}

func newTemplateCache(dir string) (map[string]*template.Template, error) {
	cache := map[string]*template.Template{}

	pages, err := filepath.Glob(filepath.Join(dir, "*.page.tmpl"))
	if err != nil {
		return nil, err
	}

	for _, page := range pages {
		name := filepath.Base(page)

		ts, err := template.New(name).Funcs(functions).ParseFiles(page)
		if err != nil {
			return nil, err
		}

		ts, err = ts.ParseGlob(filepath.Join(dir, "*.layout.tmpl"))
		if err != nil {
			return nil, err
		}

		ts, err = ts.ParseGlob(filepath.Join(dir, "*.partial.tmpl"))
		if err != nil {
			return nil, err
		}

		cache[name] = ts
	}

	return cache, nil
}
