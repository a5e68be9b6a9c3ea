package simulated

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stable parts of the license search page markup.
const (
	LastNamePrefix    = "LastName_"
	SSNPrefix         = "Last4SSN_"
	DOBPrefix         = "DateOfBirth_"
	TriggerID         = "cphBottomFunctionBand_ctl03_PerformSearch"
	ResultsSelector   = "#SearchResults"
	NotFoundPhrase    = "No issued licenses were found using your search criteria."
	FoundMarker       = "License Number"
	triggerSelector   = `a[id*="PerformSearch"]`
	submitSelector    = `input[type="submit"]`
	pageTitle         = "Responsible Vendor License Search"
	viewStateSentinel = "/wEPDwUKMTY3NzE5MjIzNmRk"
)

// Criteria is what a simulated search was submitted with.
type Criteria struct {
	LastName    string
	Last4SSN    string
	DateOfBirth string
}

// Responder decides the markup the results container receives for a search.
type Responder func(c Criteria) string

// PageOptions shapes the generated search page.
type PageOptions struct {
	// Suffix is appended to every field prefix. Empty means a random token.
	Suffix string
	// OmitFields lists field prefixes left out of the form.
	OmitFields []string
	// SubmitButton replaces the PerformSearch link with a submit input.
	SubmitButton bool
	// NoTrigger leaves the form without any submit control.
	NoTrigger bool
	// NoContainer leaves out the results container.
	NoContainer bool
	// InitialResults is the container's pre-submission markup.
	InitialResults string
	// Script is appended to the body in a script element. The simulated
	// backend does not run it; real browsers served over HTTP do.
	Script string
}

// LicenseSearchPage renders a search page whose input names carry a volatile
// suffix, as the live page does on every load.
func LicenseSearchPage(opts PageOptions) string {
	suffix := opts.Suffix
	if suffix == "" {
		suffix = strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	}
	omit := make(map[string]bool, len(opts.OmitFields))
	for _, f := range opts.OmitFields {
		omit[f] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>\n", pageTitle)
	b.WriteString(`<form id="possedocumentchangeform" method="post" action="Default.aspx">` + "\n")
	fmt.Fprintf(&b, `<input type="hidden" id="__VIEWSTATE" name="__VIEWSTATE" value="%s">`+"\n", viewStateSentinel)
	b.WriteString(`<input type="text" id="SearchTerm" name="SearchTerm" value="">` + "\n")
	for _, field := range []struct{ prefix, label string }{
		{LastNamePrefix, "Last Name"},
		{SSNPrefix, "Last 4 of SSN"},
		{DOBPrefix, "Date of Birth"},
	} {
		if omit[field.prefix] {
			continue
		}
		name := field.prefix + suffix
		fmt.Fprintf(&b, `<label for="%s_sxx">%s</label><input type="text" id="%s_sxx" name="%s" value="">`+"\n",
			name, field.label, name, name)
	}
	switch {
	case opts.NoTrigger:
	case opts.SubmitButton:
		b.WriteString(`<input type="submit" name="btnSearch" value="Search">` + "\n")
	default:
		fmt.Fprintf(&b, `<a id="%s" href="javascript:PerformSearch()">Search</a>`+"\n", TriggerID)
	}
	b.WriteString("</form>\n")
	if !opts.NoContainer {
		fmt.Fprintf(&b, `<div id="SearchResults" class="possesearchresults">%s</div>`+"\n", opts.InitialResults)
	}
	if opts.Script != "" {
		fmt.Fprintf(&b, "<script>%s</script>\n", opts.Script)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// NotFoundResults is the markup the page renders when nothing matches.
func NotFoundResults() string {
	return `<span class="possemessage">` + NotFoundPhrase + `</span>`
}

// FoundResults renders a one-row license table for c.
func FoundResults(c Criteria, license string) string {
	return fmt.Sprintf(`<table id="grdResults"><tr><th>Name</th><th>License Number</th><th>Status</th></tr>`+
		`<tr><td>%s</td><td>%s</td><td>Issued</td></tr></table>`,
		html.EscapeString(c.LastName), html.EscapeString(license))
}

// LicenseSearchSite serves LicenseSearchPage and, after delay, fills the
// results container with whatever respond returns for the submitted values.
func LicenseSearchSite(opts PageOptions, delay time.Duration, respond Responder) Site {
	search := func(p *Page) {
		c := criteriaFrom(p.Values())
		p.After(delay, func(p *Page) {
			p.SetInnerHTML(ResultsSelector, respond(c))
		})
	}
	return Site{
		Document: func(int) string { return LicenseSearchPage(opts) },
		OnClick: map[string]Handler{
			triggerSelector: search,
			submitSelector:  search,
		},
	}
}

// DemoResponder answers every search with the not-found message, except for
// the last name "Sample", which has one issued license.
func DemoResponder(c Criteria) string {
	if strings.EqualFold(c.LastName, "Sample") {
		return FoundResults(c, "RV-"+c.Last4SSN)
	}
	return NotFoundResults()
}

// DemoSite is the site served when the simulated backend is configured.
func DemoSite() Site {
	return LicenseSearchSite(PageOptions{}, 1500*time.Millisecond, DemoResponder)
}

func criteriaFrom(values map[string]string) Criteria {
	var c Criteria
	for name, v := range values {
		switch {
		case strings.HasPrefix(name, LastNamePrefix):
			c.LastName = v
		case strings.HasPrefix(name, SSNPrefix):
			c.Last4SSN = v
		case strings.HasPrefix(name, DOBPrefix):
			c.DateOfBirth = v
		}
	}
	return c
}
