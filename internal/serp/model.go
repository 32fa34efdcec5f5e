// Package serp turns search-engine result pages into typed results and drives
// multi-page queries.
package serp

// SiteLink is a sub-link shown under an organic result.
type SiteLink struct {
	Title   string `json:"title" yaml:"title"`
	Link    string `json:"link" yaml:"link"`
	Snippet string `json:"snippet,omitempty" yaml:"snippet,omitempty"`
}

// Question is a "people also ask" entry.
type Question struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// OrganicResult is one non-advertising search hit.
type OrganicResult struct {
	Position           int        `json:"position" yaml:"position"` // 1-based container index on the page
	Title              string     `json:"title" yaml:"title"`
	Link               string     `json:"link" yaml:"link"`
	DisplayedLink      string     `json:"displayed_link" yaml:"displayed_link"`
	Snippet            string     `json:"snippet" yaml:"snippet"`
	SitelinksSearchBox bool       `json:"sitelinks_search_box" yaml:"sitelinks_search_box"`
	Sitelinks          []SiteLink `json:"sitelinks,omitempty" yaml:"sitelinks,omitempty"`
	Questions          []Question `json:"questions,omitempty" yaml:"questions,omitempty"`
}

// SERP is the parsed content of one result page.
type SERP struct {
	OrganicResults []OrganicResult `json:"organic_results" yaml:"organic_results"`
}

// SEResult is the outcome of a multi-page query. NrPages always equals
// len(Pages).
type SEResult struct {
	Query   string `json:"query" yaml:"query"`
	NrPages int    `json:"nr_pages" yaml:"nr_pages"`
	Pages   []SERP `json:"pages" yaml:"pages"`
}

// Results returns the organic results of every page in order.
func (r *SEResult) Results() []OrganicResult {
	var out []OrganicResult
	for _, p := range r.Pages {
		out = append(out, p.OrganicResults...)
	}
	return out
}
