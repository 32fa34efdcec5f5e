package serp

// Selectors locate the parts of a result page. Each field is a CSS selector;
// all but Region and Container are evaluated inside one result container.
type Selectors struct {
	Region        string
	Container     string
	Title         string
	DisplayedLink string
	Link          string
	Snippet       string
}

// Engine describes a search engine's query endpoint and page layout.
type Engine struct {
	Name      string
	BaseURL   string
	Selectors Selectors
}

// Google is the default engine.
var Google = Engine{
	Name:    "Google",
	BaseURL: "https://www.google.com/search",
	Selectors: Selectors{
		Region:        "div#search",
		Container:     "div#search div.g",
		Title:         "h3",
		DisplayedLink: "cite",
		Link:          "a[href]",
		Snippet:       "div.IsZvec, div.VwiC3b",
	},
}
