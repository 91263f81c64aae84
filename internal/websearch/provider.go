package websearch

// searchResponse mirrors the provider's JSON result envelope, keeping only
// the fields the engine consumes.
type searchResponse struct {
	Web struct {
		Results []webResult `json:"results"`
	} `json:"web"`
}

type webResult struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Description   string   `json:"description"`
	PageAge       string   `json:"page_age"`
	Age           string   `json:"age"`
	ExtraSnippets []string `json:"extra_snippets"`
}
