package tools

// SearchIndexName is the name of the index search tool invoked by the
// assistant backend.
const SearchIndexName = "searchIndex"

// SearchIndexInput is the argument payload of a searchIndex call.
type SearchIndexInput struct {
	Query string `json:"query" jsonschema:"required,description=Natural language search query" validate:"required"`
}

// SearchIndexOutput is the result payload of a searchIndex call.
type SearchIndexOutput struct {
	Hits  []map[string]any `json:"hits" jsonschema:"required,description=Matching index records"`
	Query string           `json:"query" jsonschema:"required"`
}

// Default returns a Registry with the built-in tools registered.
func Default() *Registry {
	r := NewRegistry()
	Register[SearchIndexInput, SearchIndexOutput](r, SearchIndexName, "Searches the configured index for records relevant to the query")
	return r
}
