package smd

// Search declares the interface shape of a structured query against a
// namespace (§4.4, §9). Its argument and result encoding are left
// unspecified by design: the reference backend's Search returns an
// always-empty, immediately-exhausted cursor, and no query language is
// defined. Search exists so callers and future backends have a stable
// type to hold, not because the reference stack executes a query today.
type Search struct {
	Namespace string
	Args      []byte
}

// NewSearch constructs a Search against namespace. args is passed
// through to Backend.Search uninterpreted.
func NewSearch(namespace string, args []byte) *Search {
	return &Search{Namespace: namespace, Args: args}
}
