package query

// Column describes one column of a table component.
type Column struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	DataType string `json:"dataType"`
}

// TableData carries the rows rendered by the frontend table component.
type TableData struct {
	Columns []Column            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// TableConfig mirrors the frontend table component configuration.
type TableConfig struct {
	Title      string `json:"title"`
	Sortable   bool   `json:"sortable"`
	Filterable bool   `json:"filterable"`
	Pagination bool   `json:"pagination"`
}

// Component is a renderable UI block delivered to the frontend.
type Component struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	Data   TableData   `json:"data"`
	Config TableConfig `json:"config"`
}

// Patch is a JSON-patch style instruction appended to the frontend view tree.
type Patch struct {
	Op    string    `json:"op"`
	Path  string    `json:"path"`
	Value Component `json:"value"`
}

// FormattedMessage is the presentation-ready envelope published to every
// connected channel once a dispatch finishes.
type FormattedMessage struct {
	Patches   []Patch `json:"patches"`
	RequestID string  `json:"requestId"`
	Message   string  `json:"message,omitempty"`
	Timestamp float64 `json:"timestamp"`
}
