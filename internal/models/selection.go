package models

// Selection is the "small items + one big item" split of a homepage section.
// Big is nil when the category has no more than the requested left count.
type Selection struct {
	Category string `json:"category"`
	Left     []Post `json:"left"`
	Big      *Post  `json:"big,omitempty"`
}
