package models

import "time"

// Category is a user-defined label messages are classified into.
type Category struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Tone         string    `json:"tone,omitempty"`
	Template     string    `json:"template,omitempty"`
	CustomPrompt string    `json:"custom_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CategoryNames returns the names in set order.
func CategoryNames(categories []Category) []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names
}
