package extract

// OutputSchema is the JSON schema the model's answer must satisfy. A fresh
// map is returned on every call.
func OutputSchema() map[string]any {
	str := map[string]any{"type": "string"}
	integer := map[string]any{"type": "integer"}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"knowledge": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"topic_title":  str,
						"claim":        str,
						"domain":       str,
						"tags":         str,
						"action":       str,
						"topic_id":     integer,
						"statement_id": integer,
					},
					"required": []string{"topic_title", "claim", "domain", "tags", "action"},
				},
			},
			"session_tags": map[string]any{
				"type":  "array",
				"items": str,
			},
			"tasks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":    str,
						"domain":   str,
						"priority": str,
						"horizon":  str,
						"status":   str,
						"action":   str,
						"task_id":  integer,
						"content":  str,
					},
					"required": []string{"action"},
				},
			},
		},
		"required": []string{"knowledge", "session_tags", "tasks"},
	}
}
