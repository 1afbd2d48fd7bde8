package models

import "encoding/json"

// ProjectContext scopes a chat request to one (project, user) pair.
type ProjectContext struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Label       string `json:"label,omitempty"`
	Status      string `json:"status,omitempty"`
}

// UnmarshalJSON keeps only string-typed fields. A non-string id or userId
// decodes to an empty value so scope validation rejects it.
func (p *ProjectContext) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	*p = ProjectContext{
		ID:          str("id"),
		UserID:      str("userId"),
		Name:        str("name"),
		Description: str("description"),
		Label:       str("label"),
		Status:      str("status"),
	}
	return nil
}

type ChatRequest struct {
	Message        string          `json:"message"`
	ProjectContext *ProjectContext `json:"projectContext,omitempty"`
}

type Image struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

type ChatAnswer struct {
	Response                string  `json:"response"`
	Images                  []Image `json:"images"`
	DocumentsAnalyzed       *int    `json:"documentsAnalyzed,omitempty"`
	ConversationsReferenced string  `json:"conversationsReferenced,omitempty"`
	ProjectID               string  `json:"projectId,omitempty"`
}

type ErrorResponse struct {
	Error   string  `json:"error"`
	Details string  `json:"details"`
	Images  []Image `json:"images"`
}
