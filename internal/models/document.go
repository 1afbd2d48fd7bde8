package models

import "time"

// ProjectDocument is a row of the project_documents table. FilePath is the
// bucket key and always starts with "<UserID>/<ProjectID>/".
type ProjectDocument struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	FilePath  string `json:"file_path"`
	FileType  string `json:"file_type"`
	FileSize  int64  `json:"file_size"`
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
}

type ConversationRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
}

type Message struct {
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentAnalysis is the prompt-ready content produced for one project document.
type DocumentAnalysis struct {
	Document ProjectDocument
	Content  string
}
