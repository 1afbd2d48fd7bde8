package gateway

import (
	"strings"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/apierr"
)

// StoragePrefix is the bucket prefix every document of a project must live under.
func StoragePrefix(userID, projectID string) string {
	return userID + "/" + projectID + "/"
}

// ValidateScope checks that a request carries a complete (project, user) pair.
func ValidateScope(projectID, userID string) error {
	if strings.TrimSpace(projectID) == "" || strings.TrimSpace(userID) == "" {
		return apierr.Errorf(apierr.SecurityViolation, "project context requires both project id and user id")
	}
	return nil
}

// ValidateDocument rejects a document that is not owned by the scope or is
// stored outside the scope's prefix. Mismatches are violations, not filters.
func ValidateDocument(doc models.ProjectDocument, projectID, userID string) error {
	if doc.ProjectID != projectID || doc.UserID != userID {
		return apierr.Errorf(apierr.SecurityViolation, "document %s is not owned by the requested scope", doc.ID)
	}
	if !strings.HasPrefix(doc.FilePath, StoragePrefix(userID, projectID)) {
		return apierr.Errorf(apierr.SecurityViolation, "document %s is stored outside the scope prefix", doc.ID)
	}
	return nil
}

func ValidateConversation(conv models.ConversationRecord, projectID, userID string) error {
	if conv.ProjectID != projectID || conv.UserID != userID {
		return apierr.Errorf(apierr.SecurityViolation, "conversation %s is not owned by the requested scope", conv.ID)
	}
	return nil
}
