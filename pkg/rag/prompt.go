package rag

import (
	"fmt"
	"strings"
)

const specialistPrompt = `You are a specialist assistant for the UK Building Regulations (England and Wales), helping homeowners, builders, architects and surveyors understand what the Regulations and the Approved Documents require.`

const guidelines = `Follow these rules when answering:
1. Use British English spelling throughout (for example: colour, metre, organisation, licence, centre).
2. Base your answer on the regulation context provided below. If the context does not cover the question, say so rather than guessing.
3. Cite the relevant Approved Document Part by letter and name, for example "Part A - Structure", "Part B - Fire Safety" or "Part L - Conservation of fuel and power".
4. Use UK construction terminology (ground floor, lift, tap, skirting board, loft) rather than American terms.
5. Give measurements in metric units (mm, m, m², kW, W/m²K).
6. Be precise about thresholds, minimum dimensions and performance values where the context states them.
7. Distinguish between legal requirements and guidance in the Approved Documents.
8. Mention when Building Control approval, a competent person scheme or planning permission may also be needed.
9. Keep answers well structured, using short paragraphs or lists.
10. When diagrams or visual references accompany the context, mention that they are available.
11. Recommend consulting Building Control or a qualified professional for complex or safety-critical work.`

// buildSystemPrompt orders the sources as project scope, history, project
// documents and finally the regulation context.
func buildSystemPrompt(t *turn) string {
	var b strings.Builder

	b.WriteString(specialistPrompt)
	b.WriteString("\n\n")

	if t.scope != nil {
		s := t.scope
		name := s.Name
		if name == "" {
			name = "Unnamed project"
		}
		fmt.Fprintf(&b, "PROJECT SCOPE: You are answering for the project %q (ID: %s) for user %s only. Never use or mention information from any other project or user.\n", name, s.ID, s.UserID)
		if s.Description != "" {
			fmt.Fprintf(&b, "Project description: %s\n", s.Description)
		}
		if s.Label != "" {
			fmt.Fprintf(&b, "Project type: %s\n", s.Label)
		}
		if s.Status != "" {
			fmt.Fprintf(&b, "Project status: %s\n", s.Status)
		}
		b.WriteString("Use only information that belongs to this project. Never refer to documents or conversations from any other project or user.\n\n")
	}

	b.WriteString(guidelines)
	b.WriteString("\n\n")

	if t.scope != nil {
		b.WriteString("PREVIOUS CONVERSATIONS FOR THIS PROJECT:\n")
		if t.history != "" {
			b.WriteString(t.history)
		} else {
			b.WriteString("No previous conversations.")
		}
		b.WriteString("\n\n")

		fmt.Fprintf(&b, "PROJECT DOCUMENTS (%d):\n", len(t.analyses))
		if len(t.analyses) == 0 {
			b.WriteString("No documents uploaded.\n")
		}
		for _, a := range t.analyses {
			fmt.Fprintf(&b, "DOCUMENT: %s (%s)\n%s\n\n", a.Document.FileName, a.Document.FileType, a.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Context from UK Building Regulations documents:\n")
	b.WriteString(t.regulations)

	return b.String()
}
