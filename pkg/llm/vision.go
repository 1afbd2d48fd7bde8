package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

const visionSystemPrompt = `You are a UK Building Regulations specialist reviewing an image uploaded to a construction project.
Describe what the image shows (drawings, plans, elevations, sections, site photographs, details) and identify anything relevant to compliance with the Building Regulations for England and Wales, citing the relevant Approved Document Part by letter.
Note visible dimensions in metric units, materials, fire separation, means of escape, accessibility, ventilation and structural features where present.
Use British English spelling and UK construction terminology.`

// VisionAnalyzer describes project images with a multimodal chat model.
type VisionAnalyzer struct {
	llm       Generator
	model     string
	maxTokens int
	log       *logger.Logger
}

func NewVisionAnalyzer(gen Generator, model string, log *logger.Logger) *VisionAnalyzer {
	if model == "" {
		model = "gpt-4o"
	}
	return &VisionAnalyzer{
		llm:       gen,
		model:     model,
		maxTokens: 800,
		log:       log.With("component", "vision"),
	}
}

// AnalyzeImage never fails: upstream errors yield a placeholder naming the file.
func (v *VisionAnalyzer) AnalyzeImage(ctx context.Context, image []byte, fileName, mimeType, userMessage, projectID, userID string) string {
	if len(image) == 0 {
		v.log.Warn("empty image skipped", "file", fileName, "project_id", projectID)
		return imagePlaceholder(fileName, projectID)
	}

	mime := NormalizeImageMIME(mimeType)
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)

	prompt := fmt.Sprintf("Image file: %s\nThis image belongs to project %s and user %s only. Do not refer to any other project or user.\nThe user is asking: %s\n\nAnalyse this image in the context of that question.",
		fileName, projectID, userID, userMessage)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, visionSystemPrompt),
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
				llms.ImageURLContent{URL: dataURL},
			},
		},
	}

	resp, err := v.llm.GenerateContent(ctx, messages,
		llms.WithModel(v.model),
		llms.WithMaxTokens(v.maxTokens),
		llms.WithTemperature(0.2),
	)
	if err == nil {
		var text string
		if text, err = firstChoice(resp); err == nil {
			return fmt.Sprintf("[IMAGE ANALYSIS: %s | project %s | user %s]\n%s", fileName, projectID, userID, text)
		}
	}

	v.log.Warn("image analysis failed",
		"file", fileName,
		"project_id", projectID,
		"user_id", userID,
		"error", apierr.New(apierr.UpstreamVisionFailure, err),
	)
	return imagePlaceholder(fileName, projectID)
}

func imagePlaceholder(fileName, projectID string) string {
	return fmt.Sprintf("[IMAGE: %s] This image is stored in project %s and is available for reference, but it could not be analysed at this time.", fileName, projectID)
}

// NormalizeImageMIME maps a stored file type onto one the vision model accepts.
func NormalizeImageMIME(mimeType string) string {
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/png", "image/x-png":
		return "image/png"
	case "image/gif":
		return "image/gif"
	case "image/webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
