package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/apierr"
)

func newChatCmd(a *app) *cobra.Command {
	var project models.ProjectContext

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about the UK Building Regulations interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var scope *models.ProjectContext
			if project.ID != "" || project.UserID != "" {
				scope = &project
			}

			orchestrator, err := a.chatPipeline(ctx)
			if err != nil {
				return err
			}

			if scope != nil {
				color.Cyan("\nChat about project %s (type 'exit' to quit)", project.ID)
			} else {
				color.Cyan("\nChat with the UK Building Regulations (type 'exit' to quit)")
			}

			scanner := bufio.NewScanner(os.Stdin)
			userPrompt := color.New(color.FgGreen).PrintfFunc()
			assistantPrompt := color.New(color.FgCyan).PrintfFunc()

			for {
				userPrompt("\nYou: ")
				if !scanner.Scan() {
					break
				}

				query := strings.TrimSpace(scanner.Text())
				if strings.ToLower(query) == "exit" {
					break
				}
				if query == "" {
					continue
				}

				spinner := getSpinner("Searching the regulations...")
				answer, err := orchestrator.Answer(ctx, query, scope)
				_ = spinner.Finish()
				fmt.Print("\r")

				if err != nil {
					color.Red("\n%s", apierr.UserMessage(apierr.KindOf(err)))
					continue
				}

				assistantPrompt("\nAssistant: ")
				fmt.Println(answer.Response)
				for _, img := range answer.Images {
					color.Yellow("  [%s] %s (%s)", img.Title, img.URL, img.Source)
				}
				if answer.DocumentsAnalyzed != nil {
					color.White("  Documents analysed: %d, previous conversations: %s", *answer.DocumentsAnalyzed, answer.ConversationsReferenced)
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&project.ID, "project", "", "Project id to scope the conversation to")
	cmd.Flags().StringVar(&project.UserID, "user", "", "Owner of the project")
	cmd.Flags().StringVar(&project.Name, "project-name", "", "Project name shown to the assistant")
	return cmd
}
