package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/victornm/tquiz/internal/quiz"
	"github.com/victornm/tquiz/internal/trivia"
)

// newQuestionsCmd fetches a batch from the question provider and prints it,
// which is handy to check connectivity and decoding.
func newQuestionsCmd(o *rootOptions) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Fetch a question batch and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(o)
			if err != nil {
				return err
			}

			client := trivia.NewClient(trivia.Config{
				BaseURL: c.Trivia.BaseURL,
				Timeout: c.Trivia.Timeout,
			})

			qs, err := client.FetchQuestions(cmd.Context(), count)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(qs)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", quiz.BatchSize, "number of questions")

	return cmd
}
