package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lazypower/nudge/internal/engine"
	"github.com/lazypower/nudge/internal/llm"
	"github.com/lazypower/nudge/internal/server"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- record command ---

var (
	recordContext     string
	recordDescription string
	recordStep        string
	recordInterval    int
	recordFallback    bool
)

var recordCmd = &cobra.Command{
	Use:   "record TASK ACTION",
	Short: "Record a reminder interaction",
	Long: "Record how a reminder was handled. ACTION is usually skip, complete or snooze; " +
		"three skips in a row produce a suggestion.",
	Args: cobra.ExactArgs(2),
	RunE: runRecord,
}

// recordContextMap merges --context JSON with the convenience flags.
func recordContextMap() (map[string]any, error) {
	ctx := map[string]any{}
	if recordContext != "" {
		if err := json.Unmarshal([]byte(recordContext), &ctx); err != nil {
			return nil, fmt.Errorf("--context must be a JSON object: %w", err)
		}
	}
	if recordDescription != "" {
		ctx[engine.CtxTaskDescription] = recordDescription
	}
	if recordStep != "" {
		ctx[engine.CtxBaselineStep] = recordStep
	}
	if recordInterval > 0 {
		ctx[engine.CtxReminderInterval] = recordInterval
	}
	if len(ctx) == 0 {
		return nil, nil
	}
	return ctx, nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctxMap, err := recordContextMap()
	if err != nil {
		return err
	}

	b, release, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	s, err := b.RecordInteraction(cmd.Context(), args[0], server.InteractionRequest{
		Action:        args[1],
		Context:       ctxMap,
		ForceFallback: recordFallback,
	})
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if s == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for %s.\n", args[1], args[0])
		return nil
	}
	return printJSON(cmd.OutOrStdout(), s)
}

// --- suggestion command ---

var suggestionCmd = &cobra.Command{
	Use:   "suggestion TASK",
	Short: "Show the latest suggestion for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, release, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer release()

		s, err := b.LastSuggestion(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("suggestion: %w", err)
		}
		if s == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "No suggestion for %s.\n", args[0])
			return nil
		}
		return printJSON(cmd.OutOrStdout(), s)
	},
}

// --- reset command ---

var resetCmd = &cobra.Command{
	Use:   "reset TASK",
	Short: "Forget a task's history and suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, release, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer release()

		if err := b.ResetTaskHistory(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %s.\n", args[0])
		return nil
	},
}

// --- dump command ---

var (
	dumpFallback bool
	dumpJSON     bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump ITEM...",
	Short: "Organize a brain dump into categories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	b, release, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	res, err := b.OrganizeBrainDump(cmd.Context(), server.BrainDumpRequest{
		Items:         args,
		ForceFallback: dumpFallback,
	})
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}

	out := cmd.OutOrStdout()
	if dumpJSON {
		return printJSON(out, res)
	}
	for _, cat := range res.Categories {
		fmt.Fprintf(out, "## %s\n", cat.Label)
		for _, item := range cat.Items {
			fmt.Fprintf(out, "- %s\n", item)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Focus: %s\n", res.FocusRecommendation)
	fmt.Fprintln(out, res.Summary)
	if res.Error != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "note: completion failed (%s), used built-in categories\n", res.Error)
	}
	return nil
}

// --- state command ---

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the full tracker state as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, release, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer release()

		st, err := b.State(cmd.Context())
		if err != nil {
			return fmt.Errorf("state: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

// --- apikey command ---

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage the stored completion API key",
}

var apikeySetCmd = &cobra.Command{
	Use:   "set KEY",
	Short: "Store the API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.TrimSpace(args[0])
		if key == "" {
			return fmt.Errorf("key is empty; use 'nudge apikey clear' to remove it")
		}
		return setAPIKey(cmd, key, "API key stored.")
	},
}

var apikeyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAPIKey(cmd, "", "API key cleared.")
	},
}

var apikeyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Report whether an API key is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, release, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer release()

		ok, err := b.KeyConfigured(cmd.Context())
		if err != nil {
			return fmt.Errorf("apikey: %w", err)
		}
		if ok {
			fmt.Fprintln(cmd.OutOrStdout(), "API key: configured")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "API key: not configured")
		}
		return nil
	},
}

func setAPIKey(cmd *cobra.Command, key, msg string) error {
	b, release, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	if err := b.SetAPIKey(cmd.Context(), key); err != nil {
		return fmt.Errorf("apikey: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

// --- ask command ---

var (
	askSystem string
	askModel  string
)

var askCmd = &cobra.Command{
	Use:   "ask PROMPT...",
	Short: "Send a raw prompt to the completion service",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, release, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer release()

		var msgs []llm.Message
		if askSystem != "" {
			msgs = append(msgs, llm.Message{Role: "system", Content: askSystem})
		}
		msgs = append(msgs, llm.Message{Role: "user", Content: strings.Join(args, " ")})

		text, err := b.Complete(cmd.Context(), server.CompleteRequest{Messages: msgs, Model: askModel})
		if err != nil {
			return fmt.Errorf("ask: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordContext, "context", "", "interaction context as a JSON object")
	recordCmd.Flags().StringVarP(&recordDescription, "description", "d", "", "task description for suggestions")
	recordCmd.Flags().StringVar(&recordStep, "step", "", "baseline first step to suggest")
	recordCmd.Flags().IntVar(&recordInterval, "interval", 0, "current reminder interval in minutes")
	recordCmd.Flags().BoolVar(&recordFallback, "offline", false, "never call the completion service")

	dumpCmd.Flags().BoolVar(&dumpFallback, "offline", false, "never call the completion service")
	dumpCmd.Flags().BoolVar(&dumpJSON, "json", false, "print the result as JSON")

	apikeyCmd.AddCommand(apikeySetCmd)
	apikeyCmd.AddCommand(apikeyShowCmd)
	apikeyCmd.AddCommand(apikeyClearCmd)

	askCmd.Flags().StringVar(&askSystem, "system", "", "system prompt")
	askCmd.Flags().StringVar(&askModel, "model", "", "model override")
}
