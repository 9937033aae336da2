package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/powerbrain/brainmem-go/pkg/core"
	"github.com/powerbrain/brainmem-go/pkg/extractor"
	"github.com/powerbrain/brainmem-go/pkg/model"
)

func newRememberCmd(flags *globalFlags) *cobra.Command {
	var (
		memoryType string
		importance float64
		tags       []string
		threshold  float64
	)

	cmd := &cobra.Command{
		Use:   "remember <content...>",
		Short: "Store a memory, merging it into a near-duplicate if one exists",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.requireUser(); err != nil {
				return err
			}
			memType, err := model.ParseMemoryType(memoryType)
			if err != nil {
				return err
			}

			opts := []core.StoreOption{
				core.WithUserID(flags.userID),
				core.WithMemoryType(memType),
				core.WithTags(tags...),
			}
			if cmd.Flags().Changed("importance") {
				opts = append(opts, core.WithImportance(importance))
			}
			if cmd.Flags().Changed("threshold") {
				opts = append(opts, core.WithDedupThreshold(threshold))
			}

			client, err := flags.openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			memory, err := client.Store(cmd.Context(), strings.Join(args, " "), opts...)
			if err != nil {
				return err
			}
			verb := "stored"
			if memory.AccessCount > 0 {
				verb = "merged into"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, memory.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&memoryType, "type", "t", string(model.MemoryTypeEpisodic), "memory type: episodic or semantic")
	f.Float64Var(&importance, "importance", 0, "importance in [0,1] (default: estimated from content)")
	f.StringSliceVar(&tags, "tags", nil, "comma separated tags")
	f.Float64Var(&threshold, "threshold", 0, "similarity at or above which memories merge (default: configured)")
	return cmd
}

func newRecallCmd(flags *globalFlags) *cobra.Command {
	var (
		topK          int
		minSimilarity float64
		types         []string
		tags          []string
		days          int
		allUsers      bool
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "recall <query...>",
		Short: "Retrieve the most relevant memories for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.requireUser(); err != nil {
				return err
			}
			client, err := flags.openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			q := client.NewQuery(flags.userID, strings.Join(args, " "))
			if cmd.Flags().Changed("top-k") {
				q.TopK = topK
			}
			if cmd.Flags().Changed("min-similarity") {
				q.MinSimilarity = minSimilarity
			}
			if cmd.Flags().Changed("days") {
				q.TimeWindowDays = &days
			}
			for _, t := range types {
				memType, err := model.ParseMemoryType(t)
				if err != nil {
					return err
				}
				q.MemoryTypes = append(q.MemoryTypes, memType)
			}
			q.Tags = tags
			q.AllowCrossUser = allUsers

			results, err := client.Retrieve(cmd.Context(), q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				for _, r := range results {
					r.Memory.Embedding = nil
				}
				return writeJSON(out, results)
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "no memories found")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. [%.3f] ", i+1, r.FinalScore)
				printMemory(out, r.Memory)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&topK, "top-k", "k", 0, "maximum number of results (default: configured)")
	f.Float64Var(&minSimilarity, "min-similarity", 0, "minimum similarity (default: configured)")
	f.StringSliceVar(&types, "types", nil, "restrict to these memory types")
	f.StringSliceVar(&tags, "tags", nil, "require at least one of these tags")
	f.IntVar(&days, "days", 0, "only memories created within this many days")
	f.BoolVar(&allUsers, "all-users", false, "search every user's memories")
	f.BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func newForgetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Forget(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return nil
		},
	}
}

func newListCmd(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		offset int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored memories, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			memories, err := client.List(cmd.Context(), flags.userID, limit, offset)
			if err != nil {
				return err
			}
			total, err := client.Count(cmd.Context(), flags.userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				for _, m := range memories {
					m.Embedding = nil
				}
				return writeJSON(out, map[string]any{"memories": memories, "total": total})
			}
			for _, m := range memories {
				printMemory(out, m)
			}
			fmt.Fprintf(out, "%d of %d memories\n", len(memories), total)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&limit, "limit", 0, "maximum number of memories (default: 100)")
	f.IntVar(&offset, "offset", 0, "number of memories to skip")
	f.BoolVar(&asJSON, "json", false, "print memories as JSON")
	return cmd
}

func newContextCmd(flags *globalFlags) *cobra.Command {
	var maxMemories int

	cmd := &cobra.Command{
		Use:   "context <query...>",
		Short: "Print the memory context block for a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.requireUser(); err != nil {
				return err
			}
			client, err := flags.openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			text, err := client.BuildContext(cmd.Context(), flags.userID, strings.Join(args, " "), maxMemories)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxMemories, "max", core.DefaultContextMemories, "maximum memories in the context")
	return cmd
}

func newExtractCmd(flags *globalFlags) *cobra.Command {
	var (
		userMessage      string
		assistantMessage string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract memories from one conversation exchange with the LLM and store them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.requireUser(); err != nil {
				return err
			}
			client, err := flags.openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			stored, results, err := client.ExtractAndStore(cmd.Context(), flags.userID, userMessage, assistantMessage)
			out := cmd.OutOrStdout()
			for _, m := range stored {
				printMemory(out, m)
			}
			for _, f := range extractor.Failures(results) {
				fmt.Fprintf(out, "skipped line %d: %v\n", f.Line, f.Err)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&userMessage, "message", "m", "", "what the user said")
	f.StringVarP(&assistantMessage, "reply", "r", "", "what the assistant answered")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func printMemory(w io.Writer, m *model.Memory) {
	fmt.Fprintf(w, "%s  %-9s %.2f  %s", m.ID, m.MemoryType, m.ImportanceScore, m.Content)
	if len(m.Tags) > 0 {
		fmt.Fprintf(w, "  #%s", strings.Join(m.Tags, " #"))
	}
	fmt.Fprintln(w)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
