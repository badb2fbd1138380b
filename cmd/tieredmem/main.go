// Command tieredmem is a CLI front-end over pkg/memcore: write, retrieve,
// teach, and inspect the three memory layers from a shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yrahul8811-gif/tieredmemory/pkg/embedding"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memcore"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
	"github.com/yrahul8811-gif/tieredmemory/pkg/retrieval"
)

var (
	dbPath        string
	embeddingDim  int
	outputJSON    bool
	recentContext []string
)

var rootCmd = &cobra.Command{
	Use:   "tieredmem",
	Short: "CLI for the tiered associative memory system",
	Long:  `A command-line interface for writing, retrieving, and teaching a tiered (identity/experience/knowledge) memory store.`,
}

var writeCmd = &cobra.Command{
	Use:   "write <text>",
	Short: "Route and persist a piece of text through the write pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		ctx := context.Background()
		result, err := sys.Write(ctx, args[0], recentContext)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		printResult(result)
		return nil
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Run the read-path pipeline for a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		topK, _ := cmd.Flags().GetInt("top-k")
		contextFilter, _ := cmd.Flags().GetString("context-filter")
		noIdentity, _ := cmd.Flags().GetBool("no-identity")
		noExperience, _ := cmd.Flags().GetBool("no-experience")
		noKnowledge, _ := cmd.Flags().GetBool("no-knowledge")

		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		includeIdentity, includeExperience, includeKnowledge := !noIdentity, !noExperience, !noKnowledge

		ctx := context.Background()
		results, err := sys.Retrieve(ctx, args[0], retrieval.Options{
			Threshold:         threshold,
			TopK:              topK,
			RecentContext:     recentContext,
			ContextFilter:     memtypes.Context(contextFilter),
			IncludeIdentity:   &includeIdentity,
			IncludeExperience: &includeExperience,
			IncludeKnowledge:  &includeKnowledge,
		})
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}

		if outputJSON {
			data, _ := json.MarshalIndent(results, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("Found %d result(s):\n", len(results))
		for i, r := range results {
			sim := ""
			if r.Similarity != nil {
				sim = fmt.Sprintf(" sim=%.3f", *r.Similarity)
			}
			fmt.Printf("%d. [%s] %s (confidence=%.3f%s)\n", i+1, r.Layer, r.Content, r.Confidence, sim)
		}
		return nil
	},
}

var teachCmd = &cobra.Command{
	Use:   "teach <correct-layer> <text>",
	Short: "Apply one online correction: text should have routed to correct-layer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		layer := memtypes.Layer(strings.ToUpper(args[0]))
		if layer != memtypes.IMM && layer != memtypes.EMM && layer != memtypes.KMM {
			return fmt.Errorf("teach: correct-layer must be one of IMM, EMM, KMM, got %q", args[0])
		}

		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		ctx := context.Background()
		if err := sys.Teach(ctx, args[1], recentContext, layer); err != nil {
			return fmt.Errorf("teach: %w", err)
		}
		fmt.Println("classifier updated")
		return nil
	},
}

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Rebuild the classifier from the seed corpus and the full correction log",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if err := sys.Retrain(context.Background()); err != nil {
			return fmt.Errorf("retrain: %w", err)
		}
		fmt.Println("classifier retrained")
		return nil
	},
}

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Recompute experience importance from age",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if err := sys.ApplyExperienceDecay(context.Background()); err != nil {
			return fmt.Errorf("decay: %w", err)
		}
		fmt.Println("experience importance recomputed")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <layer>",
	Short: "List every entry in a layer (identity, experience, knowledge)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		ctx := context.Background()
		var out any
		switch strings.ToLower(args[0]) {
		case "identity":
			out, err = sys.Identity().All(ctx)
		case "experience":
			out, err = sys.Experience().All(ctx)
		case "knowledge":
			out, err = sys.Knowledge().All(ctx)
		default:
			return fmt.Errorf("list: unknown layer %q, want identity|experience|knowledge", args[0])
		}
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <layer>",
	Short: "Delete every entry in a layer (identity, experience, knowledge)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := openSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		ctx := context.Background()
		switch strings.ToLower(args[0]) {
		case "identity":
			err = sys.Identity().Clear(ctx)
		case "experience":
			err = sys.Experience().Clear(ctx)
		case "knowledge":
			err = sys.Knowledge().Clear(ctx)
		default:
			return fmt.Errorf("clear: unknown layer %q, want identity|experience|knowledge", args[0])
		}
		if err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		fmt.Printf("%s cleared\n", args[0])
		return nil
	},
}

func openSystem() (*memcore.System, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path not specified")
	}

	embedder := embedding.NewFake(embeddingDim)
	sys, err := memcore.New(memcore.DefaultConfig(dbPath), embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to create system: %w", err)
	}

	if err := sys.Init(context.Background()); err != nil {
		sys.Close()
		return nil, fmt.Errorf("failed to initialize system: %w", err)
	}
	return sys, nil
}

func printResult(result memtypes.WriteResult) {
	if outputJSON {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}
	if !result.Success {
		if result.Conflict != nil {
			fmt.Printf("conflict: key=%s existing=%q new=%q suggested=%s\n",
				result.Conflict.Key, result.Conflict.ExistingValue, result.Conflict.NewValue, result.Conflict.SuggestedAction)
			return
		}
		fmt.Printf("not stored: %s\n", result.Message)
		return
	}
	fmt.Printf("stored to %s: %s\n", result.Layer, result.Message)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "tieredmem.db", "Database file path")
	rootCmd.PersistentFlags().IntVar(&embeddingDim, "embedding-dim", 16, "Embedding vector dimension for the built-in fake provider")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringSliceVar(&recentContext, "context", nil, "Recent conversation lines, for context blending")

	retrieveCmd.Flags().Float64("threshold", retrieval.DefaultThreshold, "Minimum similarity/score threshold")
	retrieveCmd.Flags().Int("top-k", retrieval.DefaultTopK, "Maximum number of results")
	retrieveCmd.Flags().String("context-filter", "", "Restrict the experience phase to this Context (empty = no restriction)")
	retrieveCmd.Flags().Bool("no-identity", false, "Skip the identity phase")
	retrieveCmd.Flags().Bool("no-experience", false, "Skip the experience phase")
	retrieveCmd.Flags().Bool("no-knowledge", false, "Skip the knowledge phase")

	rootCmd.AddCommand(writeCmd, retrieveCmd, teachCmd, retrainCmd, decayCmd, listCmd, clearCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
