package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atendai/atenda/internal/blob"
	"github.com/atendai/atenda/internal/config"
	"github.com/atendai/atenda/internal/storage"
	"github.com/atendai/atenda/internal/training"
)

// --- agents ---

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect agents via the running server",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's agents as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		client, err := newAPIClient(userID)
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/agents")
		if err != nil {
			return err
		}

		var agents any
		if err := decodeJSON(resp, &agents); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(agents)
	},
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Show one agent as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		client, err := newAPIClient(userID)
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/agents/"+args[0])
		if err != nil {
			return err
		}

		var agent any
		if err := decodeJSON(resp, &agent); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(agent)
	},
}

func init() {
	agentsCmd.PersistentFlags().String("user", "", "owner user ID")
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsShowCmd)
}

// --- items ---

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Inspect training items via the running server",
}

var itemsListCmd = &cobra.Command{
	Use:   "list <agent-id>",
	Short: "List an agent's training items as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		client, err := newAPIClient(userID)
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/agents/"+args[0]+"/training-items")
		if err != nil {
			return err
		}

		var items any
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	},
}

var itemsReprocessCmd = &cobra.Command{
	Use:   "reprocess <agent-id> <item-id>",
	Short: "Re-run extraction for a training item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		client, err := newAPIClient(userID)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/agents/"+args[0]+"/training-items/"+args[1]+"/reprocess", nil)
		if err != nil {
			return err
		}

		var item map[string]any
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}

		printSuccess("Item %s is now %v", args[1], item["processing_status"])
		return nil
	},
}

func init() {
	itemsCmd.PersistentFlags().String("user", "", "owner user ID")
	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsReprocessCmd)
}

// --- recompile ---

var recompileCmd = &cobra.Command{
	Use:   "recompile",
	Short: "Recompile system prompts directly against the database",
	Long: `Recompile system prompts directly against the database.

Walks every agent (or one user's agents with --user) and regenerates the
compiled prompt from the stored training items. Useful after prompt-format
changes or manual database edits. The server should be stopped first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		agentID, _ := cmd.Flags().GetString("agent")
		parallel, _ := cmd.Flags().GetInt("parallel")
		if parallel < 1 {
			parallel = 1
		}
		if agentID != "" && userID == "" {
			return fmt.Errorf("--agent requires --user")
		}
		return recompileAll(cmd.Context(), userID, agentID, parallel)
	},
}

func init() {
	recompileCmd.Flags().String("user", "", "restrict to one owner's agents")
	recompileCmd.Flags().String("agent", "", "restrict to a single agent (requires --user)")
	recompileCmd.Flags().Int("parallel", 4, "number of agents compiled concurrently")
}

func recompileAll(ctx context.Context, userID, agentID string, parallel int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	blobs, err := blob.NewStore(cfg.Storage.FilesDir)
	if err != nil {
		return fmt.Errorf("opening file storage: %w", err)
	}

	var agents []storage.Agent
	switch {
	case agentID != "":
		agent, getErr := store.GetAgent(userID, agentID)
		if getErr != nil {
			return fmt.Errorf("getting agent %s: %w", agentID, getErr)
		}
		agents = []storage.Agent{agent}
	case userID != "":
		agents, err = store.ListAgents(userID)
	default:
		agents, err = store.ListAllAgents()
	}
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}
	if len(agents) == 0 {
		printWarning("No agents to recompile")
		return nil
	}

	// Compile reads done items and rewrites the prompt; no extractors run.
	svc := training.NewService(store, blobs, nil, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, agent := range agents {
		g.Go(func() error {
			if err := svc.Compile(gctx, agent.UserID, agent.ID); err != nil {
				return fmt.Errorf("agent %s: %w", agent.ID, err)
			}
			printStep("Recompiled %s (%s)", agent.ID, agent.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printSuccess("Recompiled %d agent(s)", len(agents))
	return nil
}
