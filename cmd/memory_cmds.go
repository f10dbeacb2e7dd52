package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"Companion-Memory/server/internal/app"
	"Companion-Memory/server/internal/prompts"
	"Companion-Memory/server/internal/web"
)

func init() {
	ingest := &cobra.Command{
		Use:   "ingest [file.json]",
		Short: "Seed memories from an add-messages JSON body",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories across all identities",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	search.Flags().IntP("top-k", "k", 5, "Max results")

	exportPrompts := &cobra.Command{
		Use:   "prompts [dir]",
		Short: "Write the built-in prompt templates as JSON for editing",
		Args:  cobra.ExactArgs(1),
		RunE:  runExportPrompts,
	}

	rootCmd.AddCommand(ingest, search, exportPrompts)
}

func runIngest(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var req web.AddMessagesRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid ingest file: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.NewMemory(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.Memory.StoreBatch(cmd.Context(), req.Messages)
	if err != nil {
		return err
	}
	fmt.Printf("Added %d messages\n", len(ids))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	topK, _ := cmd.Flags().GetInt("top-k")
	query := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.NewMemory(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	memories, err := a.Memory.Search(cmd.Context(), query, topK)
	if err != nil {
		return err
	}

	resp := web.GetMessagesResponse{Query: query, Results: make([]web.RetrievedMessage, 0, len(memories))}
	for _, m := range memories {
		resp.Results = append(resp.Results, web.RetrievedMessage{Text: m.Text, Metadata: m.Metadata, Score: m.Score})
	}
	b, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(b))
	return nil
}

func runExportPrompts(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	templates := prompts.NewDefaultTemplateEngine()
	for _, kind := range prompts.Kinds {
		data, err := templates.ExportTemplate(kind)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, string(kind)+".json")
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			return err
		}
		fmt.Println(path)
	}
	return nil
}
