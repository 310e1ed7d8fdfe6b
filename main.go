package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fabfab/contract-agent/api"
	"github.com/fabfab/contract-agent/config"
	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/database"
	"github.com/fabfab/contract-agent/embeddings"
	"github.com/fabfab/contract-agent/ingestion"
	"github.com/fabfab/contract-agent/knowledge"
	"github.com/fabfab/contract-agent/logging"
	"github.com/fabfab/contract-agent/orchestrator"
	"github.com/fabfab/contract-agent/store"
)

var (
	configPath   string
	manifestPath string
	contractID   string
	outputJSON   bool
	listenAddr   string
	clearConfirm bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "contract-agent",
	Short:         "Answer questions about a construction contract",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			loaded, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		} else {
			cfg = config.Load()
		}
		var err error
		if logger, err = logging.New(cfg.Debug); err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question about a contract",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAsk,
}

var clauseCmd = &cobra.Command{
	Use:   "clause [number]",
	Short: "Show the effective version of a clause and what it supersedes",
	Args:  cobra.ExactArgs(1),
	RunE:  runClause,
}

var seedCmd = &cobra.Command{
	Use:   "seed [manifest.yaml]",
	Short: "Load a contract manifest into Postgres",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

var syncGraphCmd = &cobra.Command{
	Use:   "sync-graph",
	Short: "Mirror a contract's documents and overrides from Postgres into Neo4j",
	Args:  cobra.NoArgs,
	RunE:  runSyncGraph,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove a contract from Postgres and Neo4j",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults to $CONTRACT_AGENT_CONFIG)")

	for _, cmd := range []*cobra.Command{serveCmd, askCmd, clauseCmd} {
		cmd.Flags().StringVar(&manifestPath, "manifest", "", "serve the contract from this manifest in memory instead of Postgres")
	}
	for _, cmd := range []*cobra.Command{askCmd, clauseCmd, syncGraphCmd, clearCmd} {
		cmd.Flags().StringVarP(&contractID, "contract", "c", "", "contract id")
		_ = cmd.MarkFlagRequired("contract")
	}
	for _, cmd := range []*cobra.Command{askCmd, clauseCmd} {
		cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	}
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (defaults to LISTEN_ADDR)")
	clearCmd.Flags().BoolVar(&clearConfirm, "confirm", false, "skip confirmation prompt")

	rootCmd.AddCommand(serveCmd, askCmd, clauseCmd, seedCmd, syncGraphCmd, clearCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger, manifestPath)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := listenAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(a.engine, a.suggester, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", addr), zap.Any("agents", a.engine.AgentAvailability()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := ""
	if len(args) == 1 {
		question = args[0]
	}
	if strings.TrimSpace(question) == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read question: %w", err)
		}
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger, manifestPath)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.engine.Orchestrate(ctx, orchestrator.Request{Query: question, ContractID: contractID})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	if outputJSON {
		return printJSON(cmd, resp)
	}

	printAnswer(cmd.OutOrStdout(), resp)
	return nil
}

func printAnswer(w io.Writer, resp *contract.SynthesizedResponse) {
	fmt.Fprintln(w, resp.FinalAnswer)
	sources := append(sourcesOf(resp.Documents), sourcesOf(resp.Conditions)...)
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for idx, src := range sources {
		line := fmt.Sprintf("%d. %s", idx+1, src.DocumentTitle)
		if src.ClauseNumber != "" {
			line += ", clause " + src.ClauseNumber
		}
		switch {
		case src.Contested:
			line += " (contested)"
		case src.Superseded:
			line += " (superseded by " + src.SupersededBy + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func sourcesOf(resp *contract.AgentResponse) []contract.Citation {
	if resp == nil || resp.Err != nil {
		return nil
	}
	return resp.Sources
}

func runClause(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger, manifestPath)
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.engine.ResolveEffectiveClause(ctx, contractID, args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd, view)
	}

	printClauseView(cmd.OutOrStdout(), view)
	return nil
}

func printClauseView(w io.Writer, view *contract.EffectiveClauseView) {
	fmt.Fprintf(w, "Clause %s\n", view.ClauseNumber)
	if view.Conflict != nil {
		fmt.Fprintf(w, "CONFLICT: %s\n", view.Conflict.Error())
	}
	for _, e := range view.Entries {
		status := "superseded"
		if e.Effective {
			status = "effective"
		}
		fmt.Fprintf(w, "- %s [%s] priority %.0f, %s\n", e.Document.DisplayName(), e.Document.Group, e.Priority, status)
		if len(e.SupersededBy) > 0 {
			fmt.Fprintf(w, "    superseded by: %s\n", strings.Join(e.SupersededBy, ", "))
		}
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	snap, err := ingestion.LoadFile(args[0])
	if err != nil {
		return err
	}

	pool, err := database.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pool.Close()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("embedder setup: %w", err)
	}

	logger.Info("seeding contract",
		zap.String("contract_id", snap.ContractID),
		zap.String("embeddings", strings.ToUpper(cfg.Embeddings.Provider)+"/"+cfg.Embeddings.Model))
	svc := ingestion.NewService(pool, embedder, logger, cfg.Embeddings.Dimension)
	return svc.Seed(ctx, snap)
}

func runSyncGraph(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	pool, err := database.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pool.Close()

	pg := store.NewPostgresStore(pool)
	docs, err := pg.Documents(ctx, contractID)
	if err != nil {
		return err
	}
	overrides, err := pg.Overrides(ctx, contractID)
	if err != nil {
		return err
	}

	driver, err := openNeo4j(ctx, cfg)
	if err != nil {
		return err
	}
	defer driver.Close(ctx)

	if err := knowledge.SyncContract(ctx, driver, contractID, docs, overrides); err != nil {
		return fmt.Errorf("sync knowledge graph: %w", err)
	}
	logger.Info("override graph synced",
		zap.String("contract_id", contractID),
		zap.Int("documents", len(docs)),
		zap.Int("overrides", len(overrides)))
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	if !clearConfirm {
		fmt.Fprintf(cmd.ErrOrStderr(), "This will permanently delete contract %s from Postgres and Neo4j. Continue? [y/N]: ", contractID)
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read confirmation: %w", err)
			}
			cmd.Println("clear aborted")
			return nil
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			cmd.Println("clear aborted")
			return nil
		}
	}

	ctx := cmd.Context()
	pool, err := database.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pool.Close()

	if err := ingestion.NewService(pool, nil, logger, cfg.Embeddings.Dimension).Clear(ctx, contractID); err != nil {
		return err
	}

	driver, err := openNeo4j(ctx, cfg)
	if err != nil {
		return err
	}
	defer driver.Close(ctx)

	if err := knowledge.ClearContract(ctx, driver, contractID); err != nil {
		return fmt.Errorf("clear neo4j: %w", err)
	}
	logger.Info("contract removed", zap.String("contract_id", contractID))
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
