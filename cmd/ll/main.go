package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"leadline/internal/assist"
	"leadline/internal/config"
	"leadline/internal/db"
	"leadline/internal/domain"
	"leadline/internal/export"
	"leadline/internal/migrate"
	"leadline/internal/query"
	"leadline/internal/seed"
	"leadline/internal/server"
	"leadline/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "ll",
	Short: "Leadline CLI",
	Long: `Leadline is a CRM dashboard core for freelancers and small teams.
State is session-scoped: every invocation starts from the demo fixtures (or
empty with --no-demo) and nothing is written to disk. Run 'll serve' for the
HTTP API, or use the subcommands to explore a session from the terminal.
The assistant commands need ` + config.APIKeyEnv + ` set; without it they
report the AI service as unavailable.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LEADLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory (location of leadline.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("no-demo", false, "start from an empty session instead of the demo fixtures")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("no-demo", rootCmd.PersistentFlags().Lookup("no-demo"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(leadCmd())
	rootCmd.AddCommand(dealCmd())
	rootCmd.AddCommand(contactCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(insightsCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(logCmd())
}

// session bundles everything a command needs against one in-memory state.
type session struct {
	conn    *sql.DB
	store   store.Store
	cfg     *config.Config
	gateway assist.Gateway
	log     *zap.Logger
}

func withSession(ctx context.Context, fn func(context.Context, *session) error) error {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	conn, err := db.Open()
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	st := store.New(conn)
	if cfg.Seed.Demo && !viper.GetBool("no-demo") {
		if err := seed.Apply(ctx, st); err != nil {
			return err
		}
	}
	logger := newLogger()
	defer logger.Sync()
	gw, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return fn(ctx, &session{conn: conn, store: st, cfg: cfg, gateway: gw, log: logger})
}

func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (assist.Gateway, error) {
	key := cfg.APIKey()
	if key == "" {
		return assist.Disabled{Log: logger}, nil
	}
	return assist.NewClient(ctx, key, assist.Options{
		Model:   cfg.Assist.Model,
		Timeout: cfg.AssistTimeout(),
		Logger:  logger,
	})
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				if addr == "" {
					addr = s.cfg.Server.Addr
				}
				if basePath == "" {
					basePath = s.cfg.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Store:    s.store,
					Gateway:  s.gateway,
					BasePath: basePath,
					Logger:   s.log,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Leadline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default leadline.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	})
	return cmd
}

func leadCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "lead", Short: "Manage leads"}
	cmd.AddCommand(leadListCmd())
	cmd.AddCommand(leadAddCmd())
	cmd.AddCommand(leadExportCmd())
	cmd.AddCommand(leadExplainCmd())
	cmd.AddCommand(leadDraftCmd())
	return cmd
}

func leadListCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leads newest-first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				snap, err := s.store.Snapshot(ctx)
				if err != nil {
					return err
				}
				leads := query.FilterLeads(snap.Leads, search)
				if viper.GetBool("json") {
					return printJSON(leads)
				}
				tw := table.NewWriter()
				tw.AppendHeader(table.Row{"ID", "Name", "Company", "Status", "Value", "Last Contacted"})
				for _, l := range leads {
					tw.AppendRow(table.Row{l.ID, l.Name, l.Company, l.Status, l.Value, l.LastContacted})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by name, company, or email")
	return cmd
}

func leadAddCmd() *cobra.Command {
	var id, name, email, company, status, lastContacted, notes string
	var value float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a lead to the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				l := domain.Lead{
					ID:            id,
					Name:          name,
					Email:         email,
					Company:       company,
					Status:        domain.LeadStatus(status),
					Value:         value,
					LastContacted: lastContacted,
					Notes:         notes,
				}
				if l.LastContacted == "" {
					l.LastContacted = time.Now().UTC().Format("2006-01-02")
				}
				if err := s.store.AddLead(ctx, l); err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "lead id")
	cmd.Flags().StringVar(&name, "name", "", "lead name")
	cmd.Flags().StringVar(&email, "email", "", "lead email")
	cmd.Flags().StringVar(&company, "company", "", "company name")
	cmd.Flags().StringVar(&status, "status", string(domain.StatusWarm), "HOT, WARM, or COLD")
	cmd.Flags().Float64Var(&value, "value", 0, "estimated value in dollars")
	cmd.Flags().StringVar(&lastContacted, "last-contacted", "", "date of last contact (defaults to today)")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func leadExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export leads to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				snap, err := s.store.Snapshot(ctx)
				if err != nil {
					return err
				}
				data, err := export.Leads(snap.Leads)
				if errors.Is(err, export.ErrNoLeads) {
					fmt.Println("No leads available to export.")
					return nil
				}
				if err != nil {
					return err
				}
				if out == "" {
					out = export.Filename(time.Now())
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to leadline_leads_<date>.csv)")
	return cmd
}

func leadExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <lead-id>",
		Short: "Explain why a lead has its current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				lead, err := s.store.Repo.GetLead(ctx, args[0])
				if err != nil {
					return err
				}
				text, err := s.gateway.ExplainLeadScore(ctx, lead)
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			})
		},
	}
}

func leadDraftCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "draft <lead-id>",
		Short: "Draft a follow-up email for a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				lead, err := s.store.Repo.GetLead(ctx, args[0])
				if err != nil {
					return err
				}
				if notes == "" {
					notes = lead.Notes
				}
				text, err := s.gateway.DraftEmail(ctx, lead.Name, notes)
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes to base the email on (defaults to the lead's notes)")
	return cmd
}

func dealCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "deal", Short: "Manage deals"}
	cmd.AddCommand(dealListCmd())
	cmd.AddCommand(dealBoardCmd())
	cmd.AddCommand(dealAdvanceCmd())
	cmd.AddCommand(dealSetStageCmd())
	return cmd
}

func dealListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List deals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				snap, err := s.store.Snapshot(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap.Deals)
				}
				tw := table.NewWriter()
				tw.AppendHeader(table.Row{"ID", "Title", "Lead", "Stage", "Value", "Expected Close"})
				for _, d := range snap.Deals {
					leadName := ""
					if lead, ok := query.ResolveLead(snap.Leads, d.LeadID); ok {
						leadName = lead.Name
					}
					tw.AppendRow(table.Row{d.ID, d.Title, leadName, d.Stage, d.Value, d.ExpectedCloseDate})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func dealBoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the pipeline board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				snap, err := s.store.Snapshot(ctx)
				if err != nil {
					return err
				}
				board := query.GroupDealsByStage(snap.Deals, domain.PipelineStages)
				if viper.GetBool("json") {
					return printJSON(board)
				}
				tw := table.NewWriter()
				tw.AppendHeader(table.Row{"Stage", "Deals", "Total"})
				for _, g := range board {
					titles := make([]string, 0, len(g.Deals))
					for _, d := range g.Deals {
						titles = append(titles, d.Title)
					}
					tw.AppendRow(table.Row{g.Stage, strings.Join(titles, ", "), g.Total})
				}
				fmt.Println(tw.Render())
				fmt.Printf("Pipeline total (all stages): %.2f\n", query.PipelineTotal(snap.Deals))
				return nil
			})
		},
	}
}

func dealAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <deal-id>",
		Short: "Advance a deal to the next board stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				deal, err := s.store.Repo.GetDeal(ctx, args[0])
				if err != nil {
					return err
				}
				next := query.AdvanceStage(deal.Stage, domain.PipelineStages)
				if err := s.store.UpdateDealStage(ctx, deal.ID, next); err != nil {
					return err
				}
				deal.Stage = next
				return printJSONOrTable(deal)
			})
		},
	}
}

func dealSetStageCmd() *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "set-stage <deal-id>",
		Short: "Set a deal's stage directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				if err := s.store.UpdateDealStage(ctx, args[0], domain.DealStage(stage)); err != nil {
					return err
				}
				deal, err := s.store.Repo.GetDeal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(deal)
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "target stage")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func contactCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contact", Short: "Manage contacts"}
	cmd.AddCommand(contactListCmd())
	cmd.AddCommand(contactAddCmd())
	cmd.AddCommand(contactDeleteCmd())
	return cmd
}

func contactListCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts newest-first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				snap, err := s.store.Snapshot(ctx)
				if err != nil {
					return err
				}
				contacts := query.FilterContacts(snap.Contacts, search)
				if viper.GetBool("json") {
					return printJSON(contacts)
				}
				tw := table.NewWriter()
				tw.AppendHeader(table.Row{"ID", "Name", "Job Title", "Company", "Email"})
				for _, c := range contacts {
					tw.AppendRow(table.Row{c.ID, c.Name, c.JobTitle, c.Company, c.Email})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by name, company, or job title")
	return cmd
}

func contactAddCmd() *cobra.Command {
	var id, name, email, phone, role, jobTitle, company string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a contact to the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				c := domain.Contact{
					ID:       id,
					Name:     name,
					Email:    email,
					Phone:    phone,
					Role:     role,
					JobTitle: jobTitle,
					Company:  company,
				}
				if err := s.store.AddContact(ctx, c); err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "contact id")
	cmd.Flags().StringVar(&name, "name", "", "contact name")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&role, "role", "", "role")
	cmd.Flags().StringVar(&jobTitle, "job-title", "", "job title")
	cmd.Flags().StringVar(&company, "company", "", "company name")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func contactDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <contact-id>",
		Short: "Delete a contact (no-op if absent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				if err := s.store.DeleteContact(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				snap, err := s.store.Snapshot(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap.Tasks)
				}
				tw := table.NewWriter()
				tw.AppendHeader(table.Row{"ID", "Title", "Due", "Priority", "Done", "Related To"})
				for _, t := range snap.Tasks {
					related := ""
					if lead, ok := query.ResolveLead(snap.Leads, t.RelatedTo); ok {
						related = lead.Name
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.DueDate, t.Priority, t.Completed, related})
				}
				fmt.Println(tw.Render())
				fmt.Printf("Pending tasks: %d\n", query.PendingTaskCount(snap.Tasks))
				return nil
			})
		},
	})
	return cmd
}

func insightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insights",
		Short: "Quick insights over the current pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				snap, err := s.store.Snapshot(ctx)
				if err != nil {
					return err
				}
				text, err := s.gateway.QuickInsights(ctx, snap.Leads, snap.Deals)
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			})
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant (interactive)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				conv := assist.NewConversation(s.gateway)
				for _, m := range conv.Messages() {
					fmt.Printf("%s: %s\n", m.Role, m.Content)
				}
				fmt.Println(`Type a message, or "exit" to quit.`)
				scanner := bufio.NewScanner(os.Stdin)
				for {
					fmt.Print("> ")
					if !scanner.Scan() {
						return scanner.Err()
					}
					line := strings.TrimSpace(scanner.Text())
					if line == "" {
						continue
					}
					if line == "exit" || line == "quit" {
						return nil
					}
					snap, err := s.store.Snapshot(ctx)
					if err != nil {
						return err
					}
					reply, err := conv.Send(ctx, line, snap)
					if err != nil {
						fmt.Println("error:", err)
						continue
					}
					fmt.Printf("%s: %s\n", reply.Role, reply.Content)
				}
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Session mutation log"}
	var limit int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest mutation events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				events, err := s.store.Repo.LatestEvents(ctx, limit, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.Payload})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "filter by event type")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	cmd.AddCommand(tail)
	return cmd
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
