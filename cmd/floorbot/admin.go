package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"floorbot/internal/domain"
	"floorbot/internal/server"
	"floorbot/internal/store"
)

// withStore loads the config and opens the configured store for one command.
func withStore(fn func(ctx context.Context, st domain.AdminStore) error) error {
	ctx := context.Background()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()
	return fn(ctx, st)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, st domain.AdminStore) error {
				sq, ok := st.(*store.SQLiteStore)
				if !ok {
					fmt.Println("store has no schema migrations (dynamodb)")
					return nil
				}
				v, err := sq.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("schema version %d\n", v)
				return nil
			})
		},
	}
}

func quotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quotes",
		Short: "List and update quote requests",
	}

	var (
		status string
		limit  int
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List quotes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.QuoteFilter{Status: domain.QuoteStatus(strings.ToUpper(status)), Limit: limit}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
			}
			return withStore(func(ctx context.Context, st domain.AdminStore) error {
				quotes, err := st.ListQuotes(ctx, filter)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(quotes)
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tNAME\tPHONE\tPROJECT\tBUDGET")
				for _, q := range quotes {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						q.ID, q.CreatedAt.Local().Format(time.DateTime), q.Status, q.Name, q.Phone, q.ProjectType, q.Budget)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (PENDING, REVIEWED, SENT, ACCEPTED, REJECTED)")
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of quotes")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Show one quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, st domain.AdminStore) error {
				q, err := st.GetQuote(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(q)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-status [id] [status]",
		Short: "Move a quote to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := domain.QuoteStatus(strings.ToUpper(args[1]))
			return withStore(func(ctx context.Context, st domain.AdminStore) error {
				if err := st.UpdateQuoteStatus(ctx, args[0], s); err != nil {
					return err
				}
				logger.Info("quote updated", "id", args[0], "status", s)
				return nil
			})
		},
	})
	return cmd
}

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Inspect customer conversations",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations by last activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, st domain.AdminStore) error {
				convs, err := st.ListConversations(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PHONE\tNAME\tSTATUS\tLAST MESSAGE")
				for _, c := range convs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Phone, c.Name, c.Status, c.LastMessageAt.Local().Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of conversations")
	cmd.AddCommand(list)

	var msgLimit int
	show := &cobra.Command{
		Use:   "show [phone]",
		Short: "Show a conversation, its current step and recent messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phone := args[0]
			return withStore(func(ctx context.Context, st domain.AdminStore) error {
				c, err := st.GetConversation(ctx, phone)
				if err != nil {
					return err
				}
				state, err := st.GetState(ctx, phone)
				if err != nil {
					return err
				}
				msgs, err := st.ListMessages(ctx, phone, msgLimit)
				if err != nil {
					return err
				}
				fmt.Printf("%s (%s) %s\n", c.Phone, c.Name, c.Status)
				if state != nil {
					fmt.Printf("step: %s\n", state.Step)
				}
				fmt.Println()
				for _, m := range msgs {
					arrow := "<-"
					if m.Direction == domain.DirectionOutbound {
						arrow = "->"
					}
					fmt.Printf("%s %s %s\n", m.CreatedAt.Local().Format(time.DateTime), arrow, m.Content)
				}
				return nil
			})
		},
	}
	show.Flags().IntVar(&msgLimit, "messages", 20, "number of recent messages")
	cmd.AddCommand(show)
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for server.admin.passwordHash",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			hash, err := server.HashPassword(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
