package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wyfcoding/fundreporting/internal/reporting/bootstrap"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/wyfcoding/fundreporting/internal/reporting/infrastructure/export"
	"github.com/wyfcoding/fundreporting/internal/reporting/infrastructure/seed"
	grpcserver "github.com/wyfcoding/fundreporting/internal/reporting/interfaces/grpc"
	httpserver "github.com/wyfcoding/fundreporting/internal/reporting/interfaces/http"
	"github.com/wyfcoding/fundreporting/pkg/grpcclient"
	"github.com/wyfcoding/fundreporting/pkg/logger"
	"github.com/wyfcoding/fundreporting/pkg/mq"
	"github.com/wyfcoding/fundreporting/pkg/utils"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			database, err := bootstrap.OpenDatabase(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer database.Close()
			defer logger.LogDuration(ctx, "migration finished", "driver", e.cfg.Database.Driver)()
			return database.Migrate(ctx, bootstrap.Models()...)
		},
	}
}

func newSkeletonCommand(e *env) *cobra.Command {
	var period string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate UNFILLED skeleton records for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, database, err := e.service(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			p := svc.Records.CurrentPeriod()
			if period != "" {
				if p, err = domain.ParsePeriod(period); err != nil {
					return err
				}
			}
			created, err := svc.Records.GenerateSkeletons(ctx, domain.SystemPrincipal, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d skeleton records created\n", p, created)
			return nil
		},
	}
	generate.Flags().StringVar(&period, "period", "", "period as YYYY-MM (default: current reporting period)")

	cmd := &cobra.Command{
		Use:   "skeleton",
		Short: "Manage skeleton records",
	}
	cmd.AddCommand(generate)
	return cmd
}

func newCatalogCommand(e *env) *cobra.Command {
	var file string
	var dryRun bool
	load := &cobra.Command{
		Use:   "load",
		Short: "Load projects and fund need lines from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := seed.ParseFile(file)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d projects, %d lines are valid\n", len(c.Projects), len(c.Lines))
				return nil
			}

			ctx := cmd.Context()
			svc, database, err := e.service(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			projects, lines, err := seed.Load(ctx, svc.Tx, svc.Catalog, c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d projects, %d lines\n", projects, lines)
			return nil
		},
	}
	load.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file")
	_ = load.MarkFlagRequired("file")
	load.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the fund need catalog",
	}
	cmd.AddCommand(load)
	return cmd
}

func newReconcileCommand(e *env) *cobra.Command {
	var (
		period string
		org    uint64
		xlsx   string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "List audit candidates of a period, optionally exporting them to xlsx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := domain.ParsePeriod(period)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, database, err := e.service(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			var scope *uint64
			if org != 0 {
				scope = &org
			}
			candidates, err := svc.Query.Reconcile(ctx, domain.SystemPrincipal, p, scope)
			if err != nil {
				return err
			}

			if xlsx != "" {
				if err := export.SaveCandidates(xlsx, p, candidates); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d candidates written to %s\n", len(candidates), xlsx)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FUND_NEED\tUSER\tFINANCE\tVARIANCE\tDIFFERENCE\tAUDIT\tNEEDS_AUDIT")
			for _, c := range candidates {
				audit := "-"
				if c.ExistingAudit != nil {
					audit = string(c.ExistingAudit.Status)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\t%t\n",
					c.FundNeedID, amountOf(c.UserRecord), amountOf(c.FinanceRecord),
					c.Variance.String(), c.HasDifference, audit, c.NeedsAudit)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "period as YYYY-MM")
	_ = cmd.MarkFlagRequired("period")
	cmd.Flags().Uint64Var(&org, "org", 0, "restrict to one organization")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "write an xlsx report to this path")
	return cmd
}

func newEventsCommand(e *env) *cobra.Command {
	var group string
	tail := &cobra.Command{
		Use:   "tail [topic...]",
		Short: "Tail reporting events from Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !e.cfg.Kafka.Enabled {
				return errors.New("kafka is disabled in config")
			}
			topics := args
			if len(topics) == 0 {
				topics = domain.EventNames()
			}
			consumer, err := mq.NewConsumer(mq.KafkaConfig{
				Brokers:        e.cfg.Kafka.Brokers,
				GroupID:        group,
				SessionTimeout: e.cfg.Kafka.SessionTimeout,
			}, topics...)
			if err != nil {
				return err
			}
			defer consumer.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			for {
				msg, err := consumer.ReadMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				fmt.Fprintf(out, "%s %s key=%s %s\n", msg.Time.Format(time.RFC3339), msg.Topic, msg.Key, msg.Value)
			}
		},
	}
	tail.Flags().StringVar(&group, "group", "reportctl", "consumer group id")

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published reporting events",
	}
	cmd.AddCommand(tail)
	return cmd
}

func newHealthCommand(e *env) *cobra.Command {
	var (
		target   string
		attempts int
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health endpoint of a running service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if target == "" {
				target = fmt.Sprintf("localhost:%d", e.cfg.GRPC.Port)
			}
			conn, err := grpcclient.NewClient(grpcclient.ClientConfig{
				Target:         target,
				RequestTimeout: 3,
			})
			if err != nil {
				return err
			}
			defer conn.Close()

			client := healthpb.NewHealthClient(conn)
			var status healthpb.HealthCheckResponse_ServingStatus
			err = utils.RetryWithBackoff(cmd.Context(), attempts, 200*time.Millisecond, 2*time.Second, func() error {
				resp, err := client.Check(cmd.Context(), &healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
				if err != nil {
					return err
				}
				status = resp.Status
				if status != healthpb.HealthCheckResponse_SERVING {
					return fmt.Errorf("service is %s", status)
				}
				return nil
			})
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", target, status)
			return err
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "gRPC address (default: localhost:<grpc.port>)")
	cmd.Flags().IntVar(&attempts, "attempts", 3, "check attempts before giving up")
	return cmd
}

func newTokenCommand(e *env) *cobra.Command {
	var (
		subject string
		role    string
		org     uint64
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			p := domain.Principal{ID: subject, Role: r, OrganizationID: org}
			if err := p.Validate(); err != nil {
				return err
			}
			if p.OrgRestricted() && org == 0 {
				return fmt.Errorf("--org is required for %s", r)
			}
			if e.cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			token, err := httpserver.SignToken(e.cfg.Auth.JWTSecret, e.cfg.Auth.Issuer, p, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id")
	_ = cmd.MarkFlagRequired("sub")
	cmd.Flags().StringVar(&role, "role", "", "ADMIN, AUDITOR, FINANCE, REPORTER or OBSERVER")
	_ = cmd.MarkFlagRequired("role")
	cmd.Flags().Uint64Var(&org, "org", 0, "organization id for REPORTER and OBSERVER")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func amountOf(r *domain.PeriodRecord) string {
	if r == nil || !r.Amount.Valid {
		return "-"
	}
	return r.Amount.Decimal.String()
}
