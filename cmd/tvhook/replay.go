package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"tvhook/internal/app"
	"tvhook/internal/config"
	cfgloader "tvhook/internal/config/loader"
	"tvhook/internal/grouping"
	"tvhook/internal/ingest"
	"tvhook/internal/pkg/symbol"
	"tvhook/internal/query"
	"tvhook/internal/store"
	"tvhook/internal/store/auditlog"
	"tvhook/internal/store/gormstore"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
)

const autoBroker = "auto"

type replayOptions struct {
	owner  string
	broker string
	dryRun bool
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay FILE.jsonl",
		Short: "Feed recorded webhook payloads (one JSON per line) through the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cleanup, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return runReplay(cmd.Context(), cfg, opts, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.owner, "owner", "", "owner id the payloads belong to")
	cmd.Flags().StringVar(&opts.broker, "broker", "blofin", "broker the payloads were sent to, or auto to detect it from each symbol")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "group in memory without touching the database")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func runReplay(ctx context.Context, cfg *config.Config, opts replayOptions, in io.Reader, out io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.broker != autoBroker && !cfg.Webhook.BrokerEnabled(opts.broker) {
		return fmt.Errorf("broker %q is not enabled", opts.broker)
	}
	var (
		svc       *ingest.Service
		summaries func() ([]query.GroupSummary, error)
	)
	if opts.dryRun {
		lookup := grouping.NewMemoryLookup()
		svc = app.NewIngestService(cfg.Grouping, lookup, ingest.MemorySink{Lookup: lookup})
		summaries = func() ([]query.GroupSummary, error) {
			groups := lookup.Groups(opts.owner)
			out := make([]query.GroupSummary, 0, len(groups))
			for _, g := range groups {
				out = append(out, query.Summarize(g, g.Records, cfgloader.DefaultTPCount))
			}
			return out, nil
		}
	} else {
		st, openErr := gormstore.NewGormStore(cfg.Database.Path)
		if openErr != nil {
			return openErr
		}
		audit, openErr := auditlog.New(cfg.Database.AuditPath)
		if openErr != nil {
			return multierr.Append(openErr, st.Close())
		}
		defer func() { err = multierr.Combine(err, audit.Close(), st.Close()) }()
		svc = app.NewIngestService(cfg.Grouping, store.Lookup{Store: st}, ingest.StoreSink{Store: st}, ingest.WithAudit(audit))
		q := query.NewService(st, audit, nil)
		summaries = func() ([]query.GroupSummary, error) {
			return q.TradeGroups(ctx, opts.owner, query.Filter{})
		}
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var accepted, duplicates, invalid int
	for line := 1; scanner.Scan(); line++ {
		body := bytes.TrimSpace(scanner.Bytes())
		if len(body) == 0 {
			continue
		}
		broker := opts.broker
		if broker == autoBroker {
			broker = detectBroker(body)
			if !cfg.Webhook.BrokerEnabled(broker) {
				invalid++
				fmt.Fprintf(out, "line %d: skipped: no enabled broker for symbol\n", line)
				continue
			}
		}
		res, err := svc.Handle(ctx, ingest.Request{
			Owner:      opts.owner,
			Broker:     broker,
			Identifier: "replay",
			Body:       append([]byte(nil), body...),
		})
		switch {
		case errors.Is(err, ingest.ErrInvalidPayload):
			invalid++
			fmt.Fprintf(out, "line %d: skipped: %v\n", line, err)
		case err != nil:
			return fmt.Errorf("line %d: %w", line, err)
		case res.Duplicate:
			duplicates++
		default:
			accepted++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	groups, err := summaries()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "accepted=%d duplicates=%d invalid=%d groups=%d\n", accepted, duplicates, invalid, len(groups))
	enc := json.NewEncoder(out)
	for _, g := range groups {
		if err := enc.Encode(g); err != nil {
			return err
		}
	}
	return nil
}

// detectBroker 按 symbol（缺省时 ticker）推断券商。
func detectBroker(body []byte) string {
	res := gjson.GetManyBytes(body, "symbol", "ticker")
	for _, r := range res {
		if b := symbol.DetectBroker(r.String()); b != "" {
			return b
		}
	}
	return ""
}
