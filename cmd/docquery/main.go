package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/leonunix/docquery/internal/client"
	"github.com/leonunix/docquery/internal/config"
	"github.com/leonunix/docquery/internal/dsl"
	"github.com/leonunix/docquery/internal/util"
)

func main() {
	configPath := flag.String("config", "docquery.yaml", "path to configuration file")
	queryPath := flag.String("query", "", "path to a JSON query document")
	index := flag.String("index", "", "index to query (overrides the query document)")
	action := flag.String("action", "dsl", "dsl, find, count, agg or pit")
	agg := flag.String("agg", "count", "aggregation for -action agg, as fn or fn:column")
	page := flag.String("page", "", "cursor token returned by a previous find")
	perPage := flag.Int("per-page", 0, "page size; enables cursor pagination for find")
	offline := flag.Bool("offline", false, "compile without looking up field mappings")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	util.SetupLogger(cfg.Logging.Level)

	if *queryPath == "" {
		slog.Error("-query is required")
		os.Exit(2)
	}
	doc, err := readQueryDoc(*queryPath)
	if err != nil {
		slog.Error("failed to read query", "error", err)
		os.Exit(1)
	}
	if *index != "" {
		doc.Index = *index
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := run(ctx, cfg, doc, runOptions{
		action:  *action,
		agg:     *agg,
		page:    *page,
		perPage: *perPage,
		offline: *offline,
	})
	if err != nil {
		slog.Error("query failed", "action", *action, "index", doc.Index, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.Error("failed to write output", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	action  string
	agg     string
	page    string
	perPage int
	offline bool
}

func run(ctx context.Context, cfg *config.Config, doc *queryDoc, opts runOptions) (any, error) {
	b, err := doc.Builder()
	if err != nil {
		return nil, err
	}

	if opts.action == "dsl" && opts.offline {
		c := dsl.NewCompiler(nil,
			dsl.WithBypassMapValidation(true),
			dsl.WithAllowIDSort(cfg.Query.AllowIDSort),
			dsl.WithInnerHitsSize(cfg.Query.InnerHitsSize),
		)
		req, err := c.Compile(ctx, doc.Index, b)
		if err != nil {
			return nil, err
		}
		return req.Payload(), nil
	}

	c, _, err := client.FromConfig(cfg, nil)
	if err != nil {
		return nil, err
	}
	slog.Debug("docquery executing", "action", opts.action, "index", doc.Index, "opensearch", cfg.OpenSearch.URL)

	switch opts.action {
	case "dsl":
		return c.DSL(ctx, doc.Index, b)
	case "find":
		if opts.perPage > 0 {
			return c.Paginate(ctx, doc.Index, b, opts.perPage, opts.page)
		}
		return c.Find(ctx, doc.Index, b)
	case "count":
		n, err := c.Count(ctx, doc.Index, b)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"count": n}, nil
	case "agg":
		fn, column := parseAgg(opts.agg)
		var columns []string
		if column != "" {
			columns = []string{column}
		}
		return c.Aggregate(ctx, doc.Index, b, dsl.AggFunc(fn), columns...)
	case "pit":
		return findWithPIT(ctx, c, doc, opts.perPage)
	default:
		return nil, fmt.Errorf("unknown action %q", opts.action)
	}
}

// findWithPIT reads every matching document through a point in time, one
// page at a time.
func findWithPIT(ctx context.Context, c *client.Client, doc *queryDoc, perPage int) (any, error) {
	if perPage <= 0 {
		perPage = 1000
	}
	pitID, err := c.OpenPIT(ctx, doc.Index, "")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.ClosePIT(context.WithoutCancel(ctx), pitID); err != nil {
			slog.Warn("failed to close point in time", "error", err)
		}
	}()

	var (
		docs  []any
		after []any
	)
	for {
		b, err := doc.Builder()
		if err != nil {
			return nil, err
		}
		res, err := c.PITFind(ctx, doc.Index, b, perPage, pitID, after, "")
		if err != nil {
			return nil, err
		}
		for _, d := range res.Documents {
			docs = append(docs, d)
		}
		if len(res.Documents) < perPage || len(res.Meta.LastSort) == 0 {
			break
		}
		after, pitID = res.Meta.LastSort, res.Meta.PitID
	}
	return map[string]any{"data": docs, "total": len(docs)}, nil
}
