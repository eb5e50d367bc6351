package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nettee/pancake/internal/index"
	"github.com/nettee/pancake/internal/model"
	"github.com/nettee/pancake/internal/page"
	"github.com/nettee/pancake/internal/pkg/config"
	"github.com/nettee/pancake/internal/pkg/logging"
)

const cliName = "pancake"

var (
	errUsage       = errors.New("usage")
	errKeyNotFound = errors.New("key not found")
)

const usage = `usage: pancake [-config file] <command> <data-file> <index-no> [args]

commands:
  create <type>           create an index on int, float or string:N keys
  destroy                 remove the index file
  insert                  add "key page slot" lines read from stdin
  delete                  remove "key page slot" lines read from stdin
  lookup <key>            print the record id stored under key
  scan [-from k] [-to k]  print entries in key order, from inclusive, to exclusive
  check                   verify the tree structure
  dump [-v]               print the header and every node
  stats                   scan the whole index and print buffer metrics
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cliName, err)
		os.Exit(1)
	}
}

type cli struct {
	logger   *zap.Logger
	cfg      config.Config
	registry *prometheus.Registry
	pageOpts []page.Option
	stdin    io.Reader
	stdout   io.Writer
	dataFile string
	indexNo  int
}

type command func(ctx context.Context, c *cli, args []string) error

var commands = map[string]command{
	"create":  createIndex,
	"destroy": destroyIndex,
	"insert":  insertEntries,
	"delete":  deleteEntries,
	"lookup":  lookup,
	"scan":    scan,
	"check":   check,
	"dump":    dump,
	"stats":   stats,
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	flags := flag.NewFlagSet(cliName, flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	configPath := flags.String("config", "", "path to a YAML config file")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	args = flags.Args()
	if len(args) < 3 {
		return errUsage
	}
	aCommand, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	indexNo, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("%w: index number %q", errUsage, args[2])
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := logging.Build(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() // flushes buffer, if any

	registry := prometheus.NewRegistry()
	metrics, err := page.NewMetrics(registry)
	if err != nil {
		return err
	}

	c := &cli{
		logger:   logger,
		cfg:      cfg,
		registry: registry,
		pageOpts: []page.Option{
			page.WithBufferSize(cfg.Buffer.Size),
			page.WithMetrics(metrics),
		},
		stdin:    stdin,
		stdout:   stdout,
		dataFile: args[1],
		indexNo:  indexNo,
	}

	return aCommand(ctx, c, args[3:])
}

// withIndex opens the index, runs fn and closes the index whatever fn returns.
func (c *cli) withIndex(ctx context.Context, fn func(ix *index.Index) error) (err error) {
	ix, err := index.Open(ctx, c.logger, c.dataFile, c.indexNo, index.WithPageOptions(c.pageOpts...))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, ix.Close())
	}()

	return fn(ix)
}

func createIndex(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: create takes the key type", errUsage)
	}
	attrType, err := model.ParseAttrType(args[0])
	if err != nil {
		return err
	}

	ix, err := index.Create(ctx, c.logger, c.dataFile, c.indexNo, attrType,
		index.WithBranchingFactor(c.cfg.Index.BranchingFactor),
		index.WithPageOptions(c.pageOpts...),
	)
	if err != nil {
		return err
	}
	if err := ix.Close(); err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "created %s on %s, branching factor %d\n", ix.Path(), attrType, ix.Header().BranchingFactor)
	return nil
}

func destroyIndex(ctx context.Context, c *cli, args []string) error {
	if err := index.Destroy(c.logger, c.dataFile, c.indexNo); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "destroyed %s\n", index.FileName(c.dataFile, c.indexNo))
	return nil
}

func insertEntries(ctx context.Context, c *cli, args []string) error {
	return c.withIndex(ctx, func(ix *index.Index) error {
		n, err := c.readEntries(ctx, ix.Header().AttrType, func(key model.Attr, rid model.RID) error {
			return ix.InsertEntry(ctx, key, rid)
		})
		fmt.Fprintf(c.stdout, "inserted %d entries\n", n)
		return err
	})
}

func deleteEntries(ctx context.Context, c *cli, args []string) error {
	return c.withIndex(ctx, func(ix *index.Index) error {
		n, err := c.readEntries(ctx, ix.Header().AttrType, func(key model.Attr, rid model.RID) error {
			return ix.DeleteEntry(ctx, key, rid)
		})
		fmt.Fprintf(c.stdout, "deleted %d entries\n", n)
		return err
	})
}

// readEntries parses "key page slot" lines from stdin, skipping blank lines
// and # comments, and stops at the first error.
func (c *cli) readEntries(ctx context.Context, attrType model.AttrType, fn func(key model.Attr, rid model.RID) error) (int, error) {
	var (
		reader = bufio.NewScanner(c.stdin)
		lineNo = 0
		n      = 0
	)

	for reader.Scan() {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		lineNo += 1

		line := strings.TrimSpace(reader.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, rid, err := parseEntry(attrType, line)
		if err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := fn(key, rid); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}
		n += 1
	}

	return n, reader.Err()
}

func parseEntry(attrType model.AttrType, line string) (model.Attr, model.RID, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return nil, model.RID{}, fmt.Errorf("expected \"key page slot\", got %q", line)
	}

	key, err := model.ParseAttr(attrType, fields[0])
	if err != nil {
		return nil, model.RID{}, err
	}
	pageNum, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return nil, model.RID{}, fmt.Errorf("page number: %w", err)
	}
	slotNum, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return nil, model.RID{}, fmt.Errorf("slot number: %w", err)
	}

	return key, model.RID{PageNum: uint32(pageNum), SlotNum: uint32(slotNum)}, nil
}

func lookup(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: lookup takes the key", errUsage)
	}

	return c.withIndex(ctx, func(ix *index.Index) error {
		key, err := model.ParseAttr(ix.Header().AttrType, args[0])
		if err != nil {
			return err
		}

		rid, ok, err := ix.Lookup(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", errKeyNotFound, key)
		}

		fmt.Fprintf(c.stdout, "%s\t%d\t%d\n", key, rid.PageNum, rid.SlotNum)
		return nil
	})
}

func scan(ctx context.Context, c *cli, args []string) error {
	flags := flag.NewFlagSet("scan", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	from := flags.String("from", "", "smallest key to print")
	to := flags.String("to", "", "print keys below this one")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	return c.withIndex(ctx, func(ix *index.Index) error {
		predicate, err := rangePredicate(ix.Header().AttrType, *from, *to)
		if err != nil {
			return err
		}

		_, err = scanEntries(ctx, ix, predicate, func(entry index.Entry) {
			fmt.Fprintf(c.stdout, "%s\t%d\t%d\n", entry.Key, entry.RID.PageNum, entry.RID.SlotNum)
		})
		return err
	})
}

// rangePredicate accepts keys in [from, to), empty bounds are open.
func rangePredicate(attrType model.AttrType, from, to string) (func(model.Attr) bool, error) {
	if from == "" && to == "" {
		return nil, nil
	}

	var lo, hi model.Attr
	if from != "" {
		attr, err := model.ParseAttr(attrType, from)
		if err != nil {
			return nil, fmt.Errorf("from: %w", err)
		}
		lo = attr
	}
	if to != "" {
		attr, err := model.ParseAttr(attrType, to)
		if err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
		hi = attr
	}

	return func(key model.Attr) bool {
		if lo != nil && key.Compare(lo) < 0 {
			return false
		}
		return hi == nil || key.Compare(hi) < 0
	}, nil
}

func scanEntries(ctx context.Context, ix *index.Index, predicate func(model.Attr) bool, fn func(entry index.Entry)) (int, error) {
	aScan, err := ix.Scan(ctx, predicate)
	if err != nil {
		return 0, err
	}
	defer aScan.Close()

	n := 0
	for {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		entry, ok, err := aScan.Next(ctx)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		fn(entry)
		n += 1
	}
}

func check(ctx context.Context, c *cli, args []string) error {
	return c.withIndex(ctx, func(ix *index.Index) error {
		if err := ix.Check(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, "ok")
		return nil
	})
}

func dump(ctx context.Context, c *cli, args []string) error {
	flags := flag.NewFlagSet("dump", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	verbose := flags.Bool("v", false, "list the entries of every node")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	return c.withIndex(ctx, func(ix *index.Index) error {
		return ix.Dump(ctx, c.stdout, *verbose)
	})
}

func stats(ctx context.Context, c *cli, args []string) error {
	err := c.withIndex(ctx, func(ix *index.Index) error {
		n, err := scanEntries(ctx, ix, nil, func(index.Entry) {})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "entries %d\n", n)
		fmt.Fprintf(c.stdout, "node_pages %d\n", ix.Header().NumPages)
		return nil
	})
	if err != nil {
		return err
	}

	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	for _, family := range families {
		for _, m := range family.GetMetric() {
			value := m.GetCounter().GetValue()
			if m.GetGauge() != nil {
				value = m.GetGauge().GetValue()
			}
			fmt.Fprintf(c.stdout, "%s %g\n", family.GetName(), value)
		}
	}

	return nil
}
