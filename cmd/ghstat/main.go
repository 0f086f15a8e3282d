package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mohatt/github-api-utils/internal/config"
	"github.com/mohatt/github-api-utils/internal/crawler"
	"github.com/mohatt/github-api-utils/internal/credential"
	"github.com/mohatt/github-api-utils/internal/github"
	"github.com/mohatt/github-api-utils/internal/inspector"
	"github.com/mohatt/github-api-utils/internal/logging"
	"github.com/mohatt/github-api-utils/internal/pool"
	"github.com/mohatt/github-api-utils/internal/server"
)

const usage = `usage: ghstat [-config path] <command> [arguments]

commands:
  inspect <owner>/<repo>   score a repository and print the result
  tokens list              print the credential pool
  tokens set <desc>...     add credentials (pat:TOKEN, client_secret:ID:SECRET, null)
  serve                    expose the inspector over HTTP
`

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := logging.Setup(cfg.Logging.Debug, cfg.Logging.LogFile); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "inspect":
		err = runInspect(ctx, cfg, args[1:])
	case "tokens":
		err = runTokens(ctx, cfg, args[1:])
	case "serve":
		err = runServe(ctx, cfg, *configPath)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "ghstat:", err)
	os.Exit(1)
}

func runInspect(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	pretty := fs.Bool("pretty", true, "indent the output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || !strings.Contains(fs.Arg(0), "/") {
		return fmt.Errorf("inspect wants a single owner/repo argument")
	}
	owner, name, _ := strings.Cut(fs.Arg(0), "/")

	p, err := buildPool(cfg)
	if err != nil {
		return err
	}
	if err := seedTokens(ctx, cfg, p); err != nil {
		return err
	}
	insp := buildInspector(cfg, p)

	res, err := insp.Inspect(ctx, owner, name)
	if err != nil {
		return err
	}
	out := res.Raw
	if *pretty {
		var buf map[string]interface{}
		if err := json.Unmarshal([]byte(res.Raw), &buf); err == nil {
			if data, err := json.MarshalIndent(buf, "", "  "); err == nil {
				out = string(data)
			}
		}
	}
	fmt.Println(out)
	return nil
}

func runTokens(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("tokens wants a subcommand: list or set")
	}
	p, err := buildPool(cfg)
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		creds, err := p.GetTokens(ctx)
		if err != nil {
			return err
		}
		for _, cred := range creds {
			fmt.Printf("%-40s %s\n", cred.ID(), cred.Kind())
		}
		return nil
	case "set":
		fs := flag.NewFlagSet("tokens set", flag.ExitOnError)
		purge := fs.Bool("purge", false, "replace the pool instead of merging")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		var descs []credential.Descriptor
		for _, arg := range fs.Args() {
			fields := strings.Split(arg, ":")
			descs = append(descs, credential.Descriptor{Tag: fields[0], Args: fields[1:]})
		}
		if len(descs) == 0 {
			return fmt.Errorf("tokens set wants at least one descriptor")
		}
		creds, err := credential.NewBatch(descs)
		if err != nil {
			return err
		}
		if err := p.SetTokens(ctx, creds, *purge); err != nil {
			return err
		}
		log.WithField("count", len(creds)).Info("pool updated")
		return nil
	default:
		return fmt.Errorf("unknown tokens subcommand %q", args[0])
	}
}

func runServe(ctx context.Context, cfg *config.Config, configPath string) error {
	p, err := buildPool(cfg)
	if err != nil {
		return err
	}
	if err := seedTokens(ctx, cfg, p); err != nil {
		return err
	}
	insp := buildInspector(cfg, p)
	wrapper := buildWrapper(cfg, p)

	if configPath != "" {
		watcher, err := config.Watch(configPath, func(next *config.Config) {
			if err := logging.Setup(next.Logging.Debug, next.Logging.LogFile); err != nil {
				log.WithError(err).Warn("failed to apply reloaded logging settings")
			}
		})
		if err != nil {
			log.WithError(err).Warn("config watcher unavailable")
		} else {
			defer watcher.Stop()
		}
	}

	return server.New(cfg.Server.Listen, insp, wrapper).Run(ctx)
}

func buildPool(cfg *config.Config) (*pool.Pool, error) {
	switch cfg.Pool.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.Pool.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return pool.New(pool.NewRedisStore(redis.NewClient(opts), cfg.Pool.RedisKey)), nil
	default:
		return pool.NewFile(cfg.Pool.Path), nil
	}
}

func seedTokens(ctx context.Context, cfg *config.Config, p *pool.Pool) error {
	if len(cfg.Tokens) == 0 {
		return nil
	}
	creds, err := credential.NewBatch(cfg.Tokens)
	if err != nil {
		return err
	}
	return p.SetTokens(ctx, creds, false)
}

func buildWrapper(cfg *config.Config, p *pool.Pool) *github.Wrapper {
	client := github.NewClient(
		github.WithBaseURL(cfg.GitHub.BaseURL),
		github.WithUserAgent(cfg.GitHub.UserAgent),
		github.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.GitHub.TimeoutSec) * time.Second}),
	)
	return github.NewWrapper(client, github.WithPool(p))
}

func buildInspector(cfg *config.Config, p *pool.Pool) *inspector.Inspector {
	extractor := crawler.New(
		crawler.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Crawler.RequestsPerSec), 2)),
		crawler.WithUserAgent(cfg.GitHub.UserAgent),
		crawler.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Crawler.TimeoutSec) * time.Second}),
	)
	return inspector.New(buildWrapper(cfg, p), extractor)
}
