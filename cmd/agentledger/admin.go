package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	alnats "github.com/Strob0t/agentledger/internal/adapter/nats"
	"github.com/Strob0t/agentledger/internal/adapter/postgres"
	"github.com/Strob0t/agentledger/internal/config"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/wallet"
	"github.com/Strob0t/agentledger/internal/logger"
	"github.com/Strob0t/agentledger/internal/port/messagequeue"
	"github.com/Strob0t/agentledger/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "hash-key":
		return runAdminHashKey(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	case "deposit":
		return runAdminDeposit(args[1:])
	case "wallets":
		return runAdminWallets(args[1:])
	case "tail":
		return runAdminTail(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agentledger admin <command> [options]

Commands:
  hash-key   Hash an admin key for ledger.admin_key_hash
  migrate    Apply, roll back or inspect schema migrations
  deposit    Credit an external account (funds entering the ledger)
  wallets    List agent wallets
  tail       Print ledger events from NATS as they are published
  help       Show this help message

Examples:
  agentledger admin hash-key
  agentledger admin migrate --down 1
  agentledger admin deposit --identity poster-1 --amount 10000 --ref invoice-42
  agentledger admin wallets --tier server
  agentledger admin tail --type escrow.completed
`)
}

// loadAdminServices opens the configured Postgres store and wires the ledger
// services without event publishing.
func loadAdminServices(ctx context.Context) (*service.Services, *config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	store := postgres.NewStore(pool)
	svc := service.New(service.Deps{Store: store, Events: store, Config: cfg.Ledger})
	return svc, cfg, pool.Close, nil
}

func runAdminHashKey(args []string) error {
	fs := flag.NewFlagSet("hash-key", flag.ContinueOnError)
	key := fs.String("key", "", "admin key (prompted if not provided)") //nolint:gosec // CLI flag
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}

	plain := *key
	if plain == "" {
		var err error
		plain, err = promptSecret("Admin key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		confirm, err := promptSecret("Confirm key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		if plain != confirm {
			return fmt.Errorf("keys do not match")
		}
	}
	if len(plain) < 16 {
		return fmt.Errorf("admin key must be at least 16 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), *cost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	down := fs.Int("down", 0, "roll back this many migrations instead of applying")
	status := fs.Bool("status", false, "print the current schema version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	switch {
	case *status:
		v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d\n", v)
		return nil
	case *down > 0:
		return postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *down)
	default:
		return postgres.RunMigrations(ctx, cfg.Postgres.DSN)
	}
}

func runAdminDeposit(args []string) error {
	fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
	identity := fs.String("identity", "", "external account to credit (required)")
	amount := fs.String("amount", "", "amount in base units (required)")
	ref := fs.String("ref", "", "external reference, e.g. an invoice ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *identity == "" {
		return fmt.Errorf("--identity is required")
	}
	n, err := strconv.ParseUint(*amount, 10, 64)
	if err != nil {
		return fmt.Errorf("--amount must be a positive integer: %w", err)
	}

	ctx := context.Background()
	svc, cfg, cleanup, err := loadAdminServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx = logger.WithCaller(ctx, cfg.Ledger.AdminID)
	bal, err := svc.Ledger.Deposit(ctx, cfg.Ledger.AdminID, *identity, &service.DepositRequest{Amount: n, Ref: *ref})
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Deposited %d to %s (balance %d)\n", n, bal.Account, bal.Balance)
	return nil
}

func runAdminWallets(args []string) error {
	fs := flag.NewFlagSet("wallets", flag.ContinueOnError)
	human := fs.String("human", "", "only wallets owned by this human")
	tier := fs.String("tier", "", "only wallets in this tier")
	limit := fs.Int("limit", 100, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	svc, _, cleanup, err := loadAdminServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	wallets, err := svc.Wallet.List(ctx, wallet.Filter{Human: *human, Tier: wallet.Tier(*tier), Limit: *limit})
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}
	if len(wallets) == 0 {
		fmt.Println("No wallets found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AGENT\tHUMAN\tTIER\tBALANCE\tEARNED\tTASKS\tABSORBED")
	for i := range wallets {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			wallets[i].Agent, wallets[i].Human, wallets[i].Tier, wallets[i].Balance,
			wallets[i].TotalEarned, wallets[i].TasksCompleted, wallets[i].AbsorbedCount)
	}
	return w.Flush()
}

func runAdminTail(args []string) error {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	typ := fs.String("type", "", "event type to follow, e.g. escrow.completed (default all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q, err := alnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	subject := messagequeue.SubjectAll
	if *typ != "" {
		subject = messagequeue.SubjectFor(event.Type(*typ))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	cancel, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, data []byte) error {
		var ev event.LedgerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			ev.CreatedAt.Format("15:04:05.000"), ev.Type, ev.Subject, ev.Actor, ev.Amount)
		return w.Flush()
	})
	if err != nil {
		return err
	}
	defer cancel()

	fmt.Fprintf(os.Stderr, "Following %s (Ctrl-C to stop)\n", subject)
	<-ctx.Done()
	return nil
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
