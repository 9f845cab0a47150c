package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/loqalabs/aacharya/internal/alerts"
	"github.com/loqalabs/aacharya/internal/api"
	"github.com/loqalabs/aacharya/internal/prefs"
	"github.com/loqalabs/aacharya/internal/worker"
)

const workerUsage = `usage: aacharya worker [-config file] <action>

actions:
  login -u USER [-p PASSWORD]   log in (password read from AACHARYA_WORKER_PASSWORD or stdin)
  logout                        forget the access token
  broadcast MESSAGE...          post a health alert
  clear                         remove all alerts
  inventory                     list supplies
  update ITEM QUANTITY          set the quantity of a supply
`

func runWorker(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := commonFlags(fs)
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return exitError{code: 2, msg: workerUsage}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, closeLog, err := newLogger(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := prefs.Open(ctx, cfg.Preferences, logger)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer store.Close()

	var announcer alerts.Bus
	if cfg.Bus.Enabled && !cfg.Bus.Embedded {
		client, closeBus, err := connectBus(ctx, cfg.Bus, logger)
		if err != nil {
			logger.Warn("bus unavailable, alerts will not be announced live")
		} else {
			defer closeBus()
			announcer = client
		}
	}
	panel := worker.NewPanel(api.New(cfg.API), store, announcer, logger)

	action, rest := fs.Arg(0), fs.Args()[1:]
	err = dispatchWorker(ctx, panel, action, rest)
	switch {
	case errors.Is(err, worker.ErrNotLoggedIn):
		return exitError{code: 3, msg: "not logged in, run: aacharya worker login -u USER"}
	case errors.Is(err, worker.ErrSessionExpired):
		return exitError{code: 3, msg: "session expired, log in again"}
	}
	return err
}

func dispatchWorker(ctx context.Context, panel *worker.Panel, action string, args []string) error {
	switch action {
	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		username := fs.String("u", "", "Username")
		password := fs.String("p", os.Getenv("AACHARYA_WORKER_PASSWORD"), "Password")
		_ = fs.Parse(args)
		if *password == "" {
			fmt.Fprint(os.Stderr, "password: ")
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			*password = strings.TrimRight(line, "\r\n")
		}
		if err := panel.Login(ctx, *username, *password); err != nil {
			var status *api.StatusError
			if errors.As(err, &status) && status.Detail != "" {
				return exitError{code: 1, msg: status.Detail}
			}
			return err
		}
		fmt.Println("logged in")
	case "logout":
		if err := panel.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
	case "broadcast":
		if err := panel.Broadcast(ctx, strings.Join(args, " ")); err != nil {
			return err
		}
		fmt.Println("alert broadcast")
	case "clear":
		if err := panel.ClearAlerts(ctx); err != nil {
			return err
		}
		fmt.Println("alerts cleared")
	case "inventory":
		items, err := panel.Inventory(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ITEM\tQUANTITY")
		for _, item := range items {
			fmt.Fprintf(tw, "%s\t%d\n", item.ItemName, item.Quantity)
		}
		return tw.Flush()
	case "update":
		if len(args) < 2 {
			return exitError{code: 2, msg: workerUsage}
		}
		quantity, err := strconv.Atoi(args[len(args)-1])
		if err != nil {
			return exitError{code: 2, msg: fmt.Sprintf("invalid quantity %q", args[len(args)-1])}
		}
		item := strings.Join(args[:len(args)-1], " ")
		if err := panel.UpdateInventory(ctx, item, quantity); err != nil {
			return err
		}
		fmt.Printf("%s set to %d\n", item, quantity)
	default:
		return exitError{code: 2, msg: workerUsage}
	}
	return nil
}
