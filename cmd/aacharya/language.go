package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/loqalabs/aacharya/internal/language"
	"github.com/loqalabs/aacharya/internal/prefs"
)

func runLanguage(args []string) error {
	fs := flag.NewFlagSet("language", flag.ExitOnError)
	configPath := commonFlags(fs)
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, closeLog, err := newLogger(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()
	store, err := prefs.Open(ctx, cfg.Preferences, logger)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer store.Close()

	if fs.NArg() == 0 {
		current, _, err := store.Get(ctx, prefs.KeyLanguage)
		if err != nil {
			return err
		}
		fmt.Print(languageList(current))
		return nil
	}

	profile, err := language.Lookup(fs.Arg(0))
	if err != nil {
		return exitError{code: 2, msg: fmt.Sprintf("%v\n\n%s", err, languageList(""))}
	}
	if err := store.Set(ctx, prefs.KeyLanguage, string(profile.Code)); err != nil {
		return fmt.Errorf("store language: %w", err)
	}
	fmt.Println(profile.Welcome)
	return nil
}

func languageList(current string) string {
	var b strings.Builder
	for _, p := range language.All() {
		marker := " "
		if string(p.Code) == current {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s  %s (%s)\n", marker, p.Code, p.Name, p.NativeName)
	}
	return b.String()
}
