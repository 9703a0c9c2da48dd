package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"starlane.ai/internal/cargo"
	"starlane.ai/internal/galaxy"
	"starlane.ai/internal/persistence/indexdb"
	"starlane.ai/internal/persistence/snapshot"
)

func systemsCmd(args []string) {
	fs := flag.NewFlagSet("systems", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/systems.sqlite)")
	name := fs.String("name", "", "print one system in full")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "systems.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	repo, err := indexdb.OpenSQLite(path, indexdb.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := showSystems(ctx, repo, strings.TrimSpace(*name)); err != nil {
		fmt.Fprintln(os.Stderr, "systems:", err)
		os.Exit(1)
	}
}

func showSystems(ctx context.Context, repo *indexdb.SQLiteRepo, name string) error {
	if name != "" {
		sys, err := repo.Get(ctx, name)
		if errors.Is(err, galaxy.ErrNotFound) {
			return fmt.Errorf("%s: not stored", name)
		}
		if err != nil {
			return err
		}
		printJSON(sys)
		return nil
	}
	list, err := repo.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range list {
		visit := "never"
		if !s.LastVisit.IsZero() {
			visit = s.LastVisit.UTC().Format(time.RFC3339)
		}
		fmt.Printf("%-32s address=%d last_visit=%s\n", s.Name, s.Address, visit)
	}
	return nil
}

func cargoCmd(args []string) {
	fs := flag.NewFlagSet("cargo", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	path := fs.String("manifest", "", "manifest path (default: <data>/cargo.snap.zst)")
	headerOnly := fs.Bool("header", false, "print only the snapshot header")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		p = filepath.Join(*dataDir, "cargo.snap.zst")
	}
	if *headerOnly {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	if _, err := os.Stat(p); err != nil {
		fmt.Fprintln(os.Stderr, "manifest:", err)
		os.Exit(1)
	}
	m, err := cargo.FileStore{Path: p}.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load manifest:", err)
		os.Exit(1)
	}
	printJSON(m)
}
