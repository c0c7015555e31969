package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/carelink/portal/internal/accounts"
	"github.com/carelink/portal/internal/config"
	"github.com/carelink/portal/internal/db"
	"github.com/carelink/portal/internal/logging"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: accounts <command> [flags]

commands:
  create         create an account (password read from the terminal)
  delete         delete an account with its profile and sessions
  staff          grant or revoke staff access
  clearsessions  purge expired sessions
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.Debug)
	gdb, err := db.Connect(cfg.DatabaseURL, logger, cfg.Debug)
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close(gdb)

	ctx := context.Background()
	svc, cleanup, err := accounts.Init(ctx, cfg, gdb, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	args := os.Args[2:]
	switch os.Args[1] {
	case "create":
		err = create(ctx, svc, args)
	case "delete":
		err = remove(ctx, svc, args)
	case "staff":
		err = staff(ctx, svc, args)
	case "clearsessions":
		var n int64
		n, err = svc.ClearExpiredSessions(ctx)
		if err == nil {
			fmt.Printf("Deleted %d expired sessions\n", n)
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func create(ctx context.Context, svc *accounts.Service, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	var (
		username  = fs.String("username", "", "username (required)")
		email     = fs.String("email", "", "email address (required)")
		firstName = fs.String("first", "", "first name (required)")
		lastName  = fs.String("last", "", "last name (required)")
		doctor    = fs.Bool("doctor", false, "create a doctor profile instead of a patient")
		address   = fs.String("address", "", "address line 1 (required)")
		city      = fs.String("city", "", "city (required)")
		state     = fs.String("state", "", "state (required)")
		pincode   = fs.String("pincode", "", "pincode (required)")
		isStaff   = fs.Bool("staff", false, "grant staff access")
	)
	fs.Parse(args)

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Password (again): ")
	if err != nil {
		return err
	}

	account, err := svc.Register(ctx, accounts.SignupForm{
		Username:     *username,
		Password1:    password,
		Password2:    confirm,
		Email:        *email,
		FirstName:    *firstName,
		LastName:     *lastName,
		IsDoctor:     *doctor,
		AddressLine1: *address,
		City:         *city,
		State:        *state,
		Pincode:      *pincode,
	})
	var verr *accounts.ValidationError
	if errors.As(err, &verr) {
		for _, field := range verr.Fields.Fields() {
			for _, msg := range verr.Fields[field] {
				fmt.Fprintf(os.Stderr, "%s: %s\n", field, msg)
			}
		}
		return errors.New("account not created")
	}
	if err != nil {
		return err
	}

	if *isStaff {
		if err := svc.SetStaff(ctx, account.Username, true); err != nil {
			return err
		}
	}
	fmt.Printf("Created account %s (%s)\n", account.Username, account.ID)
	return nil
}

func remove(ctx context.Context, svc *accounts.Service, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	username := fs.String("username", "", "username (required)")
	fs.Parse(args)
	if *username == "" {
		fs.Usage()
		os.Exit(2)
	}

	if err := svc.DeleteAccount(ctx, *username); err != nil {
		return err
	}
	fmt.Printf("Deleted account %s\n", *username)
	return nil
}

func staff(ctx context.Context, svc *accounts.Service, args []string) error {
	fs := flag.NewFlagSet("staff", flag.ExitOnError)
	username := fs.String("username", "", "username (required)")
	revoke := fs.Bool("revoke", false, "revoke instead of grant")
	fs.Parse(args)
	if *username == "" {
		fs.Usage()
		os.Exit(2)
	}

	if err := svc.SetStaff(ctx, *username, !*revoke); err != nil {
		return err
	}
	fmt.Printf("Updated staff access for %s\n", *username)
	return nil
}

var stdin = bufio.NewReader(os.Stdin)

// readPassword reads without echo from a terminal, or one line from a pipe.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
