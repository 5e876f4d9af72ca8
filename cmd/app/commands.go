// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/database"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/services/session"
	"codeberg.org/oliverandrich/go-accounts/internal/services/tokens"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
	"golang.org/x/term"
)

func migrateCommand() *cli.Command {
	run := func(fn func(db *sqlx.DB, driver string) error) cli.ActionFunc {
		return func(_ context.Context, cmd *cli.Command) error {
			dsn := config.NewFromCLI(cmd).Database.DSN
			db, err := database.Connect(dsn)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			return fn(db, database.DriverFor(dsn))
		}
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: run(func(db *sqlx.DB, driver string) error {
					return database.RunMigrations(db.DB, driver)
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back the last migration",
				Action: run(func(db *sqlx.DB, driver string) error {
					return database.MigrateDown(db.DB, driver)
				}),
			},
			{
				Name:  "reset",
				Usage: "Roll back all migrations",
				Action: run(func(db *sqlx.DB, driver string) error {
					return database.MigrateReset(db.DB, driver)
				}),
			},
			{
				Name:  "status",
				Usage: "Print the current schema version",
				Action: run(func(db *sqlx.DB, driver string) error {
					version, err := database.Version(db.DB, driver)
					if err != nil {
						return err
					}
					fmt.Printf("schema version %d\n", version)
					return nil
				}),
			},
		},
	}
}

func createSuperuserCommand() *cli.Command {
	return &cli.Command{
		Name:  "createsuperuser",
		Usage: "Create an active staff account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "Email address", Required: true, Local: true},
			&cli.StringFlag{Name: "name", Usage: "Display name", Required: true, Local: true},
			&cli.StringFlag{Name: "password", Usage: "Password, prompted for when omitted", Local: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			password, err := passwordFrom(cmd)
			if err != nil {
				return err
			}

			return withService(cmd, func(svc *auth.Service) error {
				user, err := svc.CreateSuperuser(ctx, auth.RegisterInput{
					Email:    cmd.String("email"),
					Name:     cmd.String("name"),
					Password: password,
				})
				if err != nil {
					return err
				}
				total, err := svc.SuperuserCount(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Superuser %s created (%d in total).\n", user.Email, total)
				return nil
			})
		},
	}
}

func changePasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "changepassword",
		Usage: "Set a new password for an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "Email address", Required: true, Local: true},
			&cli.StringFlag{Name: "password", Usage: "Password, prompted for when omitted", Local: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			password, err := passwordFrom(cmd)
			if err != nil {
				return err
			}

			return withService(cmd, func(svc *auth.Service) error {
				if err := svc.ChangePassword(ctx, cmd.String("email"), password); err != nil {
					return err
				}
				fmt.Printf("Password changed for %s.\n", cmd.String("email"))
				return nil
			})
		},
	}
}

func setActiveCommand(name, usage string, active bool) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "Email address", Required: true, Local: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withService(cmd, func(svc *auth.Service) error {
				if err := svc.SetActive(ctx, cmd.String("email"), active); err != nil {
					return err
				}
				state := "deactivated"
				if active {
					state = "activated"
				}
				fmt.Printf("Account %s %s.\n", cmd.String("email"), state)
				return nil
			})
		},
	}
}

// withService opens the database and runs fn with an account service that
// sends no mail.
func withService(cmd *cli.Command, fn func(*auth.Service) error) error {
	cfg := config.NewFromCLI(cmd)

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	repo := repository.New(db)
	secret := []byte(cfg.Auth.SecretKey)
	svc := auth.NewService(repo,
		tokens.New(repo, secret, tokens.WithTTL(cfg.Auth.LinkTTL)),
		session.NewIssuer(session.Config{Secret: secret, Issuer: cfg.Auth.Issuer}),
		nil,
		&cfg.Auth,
	)
	return fn(svc)
}

// passwordFrom returns --password or prompts twice on the terminal.
func passwordFrom(cmd *cli.Command) (string, error) {
	if password := cmd.String("password"); password != "" {
		return password, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to prompt for a password, pass --password")
	}

	policy := auth.NewPasswordValidator(config.NewFromCLI(cmd).Auth.PasswordMinLength)
	fmt.Fprintln(os.Stderr, "Password requirements:")
	for _, text := range policy.HelpTexts() {
		fmt.Fprintf(os.Stderr, "  - %s\n", text)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Password (again): ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if strings.TrimSpace(string(first)) == "" {
		return "", errors.New("blank passwords are not allowed")
	}
	return string(first), nil
}
