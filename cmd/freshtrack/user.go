// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package main

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/freshtrack/freshtrack/internal/auth"
	"github.com/freshtrack/freshtrack/internal/observability"
	"github.com/freshtrack/freshtrack/pkg/errutil"
)

type userAddConfig struct {
	email         string
	name          string
	passwordStdin bool
}

// NewUserCmd creates the user command group.
func NewUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserAddCmd(deps))
	return cmd
}

func newUserAddCmd(deps *Deps) *cobra.Command {
	uc := &userAddConfig{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Long: `Create an account directly in the store. The password is prompted for
twice on a terminal; otherwise pass --password-stdin and pipe it in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserAdd(cmd, deps, uc)
		},
	}
	cmd.Flags().StringVar(&uc.email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&uc.name, "name", "", "full name")
	cmd.Flags().BoolVar(&uc.passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag is registered above
	return cmd
}

func runUserAdd(cmd *cobra.Command, deps *Deps, uc *userAddConfig) error {
	deps = deps.withDefaults()
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	password, err := readPassword(cmd, deps, uc.passwordStdin)
	if err != nil {
		return err
	}

	handle, err := openStore(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			errutil.LogWarn(ctx, logger, "closing store", closeErr)
		}
	}()

	svc, err := newAuthService(cfg, handle, logger, observability.NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		return err
	}

	session, err := svc.Register(ctx, uc.email, password, uc.name)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateIdentity) {
			return oops.With("email", uc.email).Wrapf(err, "account already exists")
		}
		return err
	}

	cmd.Printf("Created user %s (%s)\n", session.User.ID, session.User.Email)
	return nil
}

// readPassword prompts twice without echo on a terminal, or reads one line
// from stdin when fromStdin is set.
func readPassword(cmd *cobra.Command, deps *Deps, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(deps.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", oops.Code("PASSWORD_EMPTY").Errorf("password cannot be empty")
		}
		return password, nil
	}

	fd := int(deps.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
	if !deps.IsTerminal(fd) {
		return "", oops.Code("PASSWORD_NO_TTY").Errorf("stdin is not a terminal; use --password-stdin")
	}

	cmd.PrintErr("Password: ")
	first, err := deps.ReadPassword(fd)
	cmd.PrintErrln()
	if err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	cmd.PrintErr("Confirm password: ")
	second, err := deps.ReadPassword(fd)
	cmd.PrintErrln()
	if err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}

	if len(first) == 0 {
		return "", oops.Code("PASSWORD_EMPTY").Errorf("password cannot be empty")
	}
	if subtle.ConstantTimeCompare(first, second) != 1 {
		return "", oops.Code("PASSWORD_MISMATCH").Errorf("passwords do not match")
	}
	return string(first), nil
}
