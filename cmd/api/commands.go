package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"pkt.systems/pslog"

	"permit-board/internal/clock"
	"permit-board/internal/modal"
	"permit-board/internal/pinhash"
	"permit-board/internal/store"
)

func newHashPinCommand() *cobra.Command {
	var iterations int
	var user, role string
	cmd := &cobra.Command{
		Use:   "hash-pin [pin]",
		Short: "Hash a 6-digit PIN for the users file",
		Long: `Hash a 6-digit PIN in the pbkdf2:sha256 format the users file expects.

The PIN is read from the argument, from a terminal prompt, or from the first
line of stdin. With --user the output is a complete users file record.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			var pin string
			var err error
			if len(args) == 1 {
				pin = args[0]
			} else if pin, err = readPIN(cmd); err != nil {
				return err
			}
			pin = strings.TrimSpace(pin)
			hash, err := pinhash.Generate(pin, iterations)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if user == "" {
				_, err = fmt.Fprintln(out, hash)
				return err
			}
			rec := modal.UserRecord{User: user, PinHash: hash}
			if role == string(modal.RoleAdmin) {
				rec.Role = string(modal.RoleAdmin)
			} else if role != "" && role != string(modal.RoleUser) {
				return fmt.Errorf("unknown role %q (options: user, admin)", role)
			}
			line, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(line))
			return err
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", pinhash.DefaultIterations, "pbkdf2 iterations")
	cmd.Flags().StringVar(&user, "user", "", "emit a users file record for this user")
	cmd.Flags().StringVar(&role, "role", "", "role for --user (user or admin)")
	return cmd
}

// readPIN prompts without echo when stdin is a terminal, otherwise it reads
// the first line.
func readPIN(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "PIN: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read pin: %w", err)
		}
		fmt.Fprint(cmd.ErrOrStderr(), "Repeat PIN: ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read pin: %w", err)
		}
		if string(first) != string(second) {
			return "", errors.New("PINs do not match")
		}
		return string(first), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read pin: %w", err)
	}
	if strings.TrimSpace(line) == "" {
		return "", errors.New("no PIN given")
	}
	return line, nil
}

func newJobsCommand(v *viper.Viper, logger pslog.Logger) *cobra.Command {
	var overdueOnly bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List the open jobs in a board state file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if _, err := loadConfigFile(v); err != nil {
				return err
			}
			path := strings.TrimSpace(v.GetString("data-file"))
			if path == "" {
				return errors.New("jobs: --data-file is required")
			}
			clk := clock.Real{}
			state, err := store.NewFileBackend(path, clk, logger).Load(cmd.Context())
			if err != nil {
				return err
			}
			return printJobs(cmd.OutOrStdout(), state, clk.Now(), overdueOnly)
		},
	}
	cmd.Flags().BoolVar(&overdueOnly, "overdue", false, "only list overdue jobs")
	return cmd
}

func printJobs(out io.Writer, state modal.AppState, now time.Time, overdueOnly bool) error {
	badge := lipgloss.NewRenderer(out).NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRISK\tDEPARTMENT\tPOINT\tOPENED BY\tSTARTED\tSTATUS")
	listed := 0
	for _, job := range state.Jobs {
		overdue := job.Overdue(now, state.OverdueMinutes)
		if overdueOnly && !overdue {
			continue
		}
		age := "-"
		if started, ok := job.StartedAt(); ok {
			age = humanize.RelTime(started, now, "ago", "from now")
		}
		status := "open"
		if overdue {
			status = badge.Render("OVERDUE")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", job.ID, job.RiskType, job.Department, job.Point, job.Owner(), age, status)
		listed++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%d job(s) listed, overdue after %d min, updated %s\n",
		listed, state.OverdueMinutes, humanize.RelTime(state.UpdatedAt, now, "ago", "from now"))
	return err
}
