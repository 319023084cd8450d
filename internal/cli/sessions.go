// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/jeranaias/delve/internal/clock"
	"github.com/jeranaias/delve/internal/export"
	"github.com/jeranaias/delve/internal/model"
	"github.com/jeranaias/delve/internal/payload"
	"github.com/jeranaias/delve/internal/session"
	"github.com/jeranaias/delve/internal/ui/render"
	"github.com/jeranaias/delve/internal/ui/styles"
	"github.com/jeranaias/delve/internal/util"
)

func newSessionsCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage saved sessions",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			metas, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), metas)
			}
			printSessionList(cmd.OutOrStdout(), metas, "")
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print a saved session and its canvas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load session %s: %w", args[0], err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			out := cmd.OutOrStdout()
			r := render.New(styles.NewTheme(), markdownStyle(out, a.cfg.UI.GlamourStyle))
			printRecord(out, r, rec, terminalWidth(out))
			return nil
		},
	}

	del := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a saved session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			rec := session.NewReconciler(store, clock.Real{}, a.logger)
			defer rec.Close()
			if err := rec.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted session "+args[0])
			return nil
		},
	}

	cmd.AddCommand(list, show, del, newExportCommand(a))
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var (
		format   string
		output   string
		theme    string
		toStdout bool
	)
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Write a saved session to a Markdown, JSON or HTML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load session %s: %w", args[0], err)
			}

			opts := export.DefaultOptions()
			opts.OutputDir = output
			opts.Theme = theme
			exp, err := export.New(f, opts)
			if err != nil {
				return err
			}

			if toStdout {
				data, err := exp.Export(rec)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			path, err := export.ToFile(rec, exp, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Exported session "+args[0]+" to "+path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "markdown, json or html")
	cmd.Flags().StringVarP(&output, "output", "o", ".", "directory to write into")
	cmd.Flags().StringVar(&theme, "theme", "dark", "html theme: dark or light")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "write to standard output instead of a file")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSessionList prints metas as a table. activeID, if set, is marked.
func printSessionList(w io.Writer, metas []model.SessionMeta, activeID string) {
	if len(metas) == 0 {
		fmt.Fprintln(w, infoStyle.Render("No saved sessions."))
		return
	}
	rows := make([][]string, 0, len(metas))
	for _, m := range metas {
		id := m.ID
		if id == activeID {
			id += " *"
		}
		canvas := ""
		if m.HasCanvas {
			canvas = "yes"
		}
		rows = append(rows, []string{
			id,
			util.TruncateRunes(m.Title, 40),
			strconv.Itoa(m.TurnCount),
			canvas,
			m.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "TURNS", "CANVAS", "UPDATED").
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}

// printRecord prints a stored session transcript followed by its canvas.
func printRecord(w io.Writer, r *render.Renderer, rec model.Record, width int) {
	fmt.Fprintln(w, headerStyle.Render(rec.Title))
	fmt.Fprintln(w, infoStyle.Render(rec.ID+"  updated "+rec.UpdatedAt.Local().Format("2006-01-02 15:04")))
	fmt.Fprintln(w)

	for _, e := range rec.Turns {
		role := model.Role(e.Role)
		fmt.Fprintln(w, promptStyle.Render(role.DisplayName()+":"))
		if role == model.RoleAssistant {
			fmt.Fprintln(w, r.Payload(payload.Classify(e.Content), width))
		} else {
			fmt.Fprintln(w, render.Wrap(e.Content, width))
		}
		fmt.Fprintln(w)
	}

	if rec.Canvas != nil {
		fmt.Fprintln(w, headerStyle.Render("Canvas"))
		if rec.Canvas.Summary != "" {
			fmt.Fprintln(w, infoStyle.Render(render.Wrap(rec.Canvas.Summary, width)))
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, r.Payload(payload.Classify(rec.Canvas.FullAnswer), width))
		if m := formatMetrics(rec.Canvas.Metrics); m != "" {
			fmt.Fprintln(w, infoStyle.Render(m))
		}
	}
}
