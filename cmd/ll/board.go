package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leadline/internal/domain"
	"leadline/internal/kanban"
)

func boardCmd() *cobra.Command {
	var search, channel, agent string
	var pages int
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the lead board",
		Long:  "Loads the first page of every stage, pulls up to --pages pages in total and prints the columns. Filters only narrow what is shown; counts always come from the API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				if err := loadPages(ctx, s, pages); err != nil {
					return err
				}
				view := kanban.NewView(s.store, s.cfg.Search.Debounce)
				defer view.Close()
				view.SetChannel(channel)
				view.SetAgent(agent)
				view.SearchNow(search)
				snap := s.store.Snapshot()
				shown := view.Columns()
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"columns":  shown,
						"counts":   snap.Counts,
						"page":     snap.Page,
						"has_more": snap.HasMore,
					})
				}
				renderBoard(s, shown, snap)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "match name or phone")
	cmd.Flags().StringVar(&channel, "channel", kanban.FilterAll, "channel id filter")
	cmd.Flags().StringVar(&agent, "agent", kanban.FilterAll, "agent id filter")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	cmd.AddCommand(boardMoveCmd())
	cmd.AddCommand(boardCheckCmd())
	return cmd
}

func boardMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <lead-id> <stage>",
		Short: "Move a lead to another stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			leadID, stage := args[0], args[1]
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				if !s.cfg.HasStage(stage) {
					return fmt.Errorf("unknown stage %q (stages: %s)", stage, strings.Join(s.cfg.StageIDs(), ", "))
				}
				if err := findLead(ctx, s, leadID); err != nil {
					return err
				}
				p := s.ctrl.ChangeStatus(ctx, leadID, stage)
				if !p.Applied() {
					return fmt.Errorf("lead %s is already in %s", leadID, stage)
				}
				if err := p.Wait(ctx); err != nil {
					return err
				}
				snap := s.store.Snapshot()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"lead_id": leadID, "status": stage, "counts": snap.Counts})
				}
				fmt.Printf("Moved %s to %s\n", leadID, s.cfg.StageTitle(stage))
				return nil
			})
		},
	}
	return cmd
}

func boardCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load every page and check the board against the API counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				if err := loadPages(ctx, s, 0); err != nil {
					return err
				}
				snap := s.store.Snapshot()
				var problems []string
				if err := snap.Board.Validate(); err != nil {
					problems = append(problems, err.Error())
				}
				for _, stage := range s.store.Stages() {
					loaded, total := len(snap.Board[stage]), snap.Counts[stage]
					if loaded != total {
						problems = append(problems, fmt.Sprintf("%s: %d loaded, %d counted", stage, loaded, total))
					}
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"ok": len(problems) == 0, "problems": problems, "pages": snap.Page})
				}
				if len(problems) > 0 {
					for _, p := range problems {
						fmt.Println("-", p)
					}
					return fmt.Errorf("board check found %d problem(s)", len(problems))
				}
				fmt.Printf("board OK (%d leads over %d pages)\n", snap.Board.Len(), snap.Page)
				return nil
			})
		},
	}
	return cmd
}

// loadPages resets the board and pulls more pages while the API has them.
// A limit of zero or less loads everything.
func loadPages(ctx context.Context, s *session, limit int) error {
	if err := s.store.Load(ctx, true); err != nil {
		return err
	}
	pager := kanban.NewPager(s.store)
	for n := 1; limit <= 0 || n < limit; n++ {
		if !pager.HasMore() {
			return nil
		}
		if _, err := pager.RequestMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// findLead loads pages until the lead is on the board.
func findLead(ctx context.Context, s *session, leadID string) error {
	if err := s.store.Load(ctx, true); err != nil {
		return err
	}
	pager := kanban.NewPager(s.store)
	for {
		if _, _, ok := s.store.Snapshot().Board.Locate(leadID); ok {
			return nil
		}
		if !pager.HasMore() {
			return fmt.Errorf("lead %s not found on the board", leadID)
		}
		if _, err := pager.RequestMore(ctx); err != nil {
			return err
		}
	}
}

func renderBoard(s *session, shown kanban.Board, snap kanban.Snapshot) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Stage", "ID", "Name", "Phone", "Channel", "Agent", "AI"})
	for i, stage := range s.store.Stages() {
		if i > 0 {
			tw.AppendSeparator()
		}
		title := fmt.Sprintf("%s (%d)", s.cfg.StageTitle(stage), snap.Counts[stage])
		leads := shown[stage]
		if len(leads) == 0 {
			tw.AppendRow(table.Row{title, "-", "", "", "", "", ""})
			continue
		}
		for j, l := range leads {
			label := ""
			if j == 0 {
				label = title
			}
			tw.AppendRow(table.Row{label, l.ID, l.Name, l.Phone, l.EffectiveChannelID(), l.ActiveAgentID(), aiLabel(s, l)})
		}
	}
	more := "no more pages"
	if snap.HasMore {
		more = "more pages available (--pages)"
	}
	tw.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("page %d", snap.Page), more})
	tw.Style().Format.Footer = text.FormatDefault
	tw.Render()
}

func aiLabel(s *session, l domain.Lead) string {
	if l.Phone == "" {
		return ""
	}
	if active, known := s.ai.Active(l.Phone); known && !active {
		return "paused"
	}
	return "on"
}
