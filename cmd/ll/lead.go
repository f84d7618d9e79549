package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leadline/internal/domain"
	"leadline/internal/repo"
)

func leadCmd() *cobra.Command {
	lead := &cobra.Command{Use: "lead", Short: "Inspect leads"}
	lead.AddCommand(leadShowCmd())
	return lead
}

func leadShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a lead with its conversations and latest simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				l, err := s.client.Lead(ctx, id)
				if err != nil {
					return err
				}
				convs, err := s.client.LeadConversations(ctx, id)
				if err != nil {
					return err
				}
				sims, err := s.client.LeadSimulations(ctx, id)
				if err != nil {
					return err
				}
				notes, err := s.repo.ListNotes(ctx, id)
				if err != nil {
					return err
				}
				var latest map[string]any
				if len(sims) > 0 {
					latest = sims[0].Data()
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"lead":          l,
						"conversations": convs,
						"simulation":    latest,
						"notes":         notes,
					})
				}
				fmt.Printf("%s  %s\n", l.ID, l.Name)
				fmt.Printf("  stage:   %s\n", s.cfg.StageTitle(l.Status()))
				fmt.Printf("  phone:   %s\n", l.Phone)
				fmt.Printf("  email:   %s\n", l.Email)
				fmt.Printf("  channel: %s\n", l.EffectiveChannelID())
				if len(l.Tags) > 0 {
					fmt.Printf("  tags:    %s\n", strings.Join(l.Tags, ", "))
				}
				fmt.Println("Conversations:")
				if len(convs) == 0 {
					fmt.Println("  none")
				}
				for _, c := range convs {
					agent := "unassigned"
					if c.CurrentAgent != nil {
						agent = c.CurrentAgent.Name
					}
					fmt.Printf("  %s [%s] agent=%s\n", c.ID, c.Status, agent)
					for _, m := range c.Messages {
						fmt.Printf("    %s %-8s %s\n", m.CreatedAt, m.Sender, messageText(m))
					}
				}
				fmt.Println("Latest simulation:")
				if latest == nil {
					fmt.Println("  none")
				}
				keys := make([]string, 0, len(latest))
				for k := range latest {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %s: %v\n", k, latest[k])
				}
				if len(notes) > 0 {
					fmt.Println("Notes:")
					for _, n := range notes {
						fmt.Printf("  %s %s: %s\n", n.CreatedAt, n.Author, n.Body)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func messageText(m domain.Message) string {
	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &content); err == nil && content.Text != "" {
		return content.Text
	}
	return "<" + m.Type + ">"
}

func noteCmd() *cobra.Command {
	note := &cobra.Command{
		Use:   "note",
		Short: "Local notes on leads",
		Long:  "Notes stay in this workspace; they are never sent to the API.",
	}
	note.AddCommand(noteAddCmd())
	note.AddCommand(noteListCmd())
	return note
}

func noteAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <lead-id> <text>",
		Short: "Add a note to a lead",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := strings.TrimSpace(strings.Join(args[1:], " "))
			if body == "" {
				return fmt.Errorf("note text is required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				n := domain.Note{
					ID:        uuid.NewString(),
					ContactID: args[0],
					Body:      body,
					Author:    viper.GetString("actor-id"),
					CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
				}
				if err := r.InsertNote(ctx, n); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(n)
				}
				fmt.Printf("Added note %s\n", n.ID)
				return nil
			})
		},
	}
	return cmd
}

func noteListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <lead-id>",
		Short: "List notes of a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				notes, err := r.ListNotes(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(notes)
				}
				for _, n := range notes {
					fmt.Printf("%s  %s  %s\n", n.CreatedAt, n.Author, n.Body)
				}
				return nil
			})
		},
	}
	return cmd
}
