package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"leadline/internal/domain"
	"leadline/internal/events"
	"leadline/internal/phone"
	"leadline/internal/repo"
)

// SeedOptions controls demo data generation.
type SeedOptions struct {
	Leads   int
	Seed    int64
	ActorID string
}

type SeedResult struct {
	Channels      int `json:"channels"`
	Agents        int `json:"agents"`
	Leads         int `json:"leads"`
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
	Simulations   int `json:"simulations"`
}

var seedChannels = []domain.ChannelRef{
	{ID: "whatsapp-main", Type: "whatsapp", Identifier: "+5511900000000"},
	{ID: "instagram-main", Type: "instagram", Identifier: "@leadline"},
}

// Seed fills the workspace with fake leads spread across the funnel. A
// non-zero seed always produces the same data.
func (e Engine) Seed(ctx context.Context, opts SeedOptions) (SeedResult, error) {
	stages, err := e.stages()
	if err != nil {
		return SeedResult{}, err
	}
	if opts.Leads <= 0 {
		opts.Leads = 60
	}
	if opts.Seed == 0 {
		opts.Seed = e.now().UnixNano()
	}
	f := gofakeit.New(opts.Seed)
	ids := uuid.NewSHA1
	base := e.now().UTC()
	stamp := func(t time.Time) string { return t.Format(time.RFC3339Nano) }

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SeedResult{}, err
	}
	defer tx.Rollback()

	var res SeedResult
	for _, ch := range seedChannels {
		if err := e.Repo.EnsureChannel(ctx, tx, ch, stamp(base)); err != nil {
			return res, fmt.Errorf("seed channel: %w", err)
		}
		res.Channels++
	}
	agents := make([]domain.AgentRef, 3)
	for i := range agents {
		agents[i] = domain.AgentRef{ID: fmt.Sprintf("agent-%d", i+1), Name: f.FirstName()}
		if err := e.Repo.EnsureAgent(ctx, tx, agents[i], stamp(base)); err != nil {
			return res, fmt.Errorf("seed agent: %w", err)
		}
		res.Agents++
	}

	for i := 0; i < opts.Leads; i++ {
		created := base.Add(-time.Duration(f.Number(1, 60*24*30)) * time.Minute)
		stage := stages[f.Number(0, len(stages)-1)]
		ch := seedChannels[f.Number(0, len(seedChannels)-1)]
		id := ids(uuid.NameSpaceOID, []byte(fmt.Sprintf("lead|%d|%d", opts.Seed, i))).String()
		raw := fmt.Sprintf("(11) 9%04d-%04d", f.Number(0, 9999), f.Number(0, 9999))
		l := domain.Lead{
			ID:        id,
			ChannelID: ch.ID,
			Name:      f.Name(),
			Phone:     phone.Normalize(raw, e.region()),
			Email:     f.Email(),
			Tags:      []string{f.RandomString([]string{"hot", "cold", "referral", "ads"})},
			Fields:    map[string]any{"source": ch.Type, "company": f.Company()},
			CreatedAt: stamp(created),
			UpdatedAt: stamp(created.Add(time.Duration(f.Number(0, 600)) * time.Minute)),
		}.WithStatus(stage)
		if err := e.Repo.InsertContact(ctx, tx, l); err != nil {
			return res, fmt.Errorf("seed contact: %w", err)
		}
		res.Leads++

		nConv := f.Number(0, 2)
		for c := 0; c < nConv; c++ {
			convID := ids(uuid.NameSpaceOID, []byte(fmt.Sprintf("conv|%s|%d", id, c))).String()
			agentID := ""
			if f.Bool() {
				agentID = agents[f.Number(0, len(agents)-1)].ID
			}
			if err := e.Repo.InsertConversation(ctx, tx, repo.ConversationRow{
				ID: convID, ContactID: id, Status: f.RandomString([]string{"open", "closed"}), AgentID: agentID, CreatedAt: stamp(created),
			}); err != nil {
				return res, fmt.Errorf("seed conversation: %w", err)
			}
			res.Conversations++
			at := created
			nMsg := f.Number(1, 5)
			for m := 0; m < nMsg; m++ {
				at = at.Add(time.Duration(f.Number(1, 120)) * time.Minute)
				inbound := m%2 == 0
				sender, direction := "agent", "outbound"
				if inbound {
					sender, direction = "contact", "inbound"
				}
				content, _ := json.Marshal(map[string]string{"text": f.Sentence(f.Number(3, 12))})
				if err := e.Repo.InsertMessage(ctx, tx, repo.MessageRow{
					ID:             ids(uuid.NameSpaceOID, []byte(fmt.Sprintf("msg|%s|%d", convID, m))).String(),
					ConversationID: convID,
					Sender:         sender,
					Direction:      direction,
					Type:           "text",
					Content:        content,
					CreatedAt:      stamp(at),
				}); err != nil {
					return res, fmt.Errorf("seed message: %w", err)
				}
				res.Messages++
			}
		}

		if f.Number(0, 2) == 0 {
			sim := domain.Simulation{
				ID:        ids(uuid.NameSpaceOID, []byte("sim|"+id)).String(),
				ContactID: id,
				Provider:  f.RandomString([]string{"bank-a", "bank-b"}),
				Status:    f.RandomString([]string{"pending", "done"}),
				Output: map[string]any{
					"amount":       f.Price(1000, 50000),
					"installments": f.Number(6, 48),
				},
				CreatedAt: stamp(created.Add(time.Hour)),
			}
			if sim.Status == "done" {
				sim.WebhookData = map[string]any{"approved": f.Bool(), "rate": f.Float64Range(0.9, 3.5)}
			}
			if err := e.Repo.InsertSimulation(ctx, tx, sim); err != nil {
				return res, fmt.Errorf("seed simulation: %w", err)
			}
			res.Simulations++
		}
	}
	if err := e.Events.Append(ctx, tx, "workspace.seed", "workspace", "", opts.ActorID, events.EventPayload{
		"leads": res.Leads, "seed": opts.Seed,
	}); err != nil {
		return res, err
	}
	return res, tx.Commit()
}
