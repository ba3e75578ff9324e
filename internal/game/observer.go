package game

import (
	"context"
	"time"

	"github.com/MikeSquared-Agency/vellum/internal/bus"
	"github.com/MikeSquared-Agency/vellum/internal/markup"
	"github.com/MikeSquared-Agency/vellum/internal/metrics"
	"github.com/MikeSquared-Agency/vellum/internal/playback"
	"github.com/MikeSquared-Agency/vellum/internal/store"
)

// observer is the game's own view. It runs on the loop goroutine, so it
// may read the attribute store directly.
type observer struct {
	playback.BaseView
	g *Game
}

func (o *observer) AttributeApplied(change markup.AttributeChange, value float64, err error) {
	g := o.g
	status := metrics.StatusSuccess
	errText := ""
	if err != nil {
		status = metrics.StatusUnknown
		errText = err.Error()
		g.logger.Warn("attribute change rejected", "attribute", change.Name, "delta", change.Delta, "error", err)
	} else {
		g.logger.Debug("attribute changed", "attribute", change.Name, "delta", change.Delta, "value", value)
	}
	metrics.AttributeChanges.WithLabelValues(status).Inc()

	snap := g.attrs.Snapshot()
	g.mu.Lock()
	g.attrSnap = snap
	g.mu.Unlock()

	now := time.Now().UTC()
	g.record("record attribute", func(ctx context.Context) error {
		if g.deps.Journal == nil {
			return nil
		}
		return g.deps.Journal.RecordAttribute(ctx, store.AttributeChange{
			PlaythroughID: g.id,
			Name:          change.Name,
			Delta:         change.Delta,
			Value:         value,
			Reason:        change.Reason,
			Applied:       err == nil,
			CreatedAt:     now,
		})
	})
	g.publish(bus.AttributeApplied{
		GameID: g.id.String(),
		Name:   change.Name,
		Delta:  change.Delta,
		Value:  value,
		Reason: change.Reason,
		Error:  errText,
	})
}

func (o *observer) RequestFailed(err error) {
	o.g.logger.Warn("turn request failed, awaiting retry", "error", err)
}

func (o *observer) StoryEnded(text string) {
	g := o.g
	endText := g.story.EndingText(text)
	metrics.EndingsTotal.Inc()
	g.logger.Info("story ended", "turns", g.turns.Load())

	attrs := g.attrs.Snapshot()
	turns := int(g.turns.Load())
	now := time.Now().UTC()
	g.record("finish playthrough", func(ctx context.Context) error {
		if g.deps.Journal == nil {
			return nil
		}
		return g.deps.Journal.FinishPlaythrough(ctx, store.Ending{
			PlaythroughID: g.id,
			EndText:       endText,
			Turns:         turns,
			Attributes:    attrs,
			EndedAt:       now,
		})
	})
	g.publish(bus.GameEnded{
		GameID:     g.id.String(),
		Story:      g.story.Name,
		EndText:    endText,
		Turns:      turns,
		Attributes: attrs,
		EndedAt:    now,
	})
}
