package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/clipdigest/bots/internal/client"
	"github.com/clipdigest/bots/internal/model"
)

const commentarySystemPrompt = "You are a financial writer for a personal blog. In two or three " +
	"sentences, comment on the day's portfolio movement. Plain prose, no investment advice."

// PortfolioService publishes the daily portfolio snapshot: scrape the
// brokerage page, derive totals and weights, add a short generated
// commentary, push downstream, and announce the result.
type PortfolioService struct {
	source    client.PortfolioSource
	completer client.BatchCompleter
	publisher client.Publisher
	notifier  client.Notifier
	log       zerolog.Logger
}

// NewPortfolioService creates the snapshot pipeline service
func NewPortfolioService(source client.PortfolioSource, completer client.BatchCompleter, publisher client.Publisher, notifier client.Notifier, log zerolog.Logger) *PortfolioService {
	return &PortfolioService{
		source:    source,
		completer: completer,
		publisher: publisher,
		notifier:  notifier,
		log:       log,
	}
}

// RunSnapshot executes one snapshot pass
func (s *PortfolioService) RunSnapshot(ctx context.Context) error {
	if !s.source.IsConfigured() {
		return errors.New("portfolio source not configured")
	}
	if !s.publisher.IsConfigured() {
		return errors.New("blog publisher not configured")
	}

	holdings, err := s.source.FetchHoldings(ctx)
	if err != nil {
		s.notifier.Notify(ctx, fmt.Sprintf("❌ portfolio: scrape failed: %v", err))
		return fmt.Errorf("failed to fetch holdings: %w", err)
	}

	snapshot := buildSnapshot(holdings, time.Now().UTC())

	// Commentary is decoration; the snapshot ships without it on any error.
	if s.completer.IsConfigured() {
		commentary, err := s.completer.ChatCompletion(ctx, commentarySystemPrompt, commentaryUserPrompt(&snapshot))
		if err != nil {
			s.log.Warn().Err(err).Msg("portfolio: commentary generation failed, continuing without")
		} else {
			snapshot.Commentary = strings.TrimSpace(commentary)
		}
	}

	if err := s.publisher.CreateSnapshot(ctx, &snapshot); err != nil {
		s.notifier.Notify(ctx, fmt.Sprintf("❌ portfolio: snapshot publish failed: %v", err))
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	s.log.Info().Str("date", snapshot.Date).Int("holdings", len(snapshot.Holdings)).Float64("total_value", snapshot.TotalValue).Msg("portfolio: snapshot published")
	s.notifier.Notify(ctx, formatSnapshotMessage(&snapshot))
	return nil
}

// buildSnapshot derives totals, per-holding weights and the value-weighted
// day change from the raw holdings.
func buildSnapshot(holdings []model.Holding, now time.Time) model.PortfolioSnapshot {
	total := 0.0
	for _, h := range holdings {
		total += h.Value
	}

	change := 0.0
	if total > 0 {
		for i := range holdings {
			holdings[i].Weight = holdings[i].Value / total * 100
			change += holdings[i].DayChangePct * holdings[i].Value / total
		}
	}

	return model.PortfolioSnapshot{
		Date:         now.Format("2006-01-02"),
		Holdings:     holdings,
		TotalValue:   total,
		DayChangePct: change,
		CapturedAt:   now,
	}
}

func commentaryUserPrompt(s *model.PortfolioSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\nTotal value: %.2f\nDay change: %+.2f%%\nPositions:\n", s.Date, s.TotalValue, s.DayChangePct)
	for _, h := range s.Holdings {
		fmt.Fprintf(&b, "- %s: value %.2f, weight %.1f%%, day change %+.2f%%\n", h.Symbol, h.Value, h.Weight, h.DayChangePct)
	}
	return b.String()
}

// formatSnapshotMessage renders the webhook announcement; grouped number
// formatting keeps large totals readable.
func formatSnapshotMessage(s *model.PortfolioSnapshot) string {
	p := message.NewPrinter(language.English)

	var b strings.Builder
	p.Fprintf(&b, "📊 Portfolio %s: total %.2f (%+.2f%% today)\n", s.Date, s.TotalValue, s.DayChangePct)
	for _, h := range s.Holdings {
		p.Fprintf(&b, "%s: %.2f (%.1f%%)\n", h.Symbol, h.Value, h.Weight)
	}
	if s.Commentary != "" {
		b.WriteString("\n")
		b.WriteString(s.Commentary)
	}
	return strings.TrimRight(b.String(), "\n")
}
