// Package ingest turns raw, tagged match documents into stored reports.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/tactimerge/internal/corpus"
	"github.com/ppiankov/tactimerge/internal/embed"
	"github.com/ppiankov/tactimerge/internal/extract"
	"github.com/ppiankov/tactimerge/internal/metrics"
	"github.com/ppiankov/tactimerge/internal/model"
)

// reportNamespace scopes content-derived report ids.
var reportNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("tactimerge.match_report"))

// Options controls a single ingestion.
type Options struct {
	// Update replaces an existing report with the same id instead of skipping it
	Update bool
}

// Result describes what an ingestion did.
type Result struct {
	ID      string            `json:"id"`
	Created bool              `json:"created"`
	Updated bool              `json:"updated,omitempty"`
	Report  model.MatchReport `json:"report"`
}

// Ingester validates, normalises, embeds and stores documents.
type Ingester struct {
	store    corpus.Store
	embedder embed.Embedder
	eras     model.EraTaxonomy
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an ingester. The embedder must be the one retrieval uses.
func New(store corpus.Store, embedder embed.Embedder, eras model.EraTaxonomy, m *metrics.Metrics, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	if len(eras) == 0 {
		eras = model.DefaultEras()
	}
	return &Ingester{
		store:    store,
		embedder: embedder,
		eras:     eras,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest stores doc under tags. Re-ingesting identical content is a no-op
// that reports Created=false.
func (i *Ingester) Ingest(ctx context.Context, doc RawDocument, tags Tags, opts Options) (Result, error) {
	report, err := Build(doc, tags, i.eras, i.now())
	if err != nil {
		i.metrics.Ingested(metrics.OutcomeFailed)
		return Result{}, err
	}

	if !opts.Update {
		existing, err := i.store.Get(ctx, report.ID)
		switch {
		case err == nil:
			i.metrics.Ingested(metrics.OutcomeExists)
			i.logger.Debug("report already ingested", "id", report.ID, "team", report.Team)
			return Result{ID: existing.ID, Report: existing}, nil
		case !errors.Is(err, model.ErrNotFound):
			i.metrics.Ingested(metrics.OutcomeFailed)
			return Result{}, fmt.Errorf("lookup %s: %w", report.ID, err)
		}
	}

	vector, err := i.embedder.Embed(ctx, EmbeddingText(report))
	if err != nil {
		i.metrics.Ingested(metrics.OutcomeFailed)
		return Result{}, fmt.Errorf("embed %s: %w", report.ID, err)
	}
	rec := model.EmbeddingRecord{ReportID: report.ID, Vector: vector}

	if opts.Update {
		if err := i.store.Upsert(ctx, report, rec); err != nil {
			i.metrics.Ingested(metrics.OutcomeFailed)
			return Result{}, fmt.Errorf("upsert %s: %w", report.ID, err)
		}
		i.metrics.Ingested(metrics.OutcomeUpdated)
		i.logger.Info("report updated", "id", report.ID, "team", report.Team, "era", report.Era)
		return Result{ID: report.ID, Created: true, Updated: true, Report: report}, nil
	}

	if err := i.store.Put(ctx, report, rec); err != nil {
		if errors.Is(err, model.ErrDuplicateID) {
			// A concurrent ingest of the same content won the race.
			i.metrics.Ingested(metrics.OutcomeExists)
			return Result{ID: report.ID, Report: report}, nil
		}
		i.metrics.Ingested(metrics.OutcomeFailed)
		return Result{}, fmt.Errorf("store %s: %w", report.ID, err)
	}
	i.metrics.Ingested(metrics.OutcomeCreated)
	i.logger.Info("report ingested", "id", report.ID, "team", report.Team, "era", report.Era, "source", report.Source)
	return Result{ID: report.ID, Created: true, Report: report}, nil
}

// EmbeddingText is the text a report is embedded from.
func EmbeddingText(r model.MatchReport) string {
	if r.Title == "" {
		return r.Narrative
	}
	return r.Title + ". " + r.Narrative
}

// ReportID derives the deterministic id of a report from team, era and normalised content.
func ReportID(team, era, narrative string) string {
	return uuid.NewSHA1(reportNamespace, []byte(team+"|"+era+"|"+narrative)).String()
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006/01/02", "02.01.2006", "2 January 2006", "January 2, 2006"}

// Build validates tags and turns doc into an immutable report. Every tag
// problem is reported as model.ErrInvalidTag.
func Build(doc RawDocument, tags Tags, eras model.EraTaxonomy, now time.Time) (model.MatchReport, error) {
	tags = lowerKeys(tags)

	team := model.NormalizeTeam(tags.Get(TagTeam))
	if team == "" {
		return model.MatchReport{}, invalid("team is required")
	}

	var playedOn *time.Time
	if raw := tags.Get(TagDate); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			return model.MatchReport{}, invalid("date %q is not a recognised date", raw)
		}
		playedOn = &d
	}

	era, err := resolveEra(tags.Get(TagEra), playedOn, eras)
	if err != nil {
		return model.MatchReport{}, err
	}

	venue := model.Venue(strings.ToLower(tags.Get(TagVenue)))
	switch venue {
	case model.VenueUnknown, model.VenueHome, model.VenueAway:
	default:
		return model.MatchReport{}, invalid("venue %q must be home or away", venue)
	}

	format := doc.Format
	if format == "" {
		format = extract.DetectFormat(doc.Body)
	}
	switch format {
	case extract.FormatText, extract.FormatHTML, extract.FormatMarkdown:
	default:
		return model.MatchReport{}, invalid("format %q must be text, html or markdown", format)
	}
	narrative, err := extract.Normalize(doc.Body, format)
	if err != nil {
		return model.MatchReport{}, fmt.Errorf("normalise body: %w", err)
	}
	if narrative == "" {
		return model.MatchReport{}, invalid("document body is empty")
	}

	stats, err := parseStats(tags)
	if err != nil {
		return model.MatchReport{}, err
	}
	fillStats(&stats, extract.Stats(narrative))

	// Undated reports stand for every season of their era.
	year, yearTo := era.From, era.To-1
	if playedOn != nil {
		year, yearTo = playedOn.Year(), 0
	}

	return model.MatchReport{
		ID:          ReportID(team, era.Label, narrative),
		Team:        team,
		Opponent:    model.NormalizeTeam(tags.Get(TagOpponent)),
		Competition: model.NormalizeTeam(tags.Get(TagCompetition)),
		Era:         era.Label,
		EraFrom:     era.From,
		EraTo:       era.To,
		Year:        year,
		YearTo:      yearTo,
		PlayedOn:    playedOn,
		Venue:       venue,
		Source:      strings.TrimSpace(doc.Source),
		SourceID:    strings.TrimSpace(doc.SourceID),
		Title:       extract.CollapseWhitespace(doc.Title),
		Narrative:   narrative,
		Stats:       stats,
		IngestedAt:  now.UTC(),
	}, nil
}

func resolveEra(label string, playedOn *time.Time, eras model.EraTaxonomy) (model.Era, error) {
	if label != "" {
		era, ok := eras.Lookup(label)
		if !ok {
			return model.Era{}, invalid("era %q is not in the taxonomy", label)
		}
		if playedOn != nil && !era.Contains(playedOn.Year()) {
			return model.Era{}, invalid("date %s falls outside era %s", playedOn.Format("2006-01-02"), era.Label)
		}
		return era, nil
	}
	if playedOn == nil {
		return model.Era{}, invalid("era or date is required")
	}
	era, ok := eras.ForYear(playedOn.Year())
	if !ok {
		return model.Era{}, invalid("no era covers %d", playedOn.Year())
	}
	return era, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// maxGoalsPerMatch bounds goal and xG tags to figures a real match can produce.
const maxGoalsPerMatch = 30

func parseStats(tags Tags) (model.MatchStats, error) {
	var s model.MatchStats
	var err error

	if s.Possession, err = floatTag(tags, TagPossession); err != nil {
		return s, err
	}
	if s.Possession != nil && (*s.Possession < 0 || *s.Possession > 100) {
		return s, invalid("possession %v must be between 0 and 100", *s.Possession)
	}
	if s.XG, err = floatTag(tags, TagXG); err != nil {
		return s, err
	}
	if s.XGAgainst, err = floatTag(tags, TagXGAgainst); err != nil {
		return s, err
	}
	for key, v := range map[string]*float64{TagXG: s.XG, TagXGAgainst: s.XGAgainst} {
		if v != nil && *v > maxGoalsPerMatch {
			return s, invalid("%s %v exceeds %d", key, *v, maxGoalsPerMatch)
		}
	}
	if s.Shots, err = intTag(tags, TagShots); err != nil {
		return s, err
	}
	if s.ShotsOnTarget, err = intTag(tags, TagShotsOnTarget); err != nil {
		return s, err
	}
	if s.GoalsFor, err = intTag(tags, TagGoalsFor); err != nil {
		return s, err
	}
	if s.GoalsAgainst, err = intTag(tags, TagGoalsAgainst); err != nil {
		return s, err
	}

	if raw := tags.Get(TagScore); raw != "" {
		gf, ga, ok := extract.ParseScore(raw)
		if !ok {
			return s, invalid("score %q must look like 2-1", raw)
		}
		if s.GoalsFor == nil {
			s.GoalsFor = model.Int(gf)
		}
		if s.GoalsAgainst == nil {
			s.GoalsAgainst = model.Int(ga)
		}
	}
	for key, v := range map[string]*int{TagGoalsFor: s.GoalsFor, TagGoalsAgainst: s.GoalsAgainst} {
		if v != nil && *v > maxGoalsPerMatch {
			return s, invalid("%s %d exceeds %d", key, *v, maxGoalsPerMatch)
		}
	}
	s.Formation = tags.Get(TagFormation)
	return s, nil
}

// fillStats copies figures found in the narrative where tags said nothing.
func fillStats(s *model.MatchStats, found model.MatchStats) {
	if s.Possession == nil {
		s.Possession = found.Possession
	}
	if s.Shots == nil {
		s.Shots = found.Shots
	}
	if s.ShotsOnTarget == nil {
		s.ShotsOnTarget = found.ShotsOnTarget
	}
	if s.XG == nil {
		s.XG = found.XG
	}
	if s.Formation == "" {
		s.Formation = found.Formation
	}
}

func floatTag(tags Tags, key string) (*float64, error) {
	raw := tags.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil, invalid("%s %q is not a non-negative number", key, raw)
	}
	return &v, nil
}

func intTag(tags Tags, key string) (*int, error) {
	raw := tags.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return nil, invalid("%s %q is not a non-negative integer", key, raw)
	}
	return &v, nil
}

func lowerKeys(tags Tags) Tags {
	out := make(Tags, len(tags))
	for k, v := range tags {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidTag, fmt.Sprintf(format, args...))
}
