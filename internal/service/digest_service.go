package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/clipdigest/bots/internal/client"
	"github.com/clipdigest/bots/internal/config"
	"github.com/clipdigest/bots/internal/model"
	"github.com/clipdigest/bots/internal/store"
)

const (
	// Posts are drafted in English; translations hang off that base.
	defaultPostLang = "en"

	generationMaxTokens  = 2048
	translationMaxTokens = 2048
	transcriptMaxRunes   = 12000
	newsPerUnit          = 3
)

const (
	generationSystemPrompt = "You are the editor of a video digest blog. Given a video transcript " +
		"and related news articles, write a concise blog post in English summarizing the video's " +
		"key points for readers who have not watched it. Respond with JSON matching the schema."

	translationSystemPrompt = "You are a professional translator for a blog. Translate the post " +
		"faithfully, keeping markdown structure and proper nouns intact. Respond with JSON " +
		"matching the schema."
)

var (
	draftSchema       = client.GenerateSchema[model.GeneratedPost]()
	translationSchema = client.GenerateSchema[model.TranslatedPost]()
)

// DigestService runs the daily digest pipeline: collect fresh uploads,
// submit the generation batch, and advance the job chain
// (generation, then thumbnails, then translations, then publish) as the
// poller reports
// completions. It satisfies ChainHandler.
type DigestService struct {
	cfg       *config.DigestConfig
	store     *store.JobStore
	completer client.BatchCompleter
	imager    client.ImageBatcher
	storage   client.StorageClient
	videos    client.VideoSource
	news      client.NewsSource
	publisher client.Publisher
	notifier  client.Notifier
	log       zerolog.Logger
}

// NewDigestService creates the digest pipeline service. storage may be nil
// when no object store is configured; thumbnails are skipped in that case.
func NewDigestService(
	cfg *config.DigestConfig,
	st *store.JobStore,
	completer client.BatchCompleter,
	imager client.ImageBatcher,
	storage client.StorageClient,
	videos client.VideoSource,
	news client.NewsSource,
	publisher client.Publisher,
	notifier client.Notifier,
	log zerolog.Logger,
) *DigestService {
	return &DigestService{
		cfg:       cfg,
		store:     st,
		completer: completer,
		imager:    imager,
		storage:   storage,
		videos:    videos,
		news:      news,
		publisher: publisher,
		notifier:  notifier,
		log:       log,
	}
}

// RunDaily executes one digest pass: list uploads from every followed
// channel inside the lookback window ending at asOf, enrich them with
// transcripts and related news, and submit one generation batch over the
// eligible units. A zero asOf means now; an earlier asOf backfills a
// missed day.
func (s *DigestService) RunDaily(ctx context.Context, asOf time.Time) error {
	if !s.completer.IsConfigured() {
		return errors.New("completion endpoint not configured")
	}
	if !s.videos.IsConfigured() {
		return errors.New("video source not configured")
	}
	if len(s.cfg.Channels) == 0 {
		return errors.New("no channels configured")
	}

	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	since := asOf.Add(-time.Duration(s.cfg.LookbackHours) * time.Hour)

	perChannel := make([][]model.Video, len(s.cfg.Channels))
	err := forEachChunk(ctx, len(s.cfg.Channels), s.cfg.ChunkSize, func(i int) {
		channelID := s.cfg.Channels[i]
		videos, err := s.videos.RecentUploads(ctx, channelID, since)
		if err != nil {
			s.log.Warn().Err(err).Str("channel_id", channelID).Msg("digest: failed to list uploads")
			return
		}
		perChannel[i] = videos
	})
	if err != nil {
		return err
	}

	// Uploads newer than asOf are left for the run that owns them.
	var videos []model.Video
	for _, vs := range perChannel {
		for _, v := range vs {
			if v.PublishedAt.After(asOf) {
				continue
			}
			videos = append(videos, v)
		}
	}
	if len(videos) == 0 {
		s.log.Info().Msg("digest: no new uploads in window")
		s.notifier.Notify(ctx, "No new videos to digest today.")
		return nil
	}
	if s.cfg.MaxUnits > 0 && len(videos) > s.cfg.MaxUnits {
		s.log.Warn().Int("found", len(videos)).Int("cap", s.cfg.MaxUnits).Msg("digest: capping units")
		videos = videos[:s.cfg.MaxUnits]
	}

	prepared := make([]*model.WorkUnit, len(videos))
	err = forEachChunk(ctx, len(videos), s.cfg.ChunkSize, func(i int) {
		v := videos[i]

		transcript, err := s.videos.Transcript(ctx, v.ID)
		if err != nil {
			if errors.Is(err, client.ErrNoTranscript) {
				s.log.Info().Str("video_id", v.ID).Msg("digest: no transcript, skipping video")
			} else {
				s.log.Warn().Err(err).Str("video_id", v.ID).Msg("digest: transcript fetch failed, skipping video")
			}
			return
		}

		var news []model.NewsItem
		if s.news.IsConfigured() {
			news, err = s.news.Search(ctx, v.Title, since, newsPerUnit)
			if err != nil {
				s.log.Warn().Err(err).Str("video_id", v.ID).Msg("digest: news enrichment failed, continuing without")
				news = nil
			}
		}

		prepared[i] = &model.WorkUnit{
			VideoID:     v.ID,
			ChannelID:   v.ChannelID,
			Title:       v.Title,
			PublishedAt: v.PublishedAt,
			Transcript:  truncateRunes(transcript, transcriptMaxRunes),
			News:        news,
		}
	})
	if err != nil {
		return err
	}

	var units []model.WorkUnit
	for _, u := range prepared {
		if u == nil {
			continue
		}
		u.Key = model.UnitKey(model.JobTypeGeneration, len(units))
		units = append(units, *u)
	}
	if len(units) == 0 {
		s.log.Info().Msg("digest: no videos with transcripts")
		s.notifier.Notify(ctx, fmt.Sprintf("Found %d new videos but none had a transcript; nothing to digest.", len(videos)))
		return nil
	}

	displayName := "digest-" + asOf.Format("2006-01-02")
	jobID, err := s.submitGeneration(ctx, units, displayName)
	if err != nil {
		s.notifier.Notify(ctx, fmt.Sprintf("❌ %s: batch submission failed: %v", displayName, err))
		return err
	}

	s.log.Info().Str("job_id", jobID).Int("units", len(units)).Msg("digest: generation batch submitted")
	s.notifier.Notify(ctx, fmt.Sprintf("🚀 %s: submitted %d videos for drafting (batch %s)", displayName, len(units), jobID))
	return nil
}

// submitGeneration renders one chat request per unit into a JSONL artifact,
// submits it, and persists the pending generation record.
func (s *DigestService) submitGeneration(ctx context.Context, units []model.WorkUnit, displayName string) (string, error) {
	lines := make([][]byte, len(units))
	for i, u := range units {
		line, err := s.completer.ChatBatchLine(u.Key, generationSystemPrompt, generationUserPrompt(u), "blog_post_draft", draftSchema, generationMaxTokens)
		if err != nil {
			return "", fmt.Errorf("failed to render request for unit %d: %w", i, err)
		}
		lines[i] = line
	}

	jobID, path, err := s.submitArtifact(ctx, lines, "digest")
	if err != nil {
		return "", err
	}

	rec := model.JobRecord{
		JobID:         jobID,
		JobType:       model.JobTypeGeneration,
		Status:        model.JobStatusPending,
		DisplayName:   displayName,
		CreatedAt:     time.Now().UTC(),
		Groups:        units,
		AuxFilePath:   path,
		ResultsByUnit: map[int]*model.PostDraft{},
	}
	if err := s.store.Append(rec); err != nil {
		// The batch already exists externally; re-submitting would duplicate
		// it, so surface the loss loudly instead.
		removeArtifact(s.log, path)
		s.notifier.Notify(ctx, fmt.Sprintf("⚠️ %s: batch %s submitted but its record could not be persisted: %v", displayName, jobID, err))
		return "", fmt.Errorf("batch %s submitted but record not persisted: %w", jobID, err)
	}
	return jobID, nil
}

// submitArtifact writes the JSONL lines to a fresh artifact file, validates
// it, and submits it to the completion endpoint. Every failure path removes
// the artifact; no orphaned files are left behind.
func (s *DigestService) submitArtifact(ctx context.Context, lines [][]byte, prefix string) (string, string, error) {
	if len(lines) == 0 {
		return "", "", errors.New("refusing to submit a batch with no work units")
	}
	if err := os.MkdirAll(s.cfg.ArtifactDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create artifact dir: %w", err)
	}

	path := filepath.Join(s.cfg.ArtifactDir, fmt.Sprintf("%s-%s.jsonl", prefix, uuid.NewString()))

	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		removeArtifact(s.log, path)
		return "", "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := client.ReadArtifactFirstLine(path); err != nil {
		removeArtifact(s.log, path)
		return "", "", fmt.Errorf("artifact validation failed: %w", err)
	}

	jobID, err := s.completer.SubmitBatch(ctx, path)
	if err != nil {
		removeArtifact(s.log, path)
		return "", "", fmt.Errorf("batch submission failed: %w", err)
	}
	return jobID, path, nil
}

// OnGenerationCompleted demultiplexes the generation batch's results into
// staged drafts and chains the next stage.
func (s *DigestService) OnGenerationCompleted(ctx context.Context, rec model.JobRecord) error {
	if s.dropIfChained(rec) {
		return nil
	}

	results, err := s.completer.BatchResults(ctx, rec.JobID)
	if err != nil {
		return fmt.Errorf("failed to fetch generation results: %w", err)
	}
	if len(results) > len(rec.Groups) {
		s.log.Warn().Int("results", len(results)).Int("units", len(rec.Groups)).Str("job_id", rec.JobID).Msg("digest: more results than units, surplus dropped")
	}

	drafts := map[int]*model.PostDraft{}
	for _, o := range Demultiplex(rec.Groups, results) {
		if !o.OK() {
			s.log.Warn().Int("unit", o.Index).Str("video_id", o.Unit.VideoID).Str("reason", o.Err).Msg("digest: unit produced no draft")
			continue
		}
		var gen model.GeneratedPost
		if err := json.Unmarshal(o.Body, &gen); err != nil {
			s.log.Warn().Err(err).Int("unit", o.Index).Msg("digest: draft is not valid JSON")
			continue
		}
		if gen.Title == "" || gen.Body == "" {
			s.log.Warn().Int("unit", o.Index).Msg("digest: draft missing title or body")
			continue
		}
		drafts[o.Index] = &model.PostDraft{
			VideoID:      o.Unit.VideoID,
			Title:        gen.Title,
			Summary:      gen.Summary,
			Body:         gen.Body,
			Tags:         gen.Tags,
			Translations: map[string]model.TranslatedPost{},
		}
	}

	if len(drafts) == 0 {
		s.notifier.Notify(ctx, fmt.Sprintf("⚠️ %s: no unit produced a usable draft, nothing to publish", rec.DisplayName))
		if err := s.store.Remove(rec.JobID); err != nil {
			return err
		}
		removeArtifact(s.log, rec.AuxFilePath)
		return nil
	}

	s.log.Info().Int("drafted", len(drafts)).Int("units", len(rec.Groups)).Str("job_id", rec.JobID).Msg("digest: drafts staged")
	return s.advanceChain(ctx, rec, drafts, false)
}

// OnThumbnailCompleted uploads the generated images and chains translation
func (s *DigestService) OnThumbnailCompleted(ctx context.Context, rec model.JobRecord) error {
	if s.dropIfChained(rec) {
		return nil
	}

	results, err := s.imager.BatchResults(ctx, rec.JobID)
	if err != nil {
		return fmt.Errorf("failed to fetch thumbnail results: %w", err)
	}

	drafts := rec.ResultsByUnit
	uploaded := 0
	for _, o := range Demultiplex(rec.Groups, results) {
		if !o.OK() {
			s.log.Warn().Int("unit", o.Index).Str("reason", o.Err).Msg("digest: thumbnail unit failed")
			continue
		}
		draft := drafts[o.Unit.SourceIndex]
		if draft == nil {
			s.log.Warn().Int("source_index", o.Unit.SourceIndex).Msg("digest: thumbnail for unknown draft")
			continue
		}

		var img client.ImageResult
		if err := json.Unmarshal(o.Body, &img); err != nil {
			s.log.Warn().Err(err).Int("unit", o.Index).Msg("digest: thumbnail payload is not valid JSON")
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			s.log.Warn().Err(err).Int("unit", o.Index).Msg("digest: thumbnail payload is not valid base64")
			continue
		}
		if s.storage == nil {
			continue
		}

		url, err := s.storage.Upload(ctx, thumbnailKey(draft.VideoID, img.MimeType), bytes.NewReader(raw), img.MimeType)
		if err != nil {
			s.log.Warn().Err(err).Str("video_id", draft.VideoID).Msg("digest: thumbnail upload failed, post ships without one")
			continue
		}
		draft.ThumbnailURL = url
		uploaded++
	}
	s.log.Info().Int("uploaded", uploaded).Int("units", len(rec.Groups)).Str("job_id", rec.JobID).Msg("digest: thumbnails processed")

	if err := s.advanceChain(ctx, rec, drafts, true); err != nil {
		return err
	}
	s.deleteImageBatch(ctx, rec.JobID)
	return nil
}

// OnThumbnailFailed continues the chain without thumbnails
func (s *DigestService) OnThumbnailFailed(ctx context.Context, rec model.JobRecord) error {
	if s.dropIfChained(rec) {
		return nil
	}
	s.notifier.Notify(ctx, fmt.Sprintf("⚠️ %s: thumbnails failed, posts will ship without images", rec.DisplayName))
	s.deleteImageBatch(ctx, rec.JobID)
	return s.advanceChain(ctx, rec, rec.ResultsByUnit, true)
}

// OnTranslationCompleted merges translations into the staged drafts and
// publishes everything.
func (s *DigestService) OnTranslationCompleted(ctx context.Context, rec model.JobRecord) error {
	results, err := s.completer.BatchResults(ctx, rec.JobID)
	if err != nil {
		return fmt.Errorf("failed to fetch translation results: %w", err)
	}

	for _, o := range Demultiplex(rec.Groups, results) {
		if !o.OK() {
			s.log.Warn().Int("unit", o.Index).Str("lang", o.Unit.Lang).Str("reason", o.Err).Msg("digest: translation unit failed")
			continue
		}
		var tr model.TranslatedPost
		if err := json.Unmarshal(o.Body, &tr); err != nil {
			s.log.Warn().Err(err).Int("unit", o.Index).Msg("digest: translation is not valid JSON")
			continue
		}
		if tr.Title == "" || tr.Body == "" {
			s.log.Warn().Int("unit", o.Index).Str("lang", o.Unit.Lang).Msg("digest: translation missing title or body")
			continue
		}
		draft := rec.ResultsByUnit[o.Unit.SourceIndex]
		if draft == nil {
			s.log.Warn().Int("source_index", o.Unit.SourceIndex).Msg("digest: translation for unknown draft")
			continue
		}
		draft.Translations[o.Unit.Lang] = tr
	}

	if err := s.publishDrafts(ctx, rec); err != nil {
		return err
	}
	if err := s.store.Remove(rec.JobID); err != nil {
		return err
	}
	removeArtifact(s.log, rec.AuxFilePath)
	return nil
}

// OnTranslationFailed publishes the staged originals untranslated. Record
// removal and artifact cleanup stay with the poller's failure path.
func (s *DigestService) OnTranslationFailed(ctx context.Context, rec model.JobRecord) error {
	s.notifier.Notify(ctx, fmt.Sprintf("⚠️ %s: translations failed, publishing originals only", rec.DisplayName))
	return s.publishDrafts(ctx, rec)
}

// advanceChain submits the next stage for the staged drafts: thumbnails
// unless already done, then translations, then publication.
func (s *DigestService) advanceChain(ctx context.Context, rec model.JobRecord, drafts map[int]*model.PostDraft, thumbsDone bool) error {
	if !thumbsDone && s.imager.IsConfigured() && s.storage != nil {
		return s.chainThumbnails(ctx, rec, drafts)
	}
	if langs := s.targetLanguages(); len(langs) > 0 {
		return s.chainTranslations(ctx, rec, drafts, langs)
	}

	final := rec
	final.ResultsByUnit = drafts
	if err := s.publishDrafts(ctx, final); err != nil {
		return err
	}
	if err := s.store.Remove(rec.JobID); err != nil {
		return err
	}
	removeArtifact(s.log, rec.AuxFilePath)
	return nil
}

// chainThumbnails submits one image request per drafted unit under a
// display name derived from the source job id. The deterministic name lets
// a re-run find and adopt a batch created by a crashed earlier attempt
// instead of creating a duplicate.
func (s *DigestService) chainThumbnails(ctx context.Context, rec model.JobRecord, drafts map[int]*model.PostDraft) error {
	name := thumbnailBatchName(rec.JobID)

	units := make([]model.WorkUnit, 0, len(drafts))
	requests := make([]client.ImageRequest, 0, len(drafts))
	for _, i := range sortedDraftIndices(drafts) {
		draft := drafts[i]
		key := model.UnitKey(model.JobTypeThumbnail, len(units))
		units = append(units, model.WorkUnit{
			Key:         key,
			VideoID:     draft.VideoID,
			Title:       draft.Title,
			SourceIndex: i,
		})
		requests = append(requests, client.ImageRequest{Key: key, Prompt: thumbnailPrompt(draft)})
	}

	opName, err := s.imager.FindBatch(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up thumbnail batch %s: %w", name, err)
	}
	if opName == "" {
		opName, err = s.imager.CreateBatch(ctx, name, requests)
		if err != nil {
			return fmt.Errorf("failed to create thumbnail batch %s: %w", name, err)
		}
	} else {
		s.log.Info().Str("batch", name).Str("operation", opName).Msg("digest: adopting existing thumbnail batch")
	}

	next := model.JobRecord{
		JobID:         opName,
		JobType:       model.JobTypeThumbnail,
		Status:        model.JobStatusPending,
		DisplayName:   name,
		CreatedAt:     time.Now().UTC(),
		Groups:        units,
		ResultsByUnit: drafts,
		SourceJobID:   rec.JobID,
		ParentJobID:   parentOf(rec),
	}
	if err := s.store.Replace(rec.JobID, next); err != nil {
		s.notifier.Notify(ctx, fmt.Sprintf("⚠️ thumbnail batch %s submitted but its record could not be persisted: %v", opName, err))
		return fmt.Errorf("thumbnail batch %s submitted but record not persisted: %w", opName, err)
	}
	removeArtifact(s.log, rec.AuxFilePath)
	s.log.Info().Str("job_id", opName).Int("units", len(units)).Msg("digest: thumbnail batch chained")
	return nil
}

// targetLanguages returns the configured translation targets minus the
// language posts are drafted in; translating into it would only produce a
// slug collision with the base post.
func (s *DigestService) targetLanguages() []string {
	langs := make([]string, 0, len(s.cfg.Languages))
	for _, lang := range s.cfg.Languages {
		if lang == defaultPostLang {
			continue
		}
		langs = append(langs, lang)
	}
	return langs
}

// chainTranslations submits one chat request per drafted unit and target
// language, carrying the staged drafts forward.
func (s *DigestService) chainTranslations(ctx context.Context, rec model.JobRecord, drafts map[int]*model.PostDraft, langs []string) error {
	var units []model.WorkUnit
	var lines [][]byte
	for _, i := range sortedDraftIndices(drafts) {
		draft := drafts[i]
		for _, lang := range langs {
			key := model.UnitKey(model.JobTypeTranslation, len(units))
			line, err := s.completer.ChatBatchLine(key, translationSystemPrompt, translationUserPrompt(draft, lang), "post_translation", translationSchema, translationMaxTokens)
			if err != nil {
				return fmt.Errorf("failed to render translation request: %w", err)
			}
			units = append(units, model.WorkUnit{
				Key:         key,
				VideoID:     draft.VideoID,
				Title:       draft.Title,
				SourceIndex: i,
				Lang:        lang,
			})
			lines = append(lines, line)
		}
	}

	jobID, path, err := s.submitArtifact(ctx, lines, "translate")
	if err != nil {
		return err
	}

	next := model.JobRecord{
		JobID:         jobID,
		JobType:       model.JobTypeTranslation,
		Status:        model.JobStatusPending,
		DisplayName:   "translate-" + batchNameSuffix(parentOf(rec)),
		CreatedAt:     time.Now().UTC(),
		Groups:        units,
		AuxFilePath:   path,
		ResultsByUnit: drafts,
		SourceJobID:   rec.JobID,
		ParentJobID:   parentOf(rec),
	}
	if err := s.store.Replace(rec.JobID, next); err != nil {
		removeArtifact(s.log, path)
		s.notifier.Notify(ctx, fmt.Sprintf("⚠️ translation batch %s submitted but its record could not be persisted: %v", jobID, err))
		return fmt.Errorf("translation batch %s submitted but record not persisted: %w", jobID, err)
	}
	removeArtifact(s.log, rec.AuxFilePath)
	s.log.Info().Str("job_id", jobID).Int("units", len(units)).Msg("digest: translation batch chained")
	return nil
}

// publishDrafts pushes every staged draft (and its translations) to the
// blog API and posts a summary notification. Individual publish failures
// are logged and skipped; only a total failure is surfaced for retry.
func (s *DigestService) publishDrafts(ctx context.Context, rec model.JobRecord) error {
	if !s.publisher.IsConfigured() {
		return errors.New("blog publisher not configured")
	}

	now := time.Now().UTC()
	published, translations, failed := 0, 0, 0

	for _, i := range sortedDraftIndices(rec.ResultsByUnit) {
		draft := rec.ResultsByUnit[i]
		if draft.Title == "" || draft.Body == "" {
			continue
		}

		post := &model.Post{
			Slug:          model.PostSlug(draft.VideoID, defaultPostLang),
			Lang:          defaultPostLang,
			Title:         draft.Title,
			Summary:       draft.Summary,
			Body:          draft.Body,
			Tags:          draft.Tags,
			ThumbnailURL:  draft.ThumbnailURL,
			SourceVideoID: draft.VideoID,
			SourceURL:     model.Video{ID: draft.VideoID}.URL(),
			PublishedAt:   now,
		}
		if err := s.publisher.CreatePost(ctx, post); err != nil {
			s.log.Error().Err(err).Str("slug", post.Slug).Msg("digest: publish failed")
			failed++
			continue
		}
		published++

		for _, lang := range sortedLangs(draft.Translations) {
			tr := draft.Translations[lang]
			trPost := &model.Post{
				Slug:          model.PostSlug(draft.VideoID, lang),
				Lang:          lang,
				Title:         tr.Title,
				Summary:       tr.Summary,
				Body:          tr.Body,
				Tags:          draft.Tags,
				ThumbnailURL:  draft.ThumbnailURL,
				SourceVideoID: draft.VideoID,
				SourceURL:     model.Video{ID: draft.VideoID}.URL(),
				PublishedAt:   now,
			}
			if err := s.publisher.CreatePost(ctx, trPost); err != nil {
				s.log.Error().Err(err).Str("slug", trPost.Slug).Msg("digest: translation publish failed")
				failed++
				continue
			}
			translations++
		}
	}

	if published == 0 && failed > 0 {
		return fmt.Errorf("all %d publish attempts failed", failed)
	}

	msg := fmt.Sprintf("✅ %s: published %d posts (%d translations)", rec.DisplayName, published, translations)
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	s.log.Info().Int("published", published).Int("translations", translations).Int("failed", failed).Msg("digest: publish pass done")
	s.notifier.Notify(ctx, msg)
	return nil
}

// dropIfChained is the idempotency guard: when a pending or processing job
// already points at rec as its source, the chain fired before and rec is a
// leftover (crash between chaining and removal). Drop it instead of
// chaining twice.
func (s *DigestService) dropIfChained(rec model.JobRecord) bool {
	for _, r := range s.store.Load() {
		if r.SourceJobID == rec.JobID && r.Status.InFlight() {
			s.log.Warn().Str("job_id", rec.JobID).Str("chained_job_id", r.JobID).Msg("digest: chained job already exists, dropping source record")
			if err := s.store.Remove(rec.JobID); err != nil {
				s.log.Error().Err(err).Str("job_id", rec.JobID).Msg("digest: failed to drop superseded record")
			}
			removeArtifact(s.log, rec.AuxFilePath)
			return true
		}
	}
	return false
}

func (s *DigestService) deleteImageBatch(ctx context.Context, name string) {
	if err := s.imager.DeleteBatch(ctx, name); err != nil {
		s.log.Warn().Err(err).Str("job_id", name).Msg("digest: failed to delete finished image batch")
	}
}

func parentOf(rec model.JobRecord) string {
	if rec.ParentJobID != "" {
		return rec.ParentJobID
	}
	return rec.JobID
}

func sortedDraftIndices(drafts map[int]*model.PostDraft) []int {
	idxs := make([]int, 0, len(drafts))
	for i, d := range drafts {
		if d != nil {
			idxs = append(idxs, i)
		}
	}
	sort.Ints(idxs)
	return idxs
}

func sortedLangs(translations map[string]model.TranslatedPost) []string {
	langs := make([]string, 0, len(translations))
	for lang := range translations {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

func generationUserPrompt(u model.WorkUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Video: %s\nChannel: %s\nPublished: %s\nURL: %s\n",
		u.Title, u.ChannelID, u.PublishedAt.Format(time.RFC3339), model.Video{ID: u.VideoID}.URL())
	if len(u.News) > 0 {
		b.WriteString("\nRelated news:\n")
		for _, n := range u.News {
			fmt.Fprintf(&b, "- %s (%s) %s\n", n.Title, n.Source, n.URL)
		}
	}
	fmt.Fprintf(&b, "\nTranscript:\n%s\n", u.Transcript)
	return b.String()
}

func translationUserPrompt(d *model.PostDraft, lang string) string {
	return fmt.Sprintf("Translate this blog post into %s.\n\nTitle: %s\n\nSummary: %s\n\nBody:\n%s",
		langDisplayName(lang), d.Title, d.Summary, d.Body)
}

func thumbnailPrompt(d *model.PostDraft) string {
	return fmt.Sprintf("Minimalist blog hero illustration for an article titled %q. Flat vector style, muted colors, no text in the image, 16:9 aspect ratio.", d.Title)
}

// langDisplayName renders a BCP 47 tag as an English language name for
// prompt text, e.g. "de" -> "German (de)".
func langDisplayName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Languages().Name(t); name != "" {
		return fmt.Sprintf("%s (%s)", name, tag)
	}
	return tag
}

func thumbnailBatchName(sourceJobID string) string {
	return "thumbs-" + batchNameSuffix(sourceJobID)
}

// batchNameSuffix reduces an external job id to a short, provider-safe
// display-name suffix. Deterministic: the same id always yields the same
// suffix, which is what makes chained batch names collision-checkable.
func batchNameSuffix(jobID string) string {
	cleaned := make([]rune, 0, len(jobID))
	for _, r := range strings.ToLower(jobID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cleaned = append(cleaned, r)
		}
	}
	if len(cleaned) == 0 {
		return "job"
	}
	if len(cleaned) > 16 {
		cleaned = cleaned[len(cleaned)-16:]
	}
	return string(cleaned)
}

func thumbnailKey(videoID, mimeType string) string {
	ext := "png"
	switch mimeType {
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}
	return fmt.Sprintf("thumbnails/%s.%s", videoID, ext)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
