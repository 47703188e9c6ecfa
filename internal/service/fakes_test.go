package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/client"
	"github.com/clipdigest/bots/internal/config"
	"github.com/clipdigest/bots/internal/model"
	"github.com/clipdigest/bots/internal/store"
)

type fakeCompleter struct {
	status      map[string]string
	results     map[string][]model.BatchResult
	submitted   []string
	statusCalls []string
	submitErr   error
	resultsErr  error
	chat        string
	chatErr     error
	nextID      int
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		status:  map[string]string{},
		results: map[string][]model.BatchResult{},
	}
}

func (f *fakeCompleter) SubmitBatch(ctx context.Context, artifactPath string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextID++
	f.submitted = append(f.submitted, artifactPath)
	return fmt.Sprintf("batch-%d", f.nextID), nil
}

func (f *fakeCompleter) BatchStatus(ctx context.Context, jobID string) (string, error) {
	f.statusCalls = append(f.statusCalls, jobID)
	return f.status[jobID], nil
}

func (f *fakeCompleter) BatchResults(ctx context.Context, jobID string) ([]model.BatchResult, error) {
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	return f.results[jobID], nil
}

func (f *fakeCompleter) ChatBatchLine(customID, system, user string, schemaName string, schema interface{}, maxTokens int) ([]byte, error) {
	return json.Marshal(map[string]string{"custom_id": customID, "method": "POST", "url": "/v1/chat/completions"})
}

func (f *fakeCompleter) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	return f.chat, f.chatErr
}

func (f *fakeCompleter) IsConfigured() bool { return true }

type fakeImager struct {
	configured bool
	batches    map[string]string
	state      map[string]string
	results    map[string][]model.BatchResult
	stateCalls []string
	deleted    []string
	created    int
	createErr  error
	findErr    error
}

func newFakeImager() *fakeImager {
	return &fakeImager{
		configured: true,
		batches:    map[string]string{},
		state:      map[string]string{},
		results:    map[string][]model.BatchResult{},
	}
}

func (f *fakeImager) CreateBatch(ctx context.Context, displayName string, requests []client.ImageRequest) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	op := fmt.Sprintf("batches/op-%d", f.created)
	f.batches[displayName] = op
	return op, nil
}

func (f *fakeImager) FindBatch(ctx context.Context, displayName string) (string, error) {
	if f.findErr != nil {
		return "", f.findErr
	}
	return f.batches[displayName], nil
}

func (f *fakeImager) BatchState(ctx context.Context, name string) (string, error) {
	f.stateCalls = append(f.stateCalls, name)
	return f.state[name], nil
}

func (f *fakeImager) BatchResults(ctx context.Context, name string) ([]model.BatchResult, error) {
	return f.results[name], nil
}

func (f *fakeImager) DeleteBatch(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeImager) IsConfigured() bool { return f.configured }

type fakeStorage struct {
	uploads []string
}

func (f *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	f.uploads = append(f.uploads, key)
	return "https://cdn.test/" + key, nil
}

func (f *fakeStorage) GetPublicURL(key string) string { return "https://cdn.test/" + key }

type fakeVideos struct {
	uploads     map[string][]model.Video
	transcripts map[string]string
}

func newFakeVideos() *fakeVideos {
	return &fakeVideos{
		uploads:     map[string][]model.Video{},
		transcripts: map[string]string{},
	}
}

func (f *fakeVideos) RecentUploads(ctx context.Context, channelID string, since time.Time) ([]model.Video, error) {
	return f.uploads[channelID], nil
}

func (f *fakeVideos) Transcript(ctx context.Context, videoID string) (string, error) {
	if t, ok := f.transcripts[videoID]; ok {
		return t, nil
	}
	return "", client.ErrNoTranscript
}

func (f *fakeVideos) IsConfigured() bool { return true }

type fakeNews struct {
	items      []model.NewsItem
	configured bool
}

func (f *fakeNews) Search(ctx context.Context, query string, since time.Time, limit int) ([]model.NewsItem, error) {
	return f.items, nil
}

func (f *fakeNews) IsConfigured() bool { return f.configured }

type fakePublisher struct {
	posts      []*model.Post
	snapshots  []*model.PortfolioSnapshot
	postErr    error
	snapErr    error
	configured bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{configured: true}
}

func (f *fakePublisher) CreatePost(ctx context.Context, post *model.Post) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, post)
	return nil
}

func (f *fakePublisher) CreateSnapshot(ctx context.Context, snapshot *model.PortfolioSnapshot) error {
	if f.snapErr != nil {
		return f.snapErr
	}
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

func (f *fakePublisher) IsConfigured() bool { return f.configured }

type fakePortfolioSource struct {
	holdings   []model.Holding
	err        error
	configured bool
}

func (f *fakePortfolioSource) FetchHoldings(ctx context.Context) ([]model.Holding, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.holdings, nil
}

func (f *fakePortfolioSource) IsConfigured() bool { return f.configured }

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Notify(ctx context.Context, content string) {
	f.messages = append(f.messages, content)
}

func (f *fakeNotifier) IsConfigured() bool { return true }

// digestFixture bundles a DigestService wired entirely to fakes plus a
// real JobStore on a temp dir.
type digestFixture struct {
	cfg       *config.DigestConfig
	store     *store.JobStore
	completer *fakeCompleter
	imager    *fakeImager
	storage   *fakeStorage
	videos    *fakeVideos
	news      *fakeNews
	publisher *fakePublisher
	notifier  *fakeNotifier
}

func newDigestFixture(t *testing.T) *digestFixture {
	t.Helper()
	dir := t.TempDir()
	return &digestFixture{
		cfg: &config.DigestConfig{
			Channels:      []string{"chan-1"},
			Languages:     []string{"de"},
			CachePath:     dir + "/batch-jobs.json",
			ArtifactDir:   dir + "/artifacts",
			ChunkSize:     2,
			MaxUnits:      20,
			LookbackHours: 24,
		},
		store:     store.NewJobStore(dir+"/batch-jobs.json", zerolog.Nop()),
		completer: newFakeCompleter(),
		imager:    newFakeImager(),
		storage:   &fakeStorage{},
		videos:    newFakeVideos(),
		news:      &fakeNews{},
		publisher: newFakePublisher(),
		notifier:  &fakeNotifier{},
	}
}

// service builds the DigestService from the fixture's current fakes.
// A nil fixture storage becomes a nil StorageClient, as in production
// when no object store is configured.
func (fx *digestFixture) service() *DigestService {
	var storage client.StorageClient
	if fx.storage != nil {
		storage = fx.storage
	}
	return NewDigestService(fx.cfg, fx.store, fx.completer, fx.imager, storage, fx.videos, fx.news, fx.publisher, fx.notifier, zerolog.Nop())
}
