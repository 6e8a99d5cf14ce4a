package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/voicelingua/voicelingua/internal/cache"
	"github.com/voicelingua/voicelingua/internal/codec"
	"github.com/voicelingua/voicelingua/internal/dispatch"
	"github.com/voicelingua/voicelingua/internal/domain"
	"github.com/voicelingua/voicelingua/internal/identifier"
	"github.com/voicelingua/voicelingua/internal/repository"
	"github.com/voicelingua/voicelingua/internal/service"
	"github.com/voicelingua/voicelingua/internal/verify"
)

// englishText carries enough indicator words to be detected as English.
const englishText = "the quick brown fox jumps over the lazy dog and this is fine"

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// fakeTranslator translates by prefixing the language tag; languages listed
// in fail return a permanent error.
type fakeTranslator struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls int
}

func (f *fakeTranslator) Translate(ctx context.Context, text, lang string) (*service.TranslationOutput, error) {
	f.mu.Lock()
	f.calls++
	failing := f.fail[lang]
	f.mu.Unlock()
	if failing {
		return nil, errors.New("model rejected input")
	}
	return &service.TranslationOutput{
		TranslatedText: fmt.Sprintf("[%s] %s", lang, text),
		Engine:         "fake-model",
	}, nil
}

// gateTranslator blocks every call until released, so tests can interleave
// a cancel with an in-flight sub-job.
type gateTranslator struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateTranslator) Translate(ctx context.Context, text, lang string) (*service.TranslationOutput, error) {
	g.started <- struct{}{}
	<-g.release
	return &service.TranslationOutput{TranslatedText: "[" + lang + "] " + text}, nil
}

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.failPut {
		return errors.New("storage unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return nil
}

func (s *memStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *memStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, ok := s.objects[key]
	s.mu.Unlock()
	return ok, nil
}

func (s *memStorage) GetURL(key string) string { return "mem://" + key }

// countingDispatcher counts packaging enqueues on top of the in-process pool.
type countingDispatcher struct {
	*dispatch.Inproc
	packaging atomic.Int32
}

func (d *countingDispatcher) EnqueuePackaging(ctx context.Context, task dispatch.PackagingTask) error {
	d.packaging.Add(1)
	return d.Inproc.EnqueuePackaging(ctx, task)
}

// flakyDispatcher simulates a dispatch substrate outage. Packaging enqueues
// fail while the outage counter is armed; translation enqueues fail for the
// listed languages.
type flakyDispatcher struct {
	*dispatch.Inproc
	packagingOutage atomic.Int32
	failLangs       map[string]bool
}

func (d *flakyDispatcher) EnqueuePackaging(ctx context.Context, task dispatch.PackagingTask) error {
	if d.packagingOutage.Load() > 0 {
		d.packagingOutage.Add(-1)
		return errors.New("dispatch substrate down")
	}
	return d.Inproc.EnqueuePackaging(ctx, task)
}

func (d *flakyDispatcher) EnqueueTranslation(ctx context.Context, task dispatch.TranslationTask) error {
	if d.failLangs[task.TargetLanguage] {
		return errors.New("dispatch substrate down")
	}
	return d.Inproc.EnqueueTranslation(ctx, task)
}

type fixture struct {
	coord      *Coordinator
	dispatcher *countingDispatcher
	store      *memStorage
	jobs       *repository.JobRepository
	events     *repository.JobEventRepository
}

func newFixture(t *testing.T, transcriber service.Transcriber, translator service.Translator) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.Migrate(db))

	jobs := repository.NewJobRepository(db)
	translations := repository.NewTranslationResultRepository(db)
	events := repository.NewJobEventRepository(db)
	store := newMemStorage()

	coord := New(jobs, translations, events, cache.NewNoop(), 0, store, transcriber, translator)
	d := &countingDispatcher{Inproc: dispatch.NewInproc(coord, 4, 0, 0, 0)}
	coord.SetDispatcher(d)

	return &fixture{coord: coord, dispatcher: d, store: store, jobs: jobs, events: events}
}

func (f *fixture) eventTypes(t *testing.T, jobID string) []string {
	t.Helper()
	events, err := f.events.ListByJob(context.Background(), jobID)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

func TestTextJobCompletesEndToEnd(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:       englishText,
		Languages:  []string{"fr", "de", "en"},
		ExternalID: "42",
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPackagingCompleted, got.Status)
	assert.Equal(t, 3, got.ExpectedSubjobs)
	assert.Equal(t, 3, got.FinishedSubjobs)
	assert.NotEmpty(t, got.ResultRef)
	assert.NotNil(t, got.CompletedAt)

	record, raw, err := f.coord.GetArtifact(ctx, job.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, job.ID[:8], record.JobID)
	assert.Equal(t, "42", record.ExternalID)
	require.Len(t, record.Translations, 3)
	assert.Equal(t, "[fr] "+englishText, record.Translations["fr"][domain.SourceText].TranslatedText)

	// English source into English target passes through with confidence 1.0.
	en := record.Translations["en"][domain.SourceText]
	assert.Equal(t, englishText, en.TranslatedText)
	require.NotNil(t, en.Confidence)
	assert.Equal(t, 1.0, *en.Confidence)

	tr, err := f.coord.GetTranslation(ctx, "fr", job.ID, domain.SourceText)
	require.NoError(t, err)
	assert.Equal(t, "fake-model", tr.Engine)
	assert.Equal(t, "42", tr.TextID)

	// Lookup by external identifier resolves to the same job.
	tr, err = f.coord.GetTranslation(ctx, "de", "42", domain.SourceText)
	require.NoError(t, err)
	assert.Equal(t, job.ID, tr.JobID)
}

func TestAudioJobWithReferenceFansOutBothSources(t *testing.T) {
	transcript := "the cat sat on the mat and the dog slept"
	reference := "the cat sat on the mat and the dog sleeps"
	f := newFixture(t, &fakeTranscriber{text: transcript}, &fakeTranslator{})
	ctx := context.Background()

	job, err := f.coord.SubmitAudioJob(ctx, SubmitAudioRequest{
		AudioPath:     "/tmp/recording_77.wav",
		Filename:      "recording_77.wav",
		Languages:     []string{"fr"},
		ReferenceText: reference,
	})
	require.NoError(t, err)
	assert.Equal(t, "77", job.ExternalID)
	f.dispatcher.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPackagingCompleted, got.Status)
	assert.Equal(t, 2, got.ExpectedSubjobs)
	assert.Equal(t, transcript, got.TranscriptText)
	require.NotNil(t, got.Accuracy)
	assert.InDelta(t, verify.Score(transcript, reference), *got.Accuracy, 1e-9)
	assert.NotNil(t, got.TranscriptionCompletedAt)
	assert.NotNil(t, got.TranslationCompletedAt)

	record, _, err := f.coord.GetArtifact(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, record.Translations["fr"], 2)
	assert.Contains(t, record.Translations["fr"], domain.SourceAudio)
	assert.Contains(t, record.Translations["fr"], domain.SourceText)
	require.NotNil(t, record.Accuracy)
}

func TestPartialFailureStillPackages(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{fail: map[string]bool{"de": true}})
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr", "de", "es"},
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPackagingCompleted, got.Status)
	assert.Equal(t, 3, got.FinishedSubjobs)

	record, _, err := f.coord.GetArtifact(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, record.Translations, 2)
	assert.NotContains(t, record.Translations, "de")
	assert.Contains(t, f.eventTypes(t, job.ID), domain.EventSubjobFailed)
}

func TestTotalFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{fail: map[string]bool{"fr": true, "de": true}})
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr", "de"},
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTranslationFailed, got.Status)
	assert.Equal(t, "all translation sub-jobs failed", got.ErrorMessage)

	_, _, err = f.coord.GetArtifact(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrArtifactNotReady)
}

func TestTranscriptionPermanentFailure(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{err: errors.New("unsupported audio format")}, &fakeTranslator{})
	ctx := context.Background()

	job, err := f.coord.SubmitAudioJob(ctx, SubmitAudioRequest{
		AudioPath: "/tmp/a.wav",
		Filename:  "a.wav",
		Languages: []string{"fr"},
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTranscriptionFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "unsupported audio format")
	assert.Zero(t, got.ExpectedSubjobs)
}

func TestBarrierOpensExactlyOnce(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr", "de", "es", "it", "ja", "ko", "zh", "pt"},
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPackagingCompleted, got.Status)
	assert.Equal(t, int32(1), f.dispatcher.packaging.Load())

	barriers := 0
	for _, e := range f.eventTypes(t, job.ID) {
		if e == domain.EventBarrierOpened {
			barriers++
		}
	}
	assert.Equal(t, 1, barriers)
}

func TestCancelDiscardsLateResults(t *testing.T) {
	gate := &gateTranslator{started: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, &fakeTranscriber{}, gate)
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr"},
	})
	require.NoError(t, err)

	<-gate.started
	require.NoError(t, f.coord.Cancel(ctx, job.ID))
	close(gate.release)
	f.dispatcher.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTranslationCancelled, got.Status)
	assert.Zero(t, got.FinishedSubjobs)

	_, err = f.coord.GetTranslation(ctx, "fr", job.ID, domain.SourceText)
	assert.ErrorIs(t, err, domain.ErrTranslationNotFound)
	assert.Contains(t, f.eventTypes(t, job.ID), domain.EventResultDiscarded)
}

func TestCancelRejectedOnTerminalJob(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr"},
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	err = f.coord.Cancel(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotCancellable)

	err = f.coord.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestPackagingFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	f.store.failPut = true
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr"},
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPackagingFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "storage unavailable")
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	ctx := context.Background()

	_, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{Text: "hi"})
	assert.Error(t, err)

	_, err = f.coord.SubmitTextJob(ctx, SubmitTextRequest{Languages: []string{"fr"}, Text: "   "})
	assert.Error(t, err)

	_, err = f.coord.SubmitAudioJob(ctx, SubmitAudioRequest{Languages: []string{"fr"}})
	assert.Error(t, err)
}

func TestPurgeRemovesJobAndArtifact(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr"},
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	exists, err := f.store.Exists(ctx, got.ResultRef)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, f.coord.PurgeJob(ctx, job.ID))

	exists, err = f.store.Exists(ctx, got.ResultRef)
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = f.coord.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = f.coord.GetTranslation(ctx, "fr", job.ID, domain.SourceText)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestPurgeRejectedWhileActive(t *testing.T) {
	gate := &gateTranslator{started: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, &fakeTranscriber{}, gate)
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr"},
	})
	require.NoError(t, err)

	<-gate.started
	assert.ErrorIs(t, f.coord.PurgeJob(ctx, job.ID), domain.ErrJobActive)
	close(gate.release)
	f.dispatcher.Wait()

	require.NoError(t, f.coord.PurgeJob(ctx, job.ID))
}

// A packaging enqueue that fails after the barrier winner's transition must
// not strand the job: the winning task retries and re-drives the handoff.
func TestPackagingEnqueueOutageRecoversOnRetry(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	d := &flakyDispatcher{Inproc: dispatch.NewInproc(f.coord, 4, 1, 0, 0)}
	d.packagingOutage.Store(1)
	f.coord.SetDispatcher(d)
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr", "de"},
	})
	require.NoError(t, err)
	d.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPackagingCompleted, got.Status)
	assert.NotEmpty(t, got.ResultRef)
	// The retried delivery re-drives the handoff only; it must not count
	// its sub-job a second time.
	assert.Equal(t, 2, got.FinishedSubjobs)
	assert.NotContains(t, f.eventTypes(t, job.ID), domain.EventSubjobFailed)
}

// With no retries left, the winning task is abandoned with the job already in
// packaging_pending. The abandonment must not advance the barrier counter,
// and a later redelivery of the same task completes the handoff.
func TestPackagingEnqueueOutageRecoversOnRedelivery(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	d := &flakyDispatcher{Inproc: dispatch.NewInproc(f.coord, 4, 0, 0, 0)}
	d.packagingOutage.Store(1)
	f.coord.SetDispatcher(d)
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr"},
	})
	require.NoError(t, err)
	d.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPackagingPending, got.Status)
	assert.Equal(t, 1, got.FinishedSubjobs)
	assert.NotContains(t, f.eventTypes(t, job.ID), domain.EventSubjobFailed)

	// Substrate back up; the broker redelivers the translation task.
	require.NoError(t, f.coord.HandleTranslation(ctx, dispatch.TranslationTask{
		JobID:          job.ID,
		Text:           englishText,
		TargetLanguage: "fr",
		SourceType:     domain.SourceText,
	}))
	d.Wait()

	got, err = f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPackagingCompleted, got.Status)
	assert.Equal(t, 1, got.FinishedSubjobs)
	assert.NotEmpty(t, got.ResultRef)
}

// A sub-job whose enqueue fails at fan-out counts as permanently failed so
// the barrier still opens with the fixed width.
func TestUndispatchableSubjobCountsAsFailed(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	d := &flakyDispatcher{
		Inproc:    dispatch.NewInproc(f.coord, 4, 0, 0, 0),
		failLangs: map[string]bool{"de": true},
	}
	f.coord.SetDispatcher(d)
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr", "de", "es"},
	})
	require.NoError(t, err)
	d.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPackagingCompleted, got.Status)
	assert.Equal(t, 3, got.ExpectedSubjobs)
	assert.Equal(t, 3, got.FinishedSubjobs)

	record, _, err := f.coord.GetArtifact(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, record.Translations, 2)
	assert.NotContains(t, record.Translations, "de")
	assert.Contains(t, f.eventTypes(t, job.ID), domain.EventSubjobFailed)
}

// A job without an external identifier labels each result with a generated
// job-scoped one.
func TestTranslationTextIDFallsBackToGenerated(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr"},
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	tr, err := f.coord.GetTranslation(ctx, "fr", job.ID, domain.SourceText)
	require.NoError(t, err)
	assert.Equal(t, identifier.Generate(job.ID, "fr", string(domain.SourceText)), tr.TextID)
}

func TestAllSubjobsUndispatchableFailsJob(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	d := &flakyDispatcher{
		Inproc:    dispatch.NewInproc(f.coord, 4, 0, 0, 0),
		failLangs: map[string]bool{"fr": true, "de": true},
	}
	f.coord.SetDispatcher(d)
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr", "de"},
	})
	require.NoError(t, err)
	d.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTranslationFailed, got.Status)
	assert.Equal(t, "all translation sub-jobs failed", got.ErrorMessage)
}

// Artifact bytes on disk must decode with the standalone codec too.
func TestArtifactRoundTripsThroughCodec(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, &fakeTranslator{})
	ctx := context.Background()

	job, err := f.coord.SubmitTextJob(ctx, SubmitTextRequest{
		Text:      englishText,
		Languages: []string{"fr"},
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	got, err := f.coord.GetJob(ctx, job.ID)
	require.NoError(t, err)
	raw := f.store.objects[got.ResultRef]
	require.NotEmpty(t, raw)

	record, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.JobTypeText, record.JobType)
	assert.NotNil(t, record.CompletedAt)
}
