// Package pipeline runs one topic through the full generation chain: source
// material, script, image, voiceover, video compile, upload, publish. Stages
// run strictly in order and fail fast; a failed run cleans up every local
// asset it created before propagating the error. Remote side effects are
// never retracted.
package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ostanin/reelpost/internal/analytics"
	"github.com/ostanin/reelpost/internal/docstore"
	"github.com/ostanin/reelpost/internal/eventlog"
	"github.com/ostanin/reelpost/internal/hub"
	"github.com/ostanin/reelpost/internal/providers"
	"github.com/ostanin/reelpost/internal/settings"
)

// maxHistory caps the persisted post history length.
const maxHistory = 500

// PostRecord is one completed run as stored in the post-history document,
// newest first.
type PostRecord struct {
	ID           string           `json:"id"`
	Topic        string           `json:"topic"`
	Script       providers.Script `json:"script"`
	Status       string           `json:"status"`
	VideoURL     string           `json:"videoUrl,omitempty"`
	RemotePostID string           `json:"remotePostId,omitempty"`
	Error        string           `json:"error,omitempty"`
	GenerationMs int64            `json:"generationMs"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// Integrations is the external provider surface the pipeline consumes.
type Integrations interface {
	FetchMaterial(ctx context.Context, topic string) (providers.Material, error)
	GenerateScript(ctx context.Context, material providers.Material) (providers.Script, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
	SynthesizeVoice(ctx context.Context, text string) (string, error)
	UploadVideo(ctx context.Context, videoPath string) (string, error)
	Publish(ctx context.Context, pub providers.PublishRequest) (string, error)
}

// Encoder compiles a still image and an audio track into a video file.
type Encoder interface {
	Compile(ctx context.Context, imagePath, audioPath, outPath string) error
}

// Runner executes generation runs.
type Runner struct {
	store        *docstore.Store
	integrations Integrations
	encoder      Encoder
	events       *eventlog.Logger
	hub          *hub.Hub
	metrics      *analytics.Tracker
	assetsDir    string
	now          func() time.Time
	logger       *slog.Logger
}

// NewRunner creates a Runner wired to its collaborators.
func NewRunner(
	store *docstore.Store,
	integrations Integrations,
	encoder Encoder,
	events *eventlog.Logger,
	h *hub.Hub,
	metrics *analytics.Tracker,
) *Runner {
	return &Runner{
		store:        store,
		integrations: integrations,
		encoder:      encoder,
		events:       events,
		hub:          h,
		metrics:      metrics,
		assetsDir:    store.AssetsDir(),
		now:          time.Now,
		logger:       slog.Default(),
	}
}

// Run executes one end-to-end generation for topic, publishing with the given
// channel credentials. On success the published PostRecord is persisted to
// the history document and returned. On failure every local asset created by
// this run is deleted before the error is returned; an uploaded-but-
// unpublished video is deliberately left on the host.
func (r *Runner) Run(ctx context.Context, topic string, channel settings.Channel) (PostRecord, error) {
	start := r.now()
	r.hub.Emit(hub.GenerationStarted, map[string]any{"topic": topic})
	if err := r.events.Append("info", "pipeline", "generation-started", map[string]any{"topic": topic}); err != nil {
		r.logger.Error("appending event log", "error", err)
	}

	id := uuid.New().String()
	var assets []string

	fail := func(err error) (PostRecord, error) {
		r.removeAssets(assets)
		if mErr := r.metrics.RecordRun(false, r.now().Sub(start)); mErr != nil {
			r.logger.Error("recording run metrics", "error", mErr)
		}
		if lErr := r.events.Append("error", "pipeline", err.Error(), map[string]any{"topic": topic}); lErr != nil {
			r.logger.Error("appending event log", "error", lErr)
		}
		r.hub.Emit(hub.ErrorOccurred, map[string]any{"topic": topic, "error": err.Error()})
		return PostRecord{}, err
	}

	material, err := r.integrations.FetchMaterial(ctx, topic)
	if err != nil {
		return fail(err)
	}

	script, err := r.integrations.GenerateScript(ctx, material)
	if err != nil {
		return fail(err)
	}

	imagePath, err := r.integrations.GenerateImage(ctx, script.Title+". cyber executive style 9:16")
	if err != nil {
		return fail(err)
	}
	assets = append(assets, imagePath)

	audioPath, err := r.integrations.SynthesizeVoice(ctx, script.Narration())
	if err != nil {
		return fail(err)
	}
	assets = append(assets, audioPath)

	videoPath := filepath.Join(r.assetsDir, id+".mp4")
	assets = append(assets, videoPath)
	if err := r.encoder.Compile(ctx, imagePath, audioPath, videoPath); err != nil {
		return fail(err)
	}

	videoURL, err := r.integrations.UploadVideo(ctx, videoPath)
	if err != nil {
		return fail(err)
	}

	postID, err := r.integrations.Publish(ctx, providers.PublishRequest{
		VideoURL:     videoURL,
		Caption:      script.Caption(),
		FirstComment: script.FirstComment,
		PageID:       channel.PageID,
		AccessToken:  channel.Token(),
	})
	if err != nil {
		return fail(err)
	}

	r.removeAssets(assets)

	now := r.now().UTC()
	record := PostRecord{
		ID:           id,
		Topic:        topic,
		Script:       script,
		Status:       "published",
		VideoURL:     videoURL,
		RemotePostID: postID,
		GenerationMs: r.now().Sub(start).Milliseconds(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.appendHistory(record); err != nil {
		return fail(err)
	}

	r.hub.Emit(hub.PostPublished, record)
	if err := r.events.Append("info", "pipeline", "generation-published", map[string]any{"id": id, "topic": topic}); err != nil {
		r.logger.Error("appending event log", "error", err)
	}
	if err := r.metrics.RecordRun(true, time.Duration(record.GenerationMs)*time.Millisecond); err != nil {
		r.logger.Error("recording run metrics", "error", err)
	}
	return record, nil
}

func (r *Runner) appendHistory(record PostRecord) error {
	path := r.store.Paths().Posts
	history := docstore.Read(r.store, path, []PostRecord{})
	history = append([]PostRecord{record}, history...)
	if len(history) > maxHistory {
		history = history[:maxHistory]
	}
	return docstore.Write(r.store, path, history)
}

// History returns up to limit records from the post history, newest first.
func (r *Runner) History(limit int) []PostRecord {
	history := docstore.Read(r.store, r.store.Paths().Posts, []PostRecord{})
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history
}

// removeAssets deletes the run's local files in parallel. Missing files are
// fine; anything else is logged and otherwise ignored.
func (r *Runner) removeAssets(paths []string) {
	g := new(errgroup.Group)
	for _, p := range paths {
		g.Go(func() error {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Warn("removing run assets", "error", err)
	}
}
