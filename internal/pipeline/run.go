package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"adgenerator/internal/cache"
	"adgenerator/internal/domain"
	"adgenerator/internal/progress"
	"adgenerator/internal/providers/image"
	"adgenerator/internal/providers/prompt"
)

type run struct {
	driver *Driver
	taskID string
	brief  string
	logger zerolog.Logger

	mu   sync.Mutex
	step int
}

// advance bumps the shared step counter and reports it. Holding the lock
// across Update keeps the reported steps increasing.
func (r *run) advance(message string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step++
	u := progress.At(r.step, message)
	u.Data = data
	r.driver.tracker.Update(r.taskID, u)
}

func (r *run) processFile(ctx context.Context, upload domain.Upload) (FileResult, error) {
	out := FileResult{Filename: upload.Filename}

	mimeType := domain.DetectMIME(upload.Data, upload.MIME)
	if !domain.IsSupportedImageType(mimeType) {
		return out, fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, mimeType)
	}
	out.MIME = mimeType
	r.advance("Prepared "+upload.Filename, map[string]any{"filename": upload.Filename, "mime": mimeType, "bytes": upload.Size()})

	prompts, err := r.prompts(ctx, upload.Data, mimeType)
	if err != nil {
		return out, err
	}
	out.Prompts = prompts
	r.advance(fmt.Sprintf("Generated %d prompts for %s", len(prompts), upload.Filename), map[string]any{"filename": upload.Filename, "prompts": len(prompts)})

	out.Images = []string{}
	for i, p := range prompts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		urls, err := r.images(ctx, p)
		if err != nil {
			return out, err
		}
		out.Images = append(out.Images, urls...)
		r.advance(fmt.Sprintf("Generated image %d/%d for %s", i+1, len(prompts), upload.Filename), map[string]any{"filename": upload.Filename, "urls": urls})
	}
	return out, nil
}

func (r *run) prompts(ctx context.Context, data []byte, mimeType string) ([]string, error) {
	d := r.driver
	key := cache.ImageKey(data, r.brief)
	var cached []string
	if d.cache != nil && d.cache.Get(ctx, key, &cached) && len(cached) == d.promptsCount {
		r.logger.Debug().Str("key", key).Msg("prompt cache hit")
		return cached, nil
	}
	prompts, err := d.prompts.Generate(ctx, prompt.Request{Image: data, MIME: mimeType, Brief: r.brief, Count: d.promptsCount})
	if err != nil {
		return nil, fmt.Errorf("%w: %s prompts: %w", domain.ErrProviderFailure, d.prompts.Name(), err)
	}
	if d.cache != nil {
		d.cache.Set(ctx, key, prompts)
	}
	return prompts, nil
}

func (r *run) images(ctx context.Context, p string) ([]string, error) {
	d := r.driver
	key := cache.APIKey(d.images.Name(), map[string]string{"prompt": p})
	var cached []string
	if d.cache != nil && d.cache.Get(ctx, key, &cached) && len(cached) > 0 {
		r.logger.Debug().Str("key", key).Msg("image cache hit")
		return cached, nil
	}
	urls, err := d.images.Generate(ctx, image.Request{Prompt: p})
	if err != nil {
		return nil, fmt.Errorf("%w: %s image: %w", domain.ErrProviderFailure, d.images.Name(), err)
	}
	if d.cache != nil && len(urls) > 0 {
		d.cache.Set(ctx, key, urls)
	}
	return urls, nil
}
