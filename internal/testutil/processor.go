package testutil

import (
	"context"
	"sync"

	"github.com/solatis/metasync/internal/types"
)

// FakeProcessor is an in-memory processor. Tags plays the role of the
// metadata embedded in every blob it sees; Write merges into it and appends
// a byte to the blob so the content changes.
type FakeProcessor struct {
	mu       sync.Mutex
	Tags     map[string]any
	ReadErr  error
	WriteErr error
	Reads    [][]string
	Writes   []map[string]any

	// Hook, when set, runs before every Read and Write. An error it returns
	// is returned by the call.
	Hook func(ctx context.Context) error
}

// NewFakeProcessor returns a processor holding tags.
func NewFakeProcessor(tags map[string]any) *FakeProcessor {
	if tags == nil {
		tags = make(map[string]any)
	}
	return &FakeProcessor{Tags: tags}
}

// Read returns the requested tags, or all of them for an empty request.
func (f *FakeProcessor) Read(ctx context.Context, _ *types.Blob, tagKeys []string, _ bool) (map[string]any, error) {
	if err := f.runHook(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads = append(f.Reads, append([]string(nil), tagKeys...))
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}

	out := make(map[string]any)
	if len(tagKeys) == 0 {
		for k, v := range f.Tags {
			out[k] = v
		}
		return out, nil
	}
	for _, k := range tagKeys {
		if v, ok := f.Tags[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Write records values, merges them into Tags and marks the blob modified.
func (f *FakeProcessor) Write(ctx context.Context, blob *types.Blob, values map[string]any, _ bool) (bool, error) {
	if err := f.runHook(ctx); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteErr != nil {
		return false, f.WriteErr
	}
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
		if v == nil {
			delete(f.Tags, k)
			continue
		}
		f.Tags[k] = v
	}
	f.Writes = append(f.Writes, copied)
	blob.Data = append(blob.Data, '+')
	return true, nil
}

func (f *FakeProcessor) runHook(ctx context.Context) error {
	f.mu.Lock()
	hook := f.Hook
	f.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(ctx)
}

// WriteCount returns the number of Write calls.
func (f *FakeProcessor) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

// ReadCount returns the number of Read calls.
func (f *FakeProcessor) ReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Reads)
}
