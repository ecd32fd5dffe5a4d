// Package metadata synchronizes record properties with the metadata embedded
// in their binary payloads.
//
// The Service glues the rule engine to processors and storage: it plans a
// mutation, applies the sync lane inline, persists the document and queues
// the async lane for the Worker.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/solatis/metasync/internal/document"
	"github.com/solatis/metasync/internal/processor"
	"github.com/solatis/metasync/internal/rules"
	"github.com/solatis/metasync/internal/types"
)

// Service runs metadata synchronization for documents.
type Service struct {
	engine     *rules.Engine
	processors *processor.Registry
	store      *document.Store
	queue      *Queue
	logger     *slog.Logger
}

// NewService creates a service.
func NewService(engine *rules.Engine, processors *processor.Registry, store *document.Store, queue *Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:     engine,
		processors: processors,
		store:      store,
		queue:      queue,
		logger:     logger,
	}
}

// Engine returns the rule engine.
func (s *Service) Engine() *rules.Engine { return s.engine }

// Store returns the document store.
func (s *Service) Store() *document.Store { return s.store }

// Queue returns the deferred work queue.
func (s *Service) Queue() *Queue { return s.queue }

// SaveResult describes what a save did.
type SaveResult struct {
	Plan     *rules.Plan
	Outcomes []rules.Outcome
	WorkID   types.WorkID // empty when nothing was deferred
}

// ReadMetadata reads tags from blob. An empty tagKeys reads every tag.
func (s *Service) ReadMetadata(ctx context.Context, processorID string, blob *types.Blob, tagKeys []string, ignorePrefix bool) (map[string]any, error) {
	return s.processors.Read(ctx, processorID, blob, tagKeys, ignorePrefix)
}

// WriteMetadata writes values into blob and reports whether it changed.
func (s *Service) WriteMetadata(ctx context.Context, processorID string, blob *types.Blob, values map[string]any, ignorePrefix bool) (bool, error) {
	return s.processors.Write(ctx, processorID, blob, values, ignorePrefix)
}

// WriteMapping writes the properties bound by mappingID from doc into blob.
// An empty processorID uses the mapping's processor.
func (s *Service) WriteMapping(ctx context.Context, processorID string, blob *types.Blob, mappingID string, doc *document.Document) (bool, error) {
	mapping, ok := s.engine.Registry().Mapping(mappingID)
	if !ok {
		return false, fmt.Errorf("%w: %s", types.ErrMappingNotFound, mappingID)
	}
	if processorID == "" {
		processorID = mapping.ProcessorID
	}

	values := make(map[string]any, len(mapping.Metadata))
	for _, md := range mapping.Metadata {
		value, err := doc.Property(md.PropertyPath)
		if err != nil && !errors.Is(err, types.ErrPropertyNotFound) {
			return false, fmt.Errorf("read %s: %w", md.PropertyPath, err)
		}
		values[md.Name] = value
	}
	return s.processors.Write(ctx, processorID, blob, values, mapping.IgnorePrefix)
}

// ApplyMapping extracts the tags bound by mappingID from doc's blob into its
// properties, whatever the dirty state. The document is saved when it
// already exists. A document without the blob is left untouched.
func (s *Service) ApplyMapping(ctx context.Context, doc *document.Document, mappingID string) (rules.Outcome, error) {
	mapping, ok := s.engine.Registry().Mapping(mappingID)
	if !ok {
		return rules.Outcome{}, fmt.Errorf("%w: %s", types.ErrMappingNotFound, mappingID)
	}

	out, err := s.extract(ctx, mapping, doc)
	if err != nil {
		return out, err
	}
	if out.Persist {
		if err := s.store.Save(ctx, doc); err != nil {
			return out, err
		}
	}
	return out, nil
}

// ApplyRules extracts every mapping matched by doc, in both lanes, into its
// properties and saves the document once when it already exists.
func (s *Service) ApplyRules(ctx context.Context, doc *document.Document) ([]rules.Outcome, error) {
	plan, err := s.engine.Plan(doc)
	if err != nil {
		return nil, err
	}
	s.warnMissing(doc, plan)

	mappings := append(append([]types.MappingDescriptor(nil), plan.SyncMappings...), plan.AsyncMappings...)
	outcomes := make([]rules.Outcome, 0, len(mappings))
	persist := false
	for _, mapping := range mappings {
		out, err := s.extract(ctx, mapping, doc)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
		persist = persist || out.Persist
	}

	if persist {
		if err := s.store.Save(ctx, doc); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// extract forces a blob -> record propagation of mapping.
func (s *Service) extract(ctx context.Context, mapping types.MappingDescriptor, doc *document.Document) (rules.Outcome, error) {
	out := rules.Outcome{Direction: types.NoOp, Mapping: mapping}

	if _, err := doc.Binary(mapping.BlobPath); errors.Is(err, types.ErrPropertyNotFound) {
		return out, nil
	} else if err != nil {
		return out, fmt.Errorf("mapping %q: %w", mapping.ID, err)
	}
	if len(mapping.Metadata) == 0 {
		return out, nil
	}

	out.Direction = types.PropagateToRecord
	out.BlobDirty = doc.IsDirty(mapping.BlobPath)
	out.TagKeys = mapping.TagNames()
	out.Persist = doc.Exists()

	if err := s.apply(ctx, out, doc); err != nil {
		return out, err
	}
	return out, nil
}

// SaveDocument is the mutation hook. It plans doc against the current
// registry, applies the sync lane inline, saves doc and enqueues the async
// lane with the dirty state the save saw.
//
// Sync mappings run in resolver order against the dirty state at entry, so
// when two mappings write the same property the last one wins.
func (s *Service) SaveDocument(ctx context.Context, doc *document.Document) (*SaveResult, error) {
	plan, err := s.engine.Plan(doc)
	if err != nil {
		return nil, err
	}
	s.warnMissing(doc, plan)

	// Properties written by the sync lane become dirty. Both lanes work
	// from the paths that were dirty on entry.
	dirty := doc.DirtyPaths()

	result := &SaveResult{Plan: plan}
	record := freeze(doc, dirty)
	for _, mapping := range plan.SyncMappings {
		out, err := s.reconcileAndApply(ctx, mapping, record, doc)
		if err != nil {
			return result, err
		}
		result.Outcomes = append(result.Outcomes, out)
	}

	captured := captureDirty(dirty, plan.AsyncMappings)

	if err := s.store.Save(ctx, doc); err != nil {
		return result, err
	}

	work, ok := plan.Partition.Deferred()
	if !ok || len(captured) == 0 {
		return result, nil
	}

	result.WorkID, err = s.queue.Enqueue(ctx, DeferredPayload{
		Marker:     work.Marker,
		DocumentID: doc.ID(),
		MappingIDs: work.MappingIDs,
		DirtyPaths: captured,
		Generation: plan.Generation,
		Digest:     plan.Digest,
	})
	if err != nil {
		return result, err
	}

	s.logger.Debug("metadata: deferred work queued",
		slog.String("document_id", string(doc.ID())),
		slog.String("work_id", string(result.WorkID)),
		slog.Int("mappings", len(work.MappingIDs)))
	return result, nil
}

// ProcessDeferred replays a deferred payload: it reloads the document,
// reconciles the payload's mappings against the captured dirty paths and
// saves the document when a mapping changed it.
func (s *Service) ProcessDeferred(ctx context.Context, payload DeferredPayload) ([]rules.Outcome, error) {
	doc, err := s.store.Get(ctx, payload.DocumentID)
	if err != nil {
		return nil, err
	}

	reg := s.engine.Registry()
	if reg.Generation() != payload.Generation {
		s.logger.Debug("metadata: registry reloaded since work was queued",
			slog.String("document_id", string(payload.DocumentID)),
			slog.Uint64("queued_generation", payload.Generation),
			slog.Uint64("generation", reg.Generation()))
	}

	mappings, missing := rules.Resolve(payload.MappingIDs, reg)
	for _, m := range missing {
		s.logger.Warn("metadata: "+m.String(),
			slog.String("document_id", string(payload.DocumentID)),
			slog.String("lane", "async"))
	}

	record := freeze(doc, payload.DirtyPaths)
	outcomes := make([]rules.Outcome, 0, len(mappings))
	for _, mapping := range mappings {
		out, err := s.reconcileAndApply(ctx, mapping, record, doc)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}

	if len(doc.DirtyPaths()) > 0 {
		if err := s.store.Save(ctx, doc); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func (s *Service) reconcileAndApply(ctx context.Context, mapping types.MappingDescriptor, record rules.Record, doc *document.Document) (rules.Outcome, error) {
	out, err := s.engine.Reconcile(mapping, record)
	if err != nil {
		return out, err
	}
	if err := s.apply(ctx, out, doc); err != nil {
		return out, err
	}
	return out, nil
}

// apply carries out an outcome on doc without saving it.
func (s *Service) apply(ctx context.Context, out rules.Outcome, doc *document.Document) error {
	mapping := out.Mapping
	switch out.Direction {
	case types.PropagateToBinary:
		blob, err := doc.Binary(mapping.BlobPath)
		if err != nil {
			return fmt.Errorf("mapping %q: %w", mapping.ID, err)
		}
		blob = blob.Clone()
		modified, err := s.processors.Write(ctx, mapping.ProcessorID, blob, out.Values, mapping.IgnorePrefix)
		if err != nil {
			return fmt.Errorf("mapping %q: %w", mapping.ID, err)
		}
		if modified {
			if err := doc.SetBinary(mapping.BlobPath, blob); err != nil {
				return fmt.Errorf("mapping %q: %w", mapping.ID, err)
			}
		}

	case types.PropagateToRecord:
		blob, err := doc.Binary(mapping.BlobPath)
		if err != nil {
			return fmt.Errorf("mapping %q: %w", mapping.ID, err)
		}
		extracted, err := s.processors.Read(ctx, mapping.ProcessorID, blob, out.TagKeys, mapping.IgnorePrefix)
		if err != nil {
			return fmt.Errorf("mapping %q: %w", mapping.ID, err)
		}
		for path, value := range out.Assignments(extracted) {
			if err := doc.SetProperty(path, value); err != nil {
				return fmt.Errorf("mapping %q: %w", mapping.ID, err)
			}
		}
	}
	return nil
}

func (s *Service) warnMissing(doc *document.Document, plan *rules.Plan) {
	for _, m := range plan.Missing {
		s.logger.Warn("metadata: "+m.String(),
			slog.String("document_id", string(doc.ID())),
			slog.String("doc_type", doc.Type()))
	}
}

// captureDirty returns the paths in dirty that any of mappings reads.
func captureDirty(dirty []string, mappings []types.MappingDescriptor) []string {
	if len(mappings) == 0 {
		return nil
	}
	relevant := make(map[string]bool)
	for _, m := range mappings {
		relevant[m.BlobPath] = true
		for _, md := range m.Metadata {
			relevant[md.PropertyPath] = true
		}
	}

	var captured []string
	for _, path := range dirty {
		if relevant[path] {
			captured = append(captured, path)
		}
	}
	return captured
}
