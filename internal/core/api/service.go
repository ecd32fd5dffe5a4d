package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/metasync/internal/core/auth"
	"github.com/solatis/metasync/internal/document"
	"github.com/solatis/metasync/internal/metadata"
	"github.com/solatis/metasync/internal/rules"
	"github.com/solatis/metasync/internal/types"
)

// Service implements MetadataSyncServer.
// Thin orchestration layer delegating to the metadata service.
type Service struct {
	meta    *metadata.Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewService creates the gRPC service. A zero timeout leaves request
// deadlines to the client.
func NewService(meta *metadata.Service, timeout time.Duration, logger *slog.Logger) (*Service, error) {
	if meta == nil {
		return nil, fmt.Errorf("metadata service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{meta: meta, timeout: timeout, logger: logger}, nil
}

var _ MetadataSyncServer = (*Service)(nil)

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) logCall(ctx context.Context, method string, start time.Time, err error) {
	attrs := []any{
		slog.String("method", method),
		slog.Duration("elapsed", time.Since(start)),
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		attrs = append(attrs, slog.String("api_key", p.Name))
	}
	if err != nil {
		s.logger.Warn("api: call failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	s.logger.Debug("api: call", attrs...)
}

// loadDocument builds the document described by f: the stored document with
// f's changes applied when f has an id, a new document otherwise.
func (s *Service) loadDocument(ctx context.Context, f fields) (*document.Document, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: document is required", ErrInvalidArgument)
	}
	rawID, err := f.str("id")
	if err != nil {
		return nil, err
	}

	var doc *document.Document
	if rawID != "" {
		id, err := types.ParseDocumentID(rawID)
		if err != nil {
			return nil, fmt.Errorf("%w: document id: %v", ErrInvalidArgument, err)
		}
		if doc, err = s.meta.Store().Get(ctx, id); err != nil {
			return nil, err
		}
	} else {
		docType, err := f.required("type")
		if err != nil {
			return nil, err
		}
		facets, err := f.strings("facets")
		if err != nil {
			return nil, err
		}
		doc = document.New(docType, facets...)
	}

	if err := applyChanges(doc, f); err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveDocument creates or updates a document and runs its rules.
//
//	in:  {"document": document}
//	out: {"document": view, "plan": plan, "outcomes": [outcome], "deferredWorkId"?}
func (s *Service) SaveDocument(ctx context.Context, in *structpb.Struct) (_ *structpb.Struct, err error) {
	defer func(start time.Time) { s.logCall(ctx, MethodSaveDocument, start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	docFields, err := fields(in.AsMap()).object("document")
	if err != nil {
		return nil, toStatus(err)
	}
	doc, err := s.loadDocument(ctx, docFields)
	if err != nil {
		return nil, toStatus(err)
	}

	res, err := s.meta.SaveDocument(ctx, doc)
	if err != nil {
		return nil, toStatus(err)
	}

	out := map[string]any{
		"document": doc.View(),
		"plan":     planView(res.Plan),
		"outcomes": outcomesView(res.Outcomes),
	}
	if res.WorkID != "" {
		out["deferredWorkId"] = string(res.WorkID)
	}
	return reply(out)
}

// ApplyMapping extracts a mapping's tags into a stored document.
//
//	in:  {"documentId", "mappingId"}
//	out: {"document": view, "outcome": outcome}
func (s *Service) ApplyMapping(ctx context.Context, in *structpb.Struct) (_ *structpb.Struct, err error) {
	defer func(start time.Time) { s.logCall(ctx, MethodApplyMapping, start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	f := fields(in.AsMap())
	rawID, err := f.required("documentId")
	if err != nil {
		return nil, toStatus(err)
	}
	mappingID, err := f.required("mappingId")
	if err != nil {
		return nil, toStatus(err)
	}
	id, err := types.ParseDocumentID(rawID)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: document id: %v", ErrInvalidArgument, err))
	}

	doc, err := s.meta.Store().Get(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	outcome, err := s.meta.ApplyMapping(ctx, doc, mappingID)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{
		"document": doc.View(),
		"outcome":  outcomeView(outcome),
	})
}

// ReadMetadata reads tags from a blob.
//
//	in:  {"processor"?, "blob": blob, "tags"?: [..], "ignorePrefix"?}
//	out: {"tags": {tag: value}}
func (s *Service) ReadMetadata(ctx context.Context, in *structpb.Struct) (_ *structpb.Struct, err error) {
	defer func(start time.Time) { s.logCall(ctx, MethodReadMetadata, start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	f := fields(in.AsMap())
	processorID, blob, ignorePrefix, err := blobRequest(f)
	if err != nil {
		return nil, toStatus(err)
	}
	tagKeys, err := f.strings("tags")
	if err != nil {
		return nil, toStatus(err)
	}

	tags, err := s.meta.ReadMetadata(ctx, processorID, blob, tagKeys, ignorePrefix)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"tags": wireValue(tags)})
}

// WriteMetadata writes tags into a blob and returns the new content.
//
//	in:  {"processor"?, "blob": blob, "values": {tag: value}, "ignorePrefix"?}
//	out: {"modified": bool, "blob": blob}
func (s *Service) WriteMetadata(ctx context.Context, in *structpb.Struct) (_ *structpb.Struct, err error) {
	defer func(start time.Time) { s.logCall(ctx, MethodWriteMetadata, start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	f := fields(in.AsMap())
	processorID, blob, ignorePrefix, err := blobRequest(f)
	if err != nil {
		return nil, toStatus(err)
	}
	values, err := f.object("values")
	if err != nil {
		return nil, toStatus(err)
	}

	modified, err := s.meta.WriteMetadata(ctx, processorID, blob, values, ignorePrefix)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{
		"modified": modified,
		"blob":     encodeBlob(blob),
	})
}

// Plan reports which rules and mappings a document would trigger, without
// saving anything.
//
//	in:  {"document": document}
//	out: plan
func (s *Service) Plan(ctx context.Context, in *structpb.Struct) (_ *structpb.Struct, err error) {
	defer func(start time.Time) { s.logCall(ctx, MethodPlan, start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	docFields, err := fields(in.AsMap()).object("document")
	if err != nil {
		return nil, toStatus(err)
	}
	doc, err := s.loadDocument(ctx, docFields)
	if err != nil {
		return nil, toStatus(err)
	}

	plan, err := s.meta.Engine().Plan(doc)
	if err != nil {
		return nil, toStatus(err)
	}
	outcomes, err := s.previewOutcomes(plan, doc)
	if err != nil {
		return nil, toStatus(err)
	}
	view := planView(plan)
	view["outcomes"] = outcomes
	return reply(view)
}

// previewOutcomes reconciles the sync lane without applying anything. A
// mapping that cannot be reconciled fails the preview.
func (s *Service) previewOutcomes(plan *rules.Plan, doc *document.Document) ([]any, error) {
	out := make([]any, 0, len(plan.SyncMappings))
	for _, m := range plan.SyncMappings {
		outcome, err := s.meta.Engine().Reconcile(m, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, outcomeView(outcome))
	}
	return out, nil
}

func blobRequest(f fields) (processorID string, blob *types.Blob, ignorePrefix bool, err error) {
	if processorID, err = f.str("processor"); err != nil {
		return "", nil, false, err
	}
	blobFields, err := f.object("blob")
	if err != nil {
		return "", nil, false, err
	}
	if blobFields == nil {
		return "", nil, false, fmt.Errorf("%w: blob is required", ErrInvalidArgument)
	}
	if blob, err = decodeBlob(blobFields); err != nil {
		return "", nil, false, err
	}
	if ignorePrefix, err = f.boolean("ignorePrefix"); err != nil {
		return "", nil, false, err
	}
	return processorID, blob, ignorePrefix, nil
}
