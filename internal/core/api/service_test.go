package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/solatis/metasync/internal/core/auth"
	"github.com/solatis/metasync/internal/document"
	"github.com/solatis/metasync/internal/filter"
	msmeta "github.com/solatis/metasync/internal/metadata"
	"github.com/solatis/metasync/internal/processor"
	"github.com/solatis/metasync/internal/rules"
	"github.com/solatis/metasync/internal/testutil"
	"github.com/solatis/metasync/internal/types"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

type harness struct {
	client *Client
	store  *document.Store
	proc   *testutil.FakeProcessor
	key    string
}

func (h *harness) call(t *testing.T, method string, in map[string]any) (map[string]any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", h.key)
	return h.client.CallMap(ctx, method, in)
}

func newHarness(t *testing.T, ruleSet []types.RuleDescriptor) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	filters := filter.NewSet()
	require.NoError(t, filters.Register("isPicture", filter.FilterFunc(func(view map[string]any) (bool, error) {
		return view["type"] == "Picture", nil
	})))
	mapping := types.MappingDescriptor{
		ID:       "M1",
		BlobPath: "file:content",
		Metadata: []types.MetadataDescriptor{
			{Name: "EXIF:Model", PropertyPath: "imd:model"},
			{Name: "XMP:Title", PropertyPath: "dc:title"},
		},
	}
	reg, err := rules.NewRegistry(ruleSet, []types.MappingDescriptor{mapping})
	require.NoError(t, err)
	engine := rules.NewEngine(rules.NewHolder(reg.WithFilters(filters)))

	proc := testutil.NewFakeProcessor(map[string]any{"EXIF:Model": "Nexus", "XMP:Title": "Sunset"})
	processors := processor.NewRegistry("")
	require.NoError(t, processors.Register(processor.DefaultID, proc))

	queries := testutil.TestQueries(t)
	store, err := document.NewStore(queries)
	require.NoError(t, err)
	queue, err := msmeta.NewQueue(queries)
	require.NoError(t, err)

	svc, err := NewService(msmeta.NewService(engine, processors, store, queue, logger), 5*time.Second, logger)
	require.NoError(t, err)

	secrets := map[string][]byte{testSecretID: []byte(strings.Repeat("s", 32))}
	issued, err := auth.CreateAPIKey(context.Background(), queries, secrets, testSecretID, "test")
	require.NoError(t, err)
	authenticator := auth.NewAuthenticator(secrets, queries, logger)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(authenticator.UnaryInterceptor()))
	RegisterMetadataSyncServer(server, svc)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &harness{client: NewClient(conn), store: store, proc: proc, key: issued.Key}
}

func pictureRule(async bool) []types.RuleDescriptor {
	return []types.RuleDescriptor{{ID: "R1", Enabled: true, Async: async, FilterIDs: []string{"isPicture"}, MappingIDs: []string{"M1"}}}
}

func wireBlob(data string) map[string]any {
	return map[string]any{
		"filename": "china.jpg",
		"mimeType": "image/jpeg",
		"data":     base64.StdEncoding.EncodeToString([]byte(data)),
	}
}

func newPicture() map[string]any {
	return map[string]any{
		"document": map[string]any{
			"type":  "Picture",
			"blobs": map[string]any{"file:content": wireBlob("jpeg")},
		},
	}
}

func properties(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	doc, ok := out["document"].(map[string]any)
	require.True(t, ok, "reply has no document")
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok, "document has no properties")
	return props
}

func TestSaveDocument_CreateExtractsMetadata(t *testing.T) {
	h := newHarness(t, pictureRule(false))

	out, err := h.call(t, MethodSaveDocument, newPicture())
	require.NoError(t, err)

	props := properties(t, out)
	assert.Equal(t, "Nexus", props["imd:model"])
	assert.Equal(t, "Sunset", props["dc:title"])
	assert.NotContains(t, out, "deferredWorkId")

	outcomes := out["outcomes"].([]any)
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.PropagateToRecord.String(), outcomes[0].(map[string]any)["direction"])

	plan := out["plan"].(map[string]any)
	assert.Equal(t, []any{"R1"}, plan["matched"])
	assert.Equal(t, []any{"M1"}, plan["sync"])
}

func TestSaveDocument_UpdateWritesBlob(t *testing.T) {
	h := newHarness(t, pictureRule(false))

	out, err := h.call(t, MethodSaveDocument, newPicture())
	require.NoError(t, err)
	id := out["document"].(map[string]any)["id"].(string)

	out, err = h.call(t, MethodSaveDocument, map[string]any{
		"document": map[string]any{
			"id":         id,
			"properties": map[string]any{"dc:title": "Harbour"},
		},
	})
	require.NoError(t, err)

	outcomes := out["outcomes"].([]any)
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.PropagateToBinary.String(), outcomes[0].(map[string]any)["direction"])

	loaded, err := h.store.Get(context.Background(), types.DocumentID(id))
	require.NoError(t, err)
	blob, err := loaded.Binary("file:content")
	require.NoError(t, err)
	assert.Equal(t, "jpeg+", string(blob.Data))
}

func TestSaveDocument_AsyncRuleQueuesWork(t *testing.T) {
	h := newHarness(t, pictureRule(true))

	out, err := h.call(t, MethodSaveDocument, newPicture())
	require.NoError(t, err)
	assert.NotEmpty(t, out["deferredWorkId"])
	assert.Empty(t, out["outcomes"])
	assert.NotContains(t, properties(t, out), "imd:model")
}

func TestApplyMapping(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.call(t, MethodSaveDocument, newPicture())
	require.NoError(t, err)
	id := out["document"].(map[string]any)["id"].(string)
	assert.NotContains(t, properties(t, out), "imd:model")

	out, err = h.call(t, MethodApplyMapping, map[string]any{"documentId": id, "mappingId": "M1"})
	require.NoError(t, err)
	assert.Equal(t, "Nexus", properties(t, out)["imd:model"])
	assert.Equal(t, types.PropagateToRecord.String(), out["outcome"].(map[string]any)["direction"])

	_, err = h.call(t, MethodApplyMapping, map[string]any{"documentId": id, "mappingId": "M9"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.call(t, MethodApplyMapping, map[string]any{"documentId": string(types.NewDocumentID()), "mappingId": "M1"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestReadWriteMetadata(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.call(t, MethodReadMetadata, map[string]any{
		"blob": wireBlob("jpeg"),
		"tags": []any{"EXIF:Model"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"EXIF:Model": "Nexus"}, out["tags"])

	out, err = h.call(t, MethodWriteMetadata, map[string]any{
		"blob":   wireBlob("jpeg"),
		"values": map[string]any{"XMP:Title": "Harbour"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out["modified"])
	blob := out["blob"].(map[string]any)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg+")), blob["data"])
	assert.Equal(t, "Harbour", h.proc.Tags["XMP:Title"])

	_, err = h.call(t, MethodReadMetadata, map[string]any{"processor": "tika", "blob": wireBlob("jpeg")})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestPlan_DoesNotSave(t *testing.T) {
	h := newHarness(t, pictureRule(false))

	out, err := h.call(t, MethodPlan, newPicture())
	require.NoError(t, err)
	assert.Equal(t, []any{"R1"}, out["matched"])
	assert.Equal(t, []any{"M1"}, out["sync"])
	assert.Empty(t, out["async"])

	outcomes := out["outcomes"].([]any)
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.PropagateToRecord.String(), outcomes[0].(map[string]any)["direction"])
	assert.Zero(t, h.proc.ReadCount())
}

func TestPlan_MappingOnScalarPathIsRejected(t *testing.T) {
	h := newHarness(t, pictureRule(false))

	_, err := h.call(t, MethodPlan, map[string]any{
		"document": map[string]any{
			"type":       "Picture",
			"properties": map[string]any{"file:content": "not a blob"},
		},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err), err)
}

func TestReadMetadata_LargeNumbers(t *testing.T) {
	h := newHarness(t, nil)
	h.proc.Tags["EXIF:ISO"] = json.Number("200")
	h.proc.Tags["MakerNotes:SerialNumber"] = json.Number("12345678901234567890")

	out, err := h.call(t, MethodReadMetadata, map[string]any{
		"blob": wireBlob("jpeg"),
		"tags": []any{"EXIF:ISO", "MakerNotes:SerialNumber"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"EXIF:ISO":                float64(200),
		"MakerNotes:SerialNumber": "12345678901234567890",
	}, out["tags"])
}

func TestInvalidRequests(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name   string
		method string
		in     map[string]any
	}{
		{"missing document", MethodSaveDocument, map[string]any{}},
		{"missing type", MethodSaveDocument, map[string]any{"document": map[string]any{}}},
		{"bad facets", MethodSaveDocument, map[string]any{"document": map[string]any{"type": "Picture", "facets": "x"}}},
		{"bad blob data", MethodSaveDocument, map[string]any{"document": map[string]any{
			"type":  "Picture",
			"blobs": map[string]any{"file:content": map[string]any{"filename": "a", "data": "%%%"}},
		}}},
		{"bad document id", MethodApplyMapping, map[string]any{"documentId": "nope", "mappingId": "M1"}},
		{"missing mapping id", MethodApplyMapping, map[string]any{"documentId": string(types.NewDocumentID())}},
		{"missing blob", MethodReadMetadata, map[string]any{}},
		{"bad tags", MethodReadMetadata, map[string]any{"blob": wireBlob("x"), "tags": []any{1.0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.call(t, tt.method, tt.in)
			assert.Equal(t, codes.InvalidArgument, status.Code(err), err)
		})
	}
}

func TestUnauthenticated(t *testing.T) {
	h := newHarness(t, nil)
	h.key = "ms-v1-" + testSecretID + "-" + strings.Repeat("0", 64)

	_, err := h.call(t, MethodPlan, newPicture())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("load: %w", types.ErrDocumentNotFound), codes.NotFound},
		{types.ErrMappingNotFound, codes.NotFound},
		{fmt.Errorf("%w: x", ErrInvalidArgument), codes.InvalidArgument},
		{types.ErrNotABlob, codes.InvalidArgument},
		{types.ErrProcessorNotFound, codes.FailedPrecondition},
		{types.ErrUnknownFilter, codes.FailedPrecondition},
		{types.ErrExtractionFailed, codes.Internal},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{status.Error(codes.Aborted, "kept"), codes.Aborted},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(toStatus(tt.err)), tt.err.Error())
	}
	assert.NoError(t, toStatus(nil))
}
