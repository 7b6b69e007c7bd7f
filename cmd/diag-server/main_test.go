package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/expert"
	"github.com/tracymacding/starrocks-diag-engine/internal/pipeline"
	"github.com/tracymacding/starrocks-diag-engine/internal/probe"
	"github.com/tracymacding/starrocks-diag-engine/internal/registry"
)

type fakeExpert struct{ name string }

func (f fakeExpert) Metadata() expert.Metadata {
	return expert.Metadata{
		Name:                   f.name,
		Version:                "1.0.0",
		Description:            "fake expert for stdio-loop tests",
		SupportedArchitectures: []expert.Architecture{expert.ArchSharedData, expert.ArchSharedNothing},
	}
}

func (f fakeExpert) Tools() []expert.Tool {
	return []expert.Tool{{
		Spec: expert.ToolSpec{
			Name:        "ping",
			Description: "test tool",
			InputSchema: expert.InputSchema{Type: "object", Properties: map[string]expert.SchemaField{}},
		},
		Mode: expert.ModeDirect,
		Direct: func(ctx context.Context, args map[string]any, p *probe.Probe) (*diagmodel.FindingSet, error) {
			return &diagmodel.FindingSet{}, nil
		},
	}}
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery("run_mode").WillReturnRows(sqlmock.NewRows([]string{"Value"}).AddRow("shared_data"))
	t.Cleanup(func() { db.Close() })
	p := probe.NewForTesting(db, "http://%s:%d")

	r := registry.New(p, pipeline.Options{})
	r.MustRegisterExpert(fakeExpert{name: "fake"}, registry.ShapeStructured)
	return r
}

func testSugar() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestServeRunsValidRequestAndEchoesID(t *testing.T) {
	r := testRegistry(t)
	in := strings.NewReader(`{"id":"req-1","tool":"ping","args":{}}` + "\n")
	var out bytes.Buffer

	serve(context.Background(), r, in, &out, testSugar())

	var resp response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.ID)
	assert.Empty(t, resp.Error)
	assert.NotNil(t, resp.Result)
}

func TestServeAssignsIDWhenOmitted(t *testing.T) {
	r := testRegistry(t)
	in := strings.NewReader(`{"tool":"ping","args":{}}` + "\n")
	var out bytes.Buffer

	serve(context.Background(), r, in, &out, testSugar())

	var resp response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
}

func TestServeReturnsErrorForUnknownTool(t *testing.T) {
	r := testRegistry(t)
	in := strings.NewReader(`{"id":"req-2","tool":"does_not_exist","args":{}}` + "\n")
	var out bytes.Buffer

	serve(context.Background(), r, in, &out, testSugar())

	var resp response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "req-2", resp.ID)
	assert.Contains(t, resp.Error, "tool not found")
	assert.Nil(t, resp.Result)
}

func TestServeReturnsErrorForMalformedJSONAndContinues(t *testing.T) {
	r := testRegistry(t)
	in := strings.NewReader("not json\n" + `{"id":"req-3","tool":"ping","args":{}}` + "\n")
	var out bytes.Buffer

	serve(context.Background(), r, in, &out, testSugar())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Contains(t, first.Error, "invalid request")

	var second response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "req-3", second.ID)
	assert.Empty(t, second.Error)
}

func TestServeSkipsBlankLines(t *testing.T) {
	r := testRegistry(t)
	in := strings.NewReader("\n" + `{"id":"req-4","tool":"ping","args":{}}` + "\n\n")
	var out bytes.Buffer

	serve(context.Background(), r, in, &out, testSugar())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
}
