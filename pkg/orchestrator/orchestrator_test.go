package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/samogod/patentvae/pkg/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newWorkspace lays out exp/patent/params.yaml two levels below Data/, mirroring the
// ../../Data layout the patent defaults assume.
func newWorkspace(t *testing.T, params string) (string, *Orchestrator, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "exp", "patent", "params.yaml")
	writeFile(t, path, params)
	writeFile(t, filepath.Join(root, "Data", "train.txt"), "a\nb\nc\n")
	writeFile(t, filepath.Join(root, "Data", "val.txt"), "a\n")
	writeFile(t, filepath.Join(root, "Data", "test.txt"), "a\nb\n")

	orch, err := NewOrchestrator(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	orch.SetOutput(&buf)
	return root, orch, &buf
}

func TestCheckPatentDefaults(t *testing.T) {
	_, orch, logs := newWorkspace(t, "params: {}\n")

	result, err := orch.Check(context.Background(), CheckOptions{})
	require.NoError(t, err)
	require.True(t, result.Success, "errors: %v", result.Errors)

	assert.Equal(t, config.PatentDefaults(), result.Params)
	require.NotNil(t, result.Report)
	assert.Equal(t, 6, result.Report.TotalLines())
	assert.False(t, result.Recorded)
	assert.Contains(t, logs.String(), "[INF] Params valid")
	assert.Contains(t, logs.String(), "train data:")
}

func TestCheckInvalidOverride(t *testing.T) {
	_, orch, logs := newWorkspace(t, "params: {}\n")
	tooHigh := 1.5

	result, err := orch.Check(context.Background(), CheckOptions{
		Overrides: config.Overrides{DecDropoutOut: &tooHigh},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Nil(t, result.Report)
	assert.Contains(t, logs.String(), "[ERR] dec_dropout_out must be within [0,1]")

	assert.Equal(t, 0.5, orch.Config().Params.DecDropoutOut)
}

func TestCheckMissingData(t *testing.T) {
	root, orch, _ := newWorkspace(t, "params: {}\n")
	require.NoError(t, os.Remove(filepath.Join(root, "Data", "val.txt")))

	result, err := orch.Check(context.Background(), CheckOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, result.Report.Files[1].OK())
}

func TestCheckSkipDataAndDataRoot(t *testing.T) {
	root, orch, _ := newWorkspace(t, "params:\n  train_data: train.txt\n  val_data: val.txt\n  test_data: test.txt\n")

	result, err := orch.Check(context.Background(), CheckOptions{SkipData: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.Report)

	result, err = orch.Check(context.Background(), CheckOptions{DataRoot: filepath.Join(root, "Data")})
	require.NoError(t, err)
	assert.True(t, result.Success, "errors: %v", result.Errors)
}

func TestCheckRecordWithoutRegistry(t *testing.T) {
	_, orch, logs := newWorkspace(t, "params: {}\n")
	orch.Logger().SetLevel(logrus.DebugLevel)

	result, err := orch.Check(context.Background(), CheckOptions{RecordAs: "patent"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Recorded)
	assert.Contains(t, logs.String(), "[WARN] Run registry is not enabled")
}

func TestExport(t *testing.T) {
	root, orch, _ := newWorkspace(t, "params: {}\n")
	out := filepath.Join(root, "runs.jsonl")

	doc, err := orch.Export("patent", out, config.Overrides{Epochs: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, doc.Params.Epochs)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run":"patent"`)

	_, err = orch.Export("", out, config.Overrides{})
	assert.Error(t, err)
}

func TestPublishWithoutElasticsearch(t *testing.T) {
	_, orch, _ := newWorkspace(t, "params: {}\n")

	_, err := orch.Publish(context.Background(), "patent", config.Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elasticsearch URL is required")
}

func TestFormatter(t *testing.T) {
	f := &customFormatter{}
	out, err := f.Format(&logrus.Entry{Level: logrus.WarnLevel, Message: "careful"})
	require.NoError(t, err)
	assert.Equal(t, "[WARN] careful\n", string(out))
}
