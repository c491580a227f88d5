package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/samogod/patentvae/pkg/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func parseParamFlags(t *testing.T, args ...string) (config.Overrides, error) {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	addParamFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return overridesFromFlags(c)
}

func TestOverridesFromFlags(t *testing.T) {
	o, err := parseParamFlags(t, "--nz", "64", "--dec-dropout-in", "0", "--enc-type", "LSTM", "--train-data", "t.txt")
	require.NoError(t, err)

	assert.Equal(t, 64, o.NZ)
	require.NotNil(t, o.DecDropoutIn)
	assert.Equal(t, 0.0, *o.DecDropoutIn)
	assert.Nil(t, o.DecDropoutOut)
	assert.Equal(t, config.LSTM, o.EncType)
	assert.Equal(t, "t.txt", o.TrainData)
	assert.Zero(t, o.BatchSize)
}

func TestOverridesFromFlagsRejects(t *testing.T) {
	_, err := parseParamFlags(t, "--batch-size", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--batch-size must be > 0")

	_, err = parseParamFlags(t, "--dec-type", "gru")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dec-type")
}

func TestOverridesFromNoFlags(t *testing.T) {
	o, err := parseParamFlags(t)
	require.NoError(t, err)
	assert.Equal(t, config.PatentDefaults(), config.PatentDefaults().ApplyOverrides(o))
}

func TestWriteParamsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeParams(&buf, config.PatentDefaults(), true, false))

	var got config.Params
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, config.PatentDefaults(), got)
}

func TestWriteParamsYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeParams(&buf, config.PatentDefaults(), false, true))

	var got config.Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, config.PatentDefaults(), got.Params)
}

func TestDebugLogWritesToStderr(t *testing.T) {
	assert.Equal(t, io.Writer(os.Stderr), debugOutput)

	var buf bytes.Buffer
	prevOut, prevVerbose := debugOutput, Verbose
	debugOutput, Verbose = &buf, true
	t.Cleanup(func() { debugOutput, Verbose = prevOut, prevVerbose })

	DebugLog("loaded %s", "params.yaml")
	assert.Equal(t, "[DBG] loaded params.yaml\n", buf.String())

	Verbose = false
	DebugLog("hidden")
	assert.Equal(t, "[DBG] loaded params.yaml\n", buf.String())
}

func TestWriteParamsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeParams(&buf, config.PatentDefaults(), false, false))
	assert.Contains(t, buf.String(), "batch_size")
	assert.Contains(t, buf.String(), "../../Data/train.txt")
}
