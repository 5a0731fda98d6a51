package main

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devgrupoglobalsoft/apiexec"
)

func TestWriteDocumentBuildInfo(t *testing.T) {
	build := apiexec.CurrentBuild()
	assert.Equal(t, runtime.Version(), build.GoVersion)
	assert.Contains(t, build.String(), apiexec.Version)

	var buf bytes.Buffer
	require.NoError(t, writeDocument(&buf, "json", build))
	var fromJSON apiexec.BuildInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, build, fromJSON)

	buf.Reset()
	require.NoError(t, writeDocument(&buf, "YAML", build))
	assert.Contains(t, buf.String(), "goVersion: "+build.GoVersion)
	var fromYAML apiexec.BuildInfo
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, build, fromYAML)

	assert.ErrorContains(t, writeDocument(&buf, "xml", build), `unknown output format "xml"`)
}
