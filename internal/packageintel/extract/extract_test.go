package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/pkg/models"
)

func TestFromTextPythonImport(t *testing.T) {
	text := "```python\nimport requests\nfrom flask import Flask\n```"
	pkgs := FromText(text)
	names := map[string]string{}
	for _, p := range pkgs {
		names[p.Name] = p.Ecosystem
	}
	require.Equal(t, "pypi", names["requests"])
	require.Equal(t, "pypi", names["flask"])
}

func TestFromTextGoImport(t *testing.T) {
	text := "```go\nimport (\n\t\"github.com/spf13/cobra\"\n)\n```"
	pkgs := FromText(text)
	require.Len(t, pkgs, 1)
	require.Equal(t, "go", pkgs[0].Ecosystem)
	require.Equal(t, "github.com/spf13/cobra", pkgs[0].Name)
	require.Equal(t, models.LocationCodeImport, pkgs[0].Location)
}

func TestFromTextJSRequire(t *testing.T) {
	text := "```javascript\nconst express = require('express');\n```"
	pkgs := FromText(text)
	require.Len(t, pkgs, 1)
	require.Equal(t, "express", pkgs[0].Name)
}

func TestFromTextNoFencedBlocksReturnsEmpty(t *testing.T) {
	pkgs := FromText("just chatting about the weather")
	require.Empty(t, pkgs)
}

func TestFromTextFreeTextMention(t *testing.T) {
	pkgs := FromText("is it safe to install invokehttp?")
	require.Len(t, pkgs, 1)
	require.Equal(t, "invokehttp", pkgs[0].Name)
	require.Equal(t, "", pkgs[0].Ecosystem)
	require.Equal(t, models.LocationFreeText, pkgs[0].Location)
}
