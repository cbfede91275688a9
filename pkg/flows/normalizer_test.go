package flows

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/console"
)

func TestNormalizerFetch(t *testing.T) {
	fake, client := newTestConsole(t)
	summary := console.FlowSummary{
		ARN:         targetARN + "-legacy",
		Name:        "Legacy",
		Description: "from the directory",
		Type:        "customerQueue",
		Status:      console.StatusSaved,
	}
	fake.AddFlow(summary, legacyFlow)

	doc, err := NewNormalizer(client, nil).Fetch(context.Background(), summary)
	require.NoError(t, err)

	meta := doc.Metadata()
	assert.Equal(t, console.StatusSaved, meta["status"])
	assert.Equal(t, "Legacy", meta["name"])
	assert.Equal(t, "from the directory", meta["description"])
	assert.Equal(t, "customerQueue", meta["type"])
	assert.Equal(t, json.Number("20"), meta["entryPointPosition"].(map[string]any)["x"])
	assert.Equal(t, "Legacy", doc.Name())
}

func TestNormalizerFetchIsDeterministic(t *testing.T) {
	_, client := newTestConsole(t)
	summary := console.FlowSummary{ARN: targetARN, Name: "Main", Type: "contactFlow", Status: console.StatusPublished}
	n := NewNormalizer(client, nil)

	first, err := n.Fetch(context.Background(), summary)
	require.NoError(t, err)
	second, err := n.Fetch(context.Background(), summary)
	require.NoError(t, err)

	a, err := first.MarshalIndent()
	require.NoError(t, err)
	b, err := second.MarshalIndent()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestNormalizerFetchUnparsableContent(t *testing.T) {
	fake, client := newTestConsole(t)
	summary := console.FlowSummary{ARN: targetARN + "-broken", Name: "Broken"}
	fake.AddFlow(summary, "<html>")

	_, err := NewNormalizer(client, nil).Fetch(context.Background(), summary)
	require.Error(t, err)
	assert.True(t, errors.Is(err, connecterr.ErrProtocolDrift))
}
