package flows

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/console"
	"github.com/tcmartin/connectsync/pkg/console/consoletest"
	"github.com/tcmartin/connectsync/pkg/utils"
)

const (
	testToken = "session-token"

	localFlow = `{
  "metadata": {
    "description": "entry flow",
    "entryPointPosition": {"x": 20, "y": 20},
    "name": "Main",
    "type": "contactFlow"
  },
  "modules": [
    {"id": "m1", "parameters": [
      {"name": "FunctionArn", "value": "arn:aws:lambda:us-east-1:999988887777:function:myFn-dev-handler"},
      {"name": "Queue", "value": "arn:aws:connect:us-east-1:999988887777:instance/inst-src/queue/q1"},
      {"name": "EncryptionKeyId", "value": "old-key"},
      {"name": "EncryptionKey", "value": "old-cert"}
    ]}
  ]
}`
)

func newTestConsole(t *testing.T) (*consoletest.FakeConsole, *console.Client) {
	t.Helper()
	fake := consoletest.New(testToken)
	t.Cleanup(fake.Close)

	fake.AddFlow(console.FlowSummary{
		ARN:    targetARN,
		Name:   "Main",
		Type:   "contactFlow",
		Status: console.StatusPublished,
	}, localFlow)

	client := console.NewClient(utils.NewHTTPClient(5*time.Second), console.ClientConfig{
		BaseURL:    fake.URL(),
		CookieName: consoletest.DefaultCookie,
		Token:      testToken,
	}, nil)
	return fake, client
}

func TestUploadPublishesWithRewrittenARNs(t *testing.T) {
	fake, client := newTestConsole(t)
	fake.Transform = func(content string) string {
		return strings.ReplaceAll(content, "999988887777:instance/inst-src", "111122223333:instance/inst-1")
	}

	opts := DefaultUploadOptions()
	opts.Publish = true
	opts.Stage = "prod"

	res, err := NewUploader(client, nil).Upload(context.Background(), []byte(localFlow), opts)
	require.NoError(t, err)
	assert.Equal(t, StagePublished, res.Stage)
	assert.Equal(t, console.StatusPublished, res.Status)
	assert.Equal(t, targetARN, res.ARN)

	assert.Equal(t, []string{"list", "edit-page", "import", "save"}, fake.Requests())

	imports := fake.Imports()
	require.Len(t, imports, 1)
	assert.Contains(t, imports[0], "arn:aws:lambda:us-east-1:111122223333:function:myFn-prod-handler")
	assert.Contains(t, imports[0], "instance/inst-src/queue/q1")

	saves := fake.Saves()
	require.Len(t, saves, 1)
	save := saves[0]
	assert.Equal(t, targetARN, save.ARN)
	assert.Equal(t, targetARN, save.ResourceARN)
	assert.Equal(t, "flow-1", save.ResourceID)
	assert.Equal(t, "arn:aws:connect:eu-west-2:111122223333:instance/inst-1", save.Organization)
	assert.Equal(t, save.Organization, save.OrganizationARN)
	assert.Equal(t, "inst-1", save.OrganizationResourceID)
	assert.Equal(t, "contactFlow", save.ContactFlowType)
	assert.Equal(t, console.StatusPublished, save.ContactFlowStatus)
	assert.Equal(t, "Main", save.Name)
	assert.Equal(t, "entry flow", save.Description)
	assert.False(t, save.IsDefault)
	assert.Contains(t, save.ContactFlowContent, "111122223333:instance/inst-1/queue/q1")
	assert.Contains(t, save.ContactFlowContent, "myFn-prod-handler")
}

func TestUploadWithoutMatchSendsNoEditRequest(t *testing.T) {
	fake, client := newTestConsole(t)
	content := strings.Replace(localFlow, `"name": "Main"`, `"name": "Missing"`, 1)

	_, err := NewUploader(client, nil).Upload(context.Background(), []byte(content), DefaultUploadOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, connecterr.ErrValidation))
	assert.Contains(t, err.Error(), `no existing flow named "Missing"`)
	assert.Equal(t, []string{"list"}, fake.Requests())
}

func TestUploadSavesWithoutTransform(t *testing.T) {
	fake, client := newTestConsole(t)

	opts := UploadOptions{}
	res, err := NewUploader(client, nil).Upload(context.Background(), []byte(localFlow), opts)
	require.NoError(t, err)
	assert.Equal(t, StageSaved, res.Stage)
	assert.Equal(t, []string{"list", "edit-page", "save"}, fake.Requests())

	save := fake.Saves()[0]
	assert.Equal(t, console.StatusSaved, save.ContactFlowStatus)
	assert.Equal(t, localFlow, save.ContactFlowContent)
}

func TestUploadKeepsLambdaARNsWhenDisabled(t *testing.T) {
	fake, client := newTestConsole(t)

	opts := DefaultUploadOptions()
	opts.FixLambdaARNs = false
	_, err := NewUploader(client, nil).Upload(context.Background(), []byte(localFlow), opts)
	require.NoError(t, err)

	imports := fake.Imports()
	require.Len(t, imports, 1)
	assert.Contains(t, imports[0], "999988887777:function:myFn-dev-handler")
}

func TestUploadReplacesEncryptionSettings(t *testing.T) {
	fake, client := newTestConsole(t)

	opts := UploadOptions{EncryptionKeyID: "new-key", EncryptionCert: testCert}
	res, err := NewUploader(client, nil).Upload(context.Background(), []byte(localFlow), opts)
	require.NoError(t, err)
	assert.Equal(t, StageSaved, res.Stage)

	content := fake.Saves()[0].ContactFlowContent
	assert.Contains(t, content, `"value": "new-key"`)
	assert.Contains(t, content, `-----BEGIN CERTIFICATE-----\nMIIBszCCAVmgAwIBAgIUQw==`)
	assert.NotContains(t, content, "old-")
}

func TestUploadEncryptionKeyIDNeedingEscapes(t *testing.T) {
	fake, client := newTestConsole(t)

	opts := UploadOptions{EncryptionKeyID: `id"quoted`, EncryptionCert: testCert}
	_, err := NewUploader(client, nil).Upload(context.Background(), []byte(localFlow), opts)
	require.NoError(t, err)
	assert.Contains(t, fake.Saves()[0].ContactFlowContent, `"value": "id\"quoted"`)
}

func TestUploadRejectsIncompleteEncryptionOptions(t *testing.T) {
	fake, client := newTestConsole(t)

	_, err := NewUploader(client, nil).Upload(context.Background(), []byte(localFlow), UploadOptions{EncryptionKeyID: "k"})
	assert.True(t, errors.Is(err, connecterr.ErrValidation))

	_, err = NewUploader(client, nil).Upload(context.Background(), []byte(localFlow), UploadOptions{EncryptionKeyID: "k", EncryptionCert: "plain"})
	assert.True(t, errors.Is(err, connecterr.ErrValidation))
	assert.Empty(t, fake.Requests())
}

func TestUploadTransformRejected(t *testing.T) {
	fake, client := newTestConsole(t)
	fake.TransformError = "unknown block type"

	res, err := NewUploader(client, nil).Upload(context.Background(), []byte(localFlow), DefaultUploadOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, connecterr.ErrRemoteRejection))
	assert.Contains(t, err.Error(), "unknown block type")
	assert.Equal(t, StageTokenAcquired, res.Stage)
	assert.Empty(t, fake.Saves())
}

func TestUploadCommitRejected(t *testing.T) {
	fake, client := newTestConsole(t)
	fake.SaveErrors = []console.ModuleError{
		{ModuleID: "m1", ErrorType: "InvalidBlock", ErrorDetails: "oops"},
		{ModuleID: "m2", ErrorType: "MissingBranch", ErrorDetails: "no error branch"},
	}

	res, err := NewUploader(client, nil).Upload(context.Background(), []byte(localFlow), UploadOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, connecterr.ErrRemoteRejection))
	assert.Contains(t, err.Error(), "m1:InvalidBlock:oops")
	assert.Contains(t, err.Error(), "m2:MissingBranch:no error branch")
	assert.Equal(t, 5, connecterr.ExitCode(err))
	assert.Equal(t, StageSubmitted, res.Stage)
}

func TestUploadMissingEditToken(t *testing.T) {
	fake, client := newTestConsole(t)
	fake.EditPage = "<html><script>app.constant(\"other\", \"x\");</script></html>"

	_, err := NewUploader(client, nil).Upload(context.Background(), []byte(localFlow), DefaultUploadOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, connecterr.ErrProtocolDrift))
	assert.Equal(t, []string{"list", "edit-page"}, fake.Requests())
}

func TestUploadRejectsInvalidDocuments(t *testing.T) {
	_, client := newTestConsole(t)
	u := NewUploader(client, nil)

	for _, content := range []string{`{`, `{"metadata":{}}`} {
		_, err := u.Upload(context.Background(), []byte(content), UploadOptions{})
		assert.True(t, errors.Is(err, connecterr.ErrValidation), content)
	}
}

func TestUploadToMalformedARN(t *testing.T) {
	fake, client := newTestConsole(t)

	_, err := NewUploader(client, nil).UploadTo(context.Background(), console.FlowSummary{ARN: "arn:aws:connect:x", Name: "Main"}, []byte(localFlow), UploadOptions{})
	assert.True(t, errors.Is(err, connecterr.ErrValidation))
	assert.Empty(t, fake.Requests())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "TokenAcquired", StageTokenAcquired.String())
	assert.Equal(t, "Published", StagePublished.String())
	assert.Equal(t, "Unknown", Stage(42).String())
}
