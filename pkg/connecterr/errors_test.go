package connecterr

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
)

func TestCategoriesSurviveWrapping(t *testing.T) {
	err := errors.Wrap(Validation("no existing flow named %q", "Main"), "upload Main.json")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrRemoteRejection))
	assert.Contains(t, err.Error(), `no existing flow named "Main"`)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"configuration", Configuration("missing instance id"), 2},
		{"validation", Validation("bad file"), 2},
		{"authentication", Authentication("invalid username or password"), 3},
		{"protocol drift", ProtocolDrift("edit token not found"), 4},
		{"remote rejection", RemoteRejection("status %d", 500), 5},
		{"unclassified", errors.New("boom"), 1},
		{"rejection with module errors", errors.Wrap(moduleRejection(), "commit \"Main\""), 5},
		{"batch of rejections", multierror.Append(nil, errors.Wrap(moduleRejection(), "upload Main.json")), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

// moduleRejection builds a rejection the way the console client does, with
// the per-module details collected in a multierror
func moduleRejection() error {
	details := multierror.Append(nil, errors.New("m1:InvalidLambda:bad"), errors.New("m2:MissingBranch:none"))
	return errors.Mark(errors.Wrap(details, "save: status 400"), ErrRemoteRejection)
}

func TestProtocolDriftCarriesHint(t *testing.T) {
	err := errors.Wrap(ProtocolDrift("unexpected HTML response"), "list flows")
	assert.NotEmpty(t, Hints(err))
}

func TestMarkHelpersIgnoreNil(t *testing.T) {
	assert.NoError(t, MarkAuthentication(nil, "login"))
	assert.NoError(t, MarkConfiguration(nil, "probe"))

	err := MarkAuthentication(errors.New("expired"), "federation")
	assert.True(t, errors.Is(err, ErrAuthentication))
	assert.Equal(t, "federation: expired", err.Error())
}

func TestExitCodeOfBatch(t *testing.T) {
	var batch *multierror.Error
	batch = multierror.Append(batch, errors.Wrap(ProtocolDrift("edit token not found"), "Main"))
	batch = multierror.Append(batch, errors.Wrap(Validation("bad file"), "Other"))

	assert.Equal(t, 4, ExitCode(batch.ErrorOrNil()))
	assert.Len(t, Hints(batch.ErrorOrNil()), 1)
}
