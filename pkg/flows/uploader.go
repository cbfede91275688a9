package flows

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/console"
	"github.com/tcmartin/connectsync/pkg/logging"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Stage is the progress of one flow through the upload pipeline
type Stage int

// Upload stages, in order
const (
	StageDiscovered Stage = iota
	StageTokenAcquired
	StageArnsFixed
	StageCertsFixed
	StageSubmitted
	StagePublished
	StageSaved
)

func (s Stage) String() string {
	switch s {
	case StageDiscovered:
		return "Discovered"
	case StageTokenAcquired:
		return "TokenAcquired"
	case StageArnsFixed:
		return "ArnsFixed"
	case StageCertsFixed:
		return "CertsFixed"
	case StageSubmitted:
		return "Submitted"
	case StagePublished:
		return "Published"
	case StageSaved:
		return "Saved"
	default:
		return "Unknown"
	}
}

// UploadOptions controls how a flow is uploaded
type UploadOptions struct {
	// Publish commits the flow as published instead of saved
	Publish bool

	// FixARNs runs the console import transform, which points instance
	// resources at the destination instance
	FixARNs bool

	// FixLambdaARNs rewrites Lambda ARNs to the destination account before
	// the transform. Only honoured with FixARNs.
	FixLambdaARNs bool

	// Stage replaces the stage segment of Lambda function names
	Stage string

	// EncryptionKeyID and EncryptionCert replace the encryption settings of
	// the flow. Both or neither must be set.
	EncryptionKeyID string
	EncryptionCert  string
}

// DefaultUploadOptions returns the options used when nothing is overridden
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{FixARNs: true, FixLambdaARNs: true}
}

// Validate checks the options before any request is made
func (o UploadOptions) Validate() error {
	if (o.EncryptionKeyID == "") != (o.EncryptionCert == "") {
		return connecterr.Validation("an encryption key id and certificate must be given together")
	}
	if o.EncryptionCert != "" {
		return ValidateCertificate(o.EncryptionCert)
	}
	return nil
}

func (o UploadOptions) status() string {
	if o.Publish {
		return console.StatusPublished
	}
	return console.StatusSaved
}

// UploadResult describes a committed flow
type UploadResult struct {
	Name   string
	ARN    string
	Status string
	Stage  Stage
}

// Uploader writes local flow documents back to the console
type Uploader struct {
	console Console
	logger  *zap.Logger
}

// NewUploader creates an uploader
func NewUploader(c Console, logger *zap.Logger) *Uploader {
	return &Uploader{console: c, logger: logging.OrNop(logger).Named("flows")}
}

// Upload commits content over the remote flow with the same name. Flows are
// never created: an unknown name fails before any edit request is made.
func (u *Uploader) Upload(ctx context.Context, content []byte, opts UploadOptions) (UploadResult, error) {
	if err := opts.Validate(); err != nil {
		return UploadResult{}, err
	}
	if !gjson.ValidBytes(content) {
		return UploadResult{}, connecterr.Validation("flow document is not valid JSON")
	}
	name := gjson.GetBytes(content, "metadata.name").String()
	if name == "" {
		return UploadResult{}, connecterr.Validation("flow document has no metadata.name")
	}

	summary, err := u.console.FindFlowByName(ctx, name)
	if err != nil {
		return UploadResult{Name: name}, err
	}
	return u.UploadTo(ctx, summary, content, opts)
}

// UploadTo commits content over the flow described by target
func (u *Uploader) UploadTo(ctx context.Context, target console.FlowSummary, content []byte, opts UploadOptions) (UploadResult, error) {
	res := UploadResult{Name: target.Name, ARN: target.ARN, Stage: StageDiscovered}
	if err := opts.Validate(); err != nil {
		return res, err
	}
	arn, err := SplitFlowARN(target.ARN)
	if err != nil {
		return res, err
	}
	log := u.logger.With(zap.String("flow", target.Name))

	editToken, err := u.console.EditToken(ctx, target.ARN)
	if err != nil {
		return res, err
	}
	res.Stage = StageTokenAcquired
	log.Debug("acquired edit token")

	text := string(content)
	if opts.FixARNs {
		if opts.FixLambdaARNs {
			account, err := AccountFromARN(target.ARN)
			if err != nil {
				return res, err
			}
			text = RewriteLambdaARNs(text, account, opts.Stage)
		}
		flowType := gjson.Get(text, "metadata.type").String()
		text, err = u.console.ImportFlow(ctx, flowType, editToken, []byte(text))
		if err != nil {
			return res, err
		}
		res.Stage = StageArnsFixed
		log.Debug("rewrote ARNs", zap.Bool("lambda", opts.FixLambdaARNs), zap.String("stage", opts.Stage))
	}

	if opts.EncryptionKeyID != "" && opts.EncryptionCert != "" {
		text = RewriteEncryption(text, opts.EncryptionKeyID, opts.EncryptionCert)
		res.Stage = StageCertsFixed
		log.Debug("replaced encryption settings")
	}

	if !gjson.Valid(text) {
		return res, connecterr.ProtocolDrift("transformed flow %q is not valid JSON", target.Name)
	}
	meta := gjson.Get(text, "metadata")
	req := console.SaveRequest{
		ARN:                    target.ARN,
		ResourceARN:            target.ARN,
		ResourceID:             arn.FlowID,
		Organization:           arn.Instance,
		OrganizationARN:        arn.Instance,
		OrganizationResourceID: arn.InstanceID,
		ContactFlowType:        meta.Get("type").String(),
		ContactFlowContent:     text,
		ContactFlowStatus:      opts.status(),
		Name:                   meta.Get("name").String(),
		Description:            meta.Get("description").String(),
	}

	res.Stage = StageSubmitted
	if err := u.console.SaveFlow(ctx, editToken, req); err != nil {
		return res, errors.Wrapf(err, "commit %q", target.Name)
	}

	res.Status = req.ContactFlowStatus
	res.Stage = StageSaved
	if opts.Publish {
		res.Stage = StagePublished
	}
	log.Info("uploaded flow", zap.String("status", res.Status))
	return res, nil
}
