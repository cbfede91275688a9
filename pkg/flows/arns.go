package flows

import (
	"regexp"
	"strings"

	"github.com/tcmartin/connectsync/pkg/connecterr"
)

var (
	lambdaARNPattern  = regexp.MustCompile(`arn:(aws[a-z-]*):lambda:([^:"]+):([^:"]+):function:([^:"]+)`)
	connectARNPattern = regexp.MustCompile(`^arn:aws[a-z-]*:connect:[^:]*:([^:]+):`)
	stagedNamePattern = regexp.MustCompile(`^(.+)-([^-]+)-([^-]+)$`)
)

// AccountFromARN returns the account id of a connect resource ARN
func AccountFromARN(arn string) (string, error) {
	match := connectARNPattern.FindStringSubmatch(arn)
	if match == nil {
		return "", connecterr.Validation("malformed flow ARN %q", arn)
	}
	return match[1], nil
}

// RewriteLambdaARNs points every Lambda function ARN in content at account.
// When stage is set, function names shaped <base>-<stage>-<suffix> get their
// stage segment replaced. Region, partition and any qualifier are kept.
func RewriteLambdaARNs(content, account, stage string) string {
	return lambdaARNPattern.ReplaceAllStringFunc(content, func(arn string) string {
		m := lambdaARNPattern.FindStringSubmatch(arn)
		partition, region, name := m[1], m[2], m[4]
		if stage != "" {
			if parts := stagedNamePattern.FindStringSubmatch(name); parts != nil {
				name = parts[1] + "-" + stage + "-" + parts[3]
			}
		}
		return "arn:" + partition + ":lambda:" + region + ":" + account + ":function:" + name
	})
}

// FlowARN is a flow ARN split into its path segments
type FlowARN struct {
	// Instance is the instance ARN, "arn:...:instance/<id>"
	Instance   string
	InstanceID string
	FlowID     string
}

// SplitFlowARN splits arn:<partition>:connect:<region>:<account>:instance/<id>/contact-flow/<id>
func SplitFlowARN(arn string) (FlowARN, error) {
	parts := strings.Split(arn, "/")
	if len(parts) != 4 || parts[1] == "" || parts[3] == "" || !connectARNPattern.MatchString(parts[0]) {
		return FlowARN{}, connecterr.Validation("malformed flow ARN %q", arn)
	}
	return FlowARN{
		Instance:   parts[0] + "/" + parts[1],
		InstanceID: parts[1],
		FlowID:     parts[3],
	}, nil
}
