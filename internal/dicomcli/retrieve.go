package dicomcli

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RetrieveResult is the shared return shape of MoveStudy, GetStudy, and the
// result of a retry sequence that exhausted without success.
type RetrieveResult struct {
	Success      bool
	NumCompleted int
	NumFailed    int
	NumWarning   int
	Message      string
}

var (
	finalMoveSuccessRe = regexp.MustCompile(`Received Final Move Response \(Success\)`)
	subOpsRe           = regexp.MustCompile(`Sub-Operations Complete: (\d+), Failed: (\d+), Warning: (\d+)`)
)

// parseRetrieveStderr parses move_study/get_study stderr: it looks for
// "Received Final Move Response (Success)" and a "Sub-Operations Complete:
// N, Failed: N, Warning: N" line.
func parseRetrieveStderr(stderr string) RetrieveResult {
	m := subOpsRe.FindStringSubmatch(stderr)
	if m == nil {
		return RetrieveResult{Success: false, Message: "no Sub-Operations Complete summary found in output"}
	}
	completed, _ := strconv.Atoi(m[1])
	failed, _ := strconv.Atoi(m[2])
	warning, _ := strconv.Atoi(m[3])

	success := finalMoveSuccessRe.MatchString(stderr)
	result := RetrieveResult{NumCompleted: completed, NumFailed: failed, NumWarning: warning, Success: success}
	if !success {
		result.Message = fmt.Sprintf("move did not report Final Move Response (Success); completed=%d failed=%d warning=%d", completed, failed, warning)
	}
	return result
}

// MoveStudy issues a C-MOVE for studyUID to destinationAET, retrying while
// the result reports Success=false.
func (c *Client) MoveStudy(ctx context.Context, destinationAET, studyUID string) (RetrieveResult, error) {
	result, err := retryMoveOrGet("move_study", func(attempt int) (RetrieveResult, error) {
		return c.moveStudyOnce(ctx, destinationAET, studyUID)
	})
	return result, err
}

func (c *Client) moveStudyOnce(ctx context.Context, destinationAET, studyUID string) (RetrieveResult, error) {
	args := []string{
		"-aec", c.CalledAET, "-aet", c.CallingAET, "-aem", destinationAET,
		"-S", "-k", "StudyInstanceUID=" + studyUID,
		c.Host, strconv.Itoa(c.Port),
	}
	_, stderr, exitCode, err := c.runCommand(ctx, c.Bin.MoveSCU, args)
	if err != nil {
		return RetrieveResult{Message: err.Error()}, &CommandError{Command: c.Bin.MoveSCU, ExitCode: -1, Stderr: err.Error()}
	}
	if exitCode != 0 {
		return RetrieveResult{Message: strings.TrimSpace(stderr)}, nil
	}
	return parseRetrieveStderr(stderr), nil
}

// GetStudy issues a C-GET for studyUID, same parsing and retry shape as
// MoveStudy.
func (c *Client) GetStudy(ctx context.Context, studyUID string) (RetrieveResult, error) {
	return retryMoveOrGet("get_study", func(attempt int) (RetrieveResult, error) {
		return c.getStudyOnce(ctx, studyUID)
	})
}

func (c *Client) getStudyOnce(ctx context.Context, studyUID string) (RetrieveResult, error) {
	args := []string{
		"-aec", c.CalledAET, "-aet", c.CallingAET,
		"-S", "-k", "StudyInstanceUID=" + studyUID,
		c.Host, strconv.Itoa(c.Port),
	}
	_, stderr, exitCode, err := c.runCommand(ctx, c.Bin.GetSCU, args)
	if err != nil {
		return RetrieveResult{Message: err.Error()}, &CommandError{Command: c.Bin.GetSCU, ExitCode: -1, Stderr: err.Error()}
	}
	if exitCode != 0 {
		return RetrieveResult{Message: strings.TrimSpace(stderr)}, nil
	}
	return parseRetrieveStderr(stderr), nil
}

// EchoPacs issues a C-ECHO against the configured PACS, used as a
// preflight connectivity check before a job's main work begins.
func (c *Client) EchoPacs(ctx context.Context) (success bool, message string) {
	args := []string{"-aec", c.CalledAET, "-aet", c.CallingAET, c.Host, strconv.Itoa(c.Port)}
	_, stderr, exitCode, err := c.runCommand(ctx, c.Bin.EchoSCU, args)
	if err != nil {
		return false, err.Error()
	}
	if exitCode != 0 {
		return false, strings.TrimSpace(stderr)
	}
	return true, "echo succeeded"
}
