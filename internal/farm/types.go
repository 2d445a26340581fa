// internal/farm/types.go
package farm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/browser"
)

// Profile is one browser identity the workflow farms.
type Profile interface {
	ID() string
	// WalletAddress is the account the wallet extension should have active.
	WalletAddress() string
	Open(ctx context.Context) (browser.Driver, error)
	// Close releases the browser. It must be safe to call on a profile that
	// was never opened.
	Close(ctx context.Context) error
}

// Stage is how far a run got. Stages only move forward.
type Stage int

const (
	StageIdle Stage = iota
	StageProfileOpened
	StageWalletUnlocked
	StageWalletSelected
	StageSignedIn
	StageDailyPointsChecked
	StagePromptsSubmitted
	StageFinalized
)

var stageNames = [...]string{
	StageIdle:               "idle",
	StageProfileOpened:      "profile_opened",
	StageWalletUnlocked:     "wallet_unlocked",
	StageWalletSelected:     "wallet_selected",
	StageSignedIn:           "signed_in",
	StageDailyPointsChecked: "daily_points_checked",
	StagePromptsSubmitted:   "prompts_submitted",
	StageFinalized:          "finalized",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// CheckInOutcome is the result of the daily check-in.
type CheckInOutcome int

const (
	// CheckInSkipped means the check-in was never attempted.
	CheckInSkipped CheckInOutcome = iota
	CheckInClaimed
	// CheckInCooldown means today's check-in had already been claimed.
	CheckInCooldown
	CheckInFailed
)

func (o CheckInOutcome) String() string {
	switch o {
	case CheckInClaimed:
		return "claimed"
	case CheckInCooldown:
		return "cooldown"
	case CheckInFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// PromptResult reports one prompt submission. Sent is true once the send
// control was clicked.
type PromptResult struct {
	Sent bool
	Text string
	Err  error
}

// errNotMeasured marks a reading that was never attempted.
var errNotMeasured = errors.New("points were not measured")

// PointsReading is a points total that may be unknown. An unknown reading
// carries the reason in Err and a zero Value, which must not be read as
// "zero points".
type PointsReading struct {
	Value int
	Err   error
}

// KnownPoints is a successful reading.
func KnownPoints(v int) PointsReading { return PointsReading{Value: v} }

// UnknownPoints is a failed reading.
func UnknownPoints(err error) PointsReading {
	if err == nil {
		err = errNotMeasured
	}
	return PointsReading{Err: err}
}

// Known reports whether Value holds a real reading.
func (p PointsReading) Known() bool { return p.Err == nil }

// RunReport is everything one Run learned about a profile.
type RunReport struct {
	RunID         string
	ProfileID     string
	WalletAddress string
	StartedAt     time.Time
	FinishedAt    time.Time

	// Reached is the last stage completed before finalization.
	Reached        Stage
	Finalized      bool
	WalletSwitched bool
	CheckIn        CheckInOutcome
	PromptsPlanned int
	PromptsSent    int
	Start          PointsReading
	End            PointsReading

	// Err is the error that aborted the run, nil when every critical step
	// succeeded.
	Err error
}

// Failed reports whether a critical step aborted the run.
func (r *RunReport) Failed() bool { return r.Err != nil }

// Delta is the points earned during the run. ok is false unless both
// readings are known.
func (r *RunReport) Delta() (delta int, ok bool) {
	if !r.Start.Known() || !r.End.Known() {
		return 0, false
	}
	return r.End.Value - r.Start.Value, true
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ProfileRun is the mutable state of one run: the open driver and the two
// tabs the workflow moves between.
type ProfileRun struct {
	Profile   Profile
	Driver    browser.Driver
	SiteTab   browser.Tab
	WalletTab browser.Tab
	Stage     Stage
	Logger    *zap.Logger
}

// advance moves the run forward; it never moves it back.
func (r *ProfileRun) advance(s Stage) {
	if s > r.Stage {
		r.Stage = s
	}
}
