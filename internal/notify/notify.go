// Package notify announces successful promotions.
package notify

import (
	"context"
	"log/slog"
	"strconv"

	"promoter/internal/build"
	"promoter/internal/promotion"
	"promoter/pkg/templates"
)

// Event describes a successful promotion
type Event struct {
	AttemptID     string
	BuildName     string
	BuildNumber   string
	ReleaseNumber string
	Target        string
	User          string
	Artifacts     int
}

// NewEvent builds the event of a successful promotion
func NewEvent(req promotion.Request, res promotion.Result, user string) Event {
	release := res.Release.Number
	if release == "" {
		release = req.BuildNumber + build.ReleaseSuffix
	}
	return Event{
		AttemptID:     res.AttemptID,
		BuildName:     req.BuildName,
		BuildNumber:   req.BuildNumber,
		ReleaseNumber: release,
		Target:        req.TargetRepository,
		User:          user,
		Artifacts:     res.Artifacts,
	}
}

// Env returns the environment handed to notification commands
func (e Event) Env() map[string]string {
	return map[string]string{
		"PROMOTER_ATTEMPT_ID":        e.AttemptID,
		"PROMOTER_BUILD_NAME":        e.BuildName,
		"PROMOTER_BUILD_NUMBER":      e.BuildNumber,
		"PROMOTER_RELEASE_NUMBER":    e.ReleaseNumber,
		"PROMOTER_TARGET_REPOSITORY": e.Target,
		"PROMOTER_USER":              e.User,
		"PROMOTER_ARTIFACTS":         strconv.Itoa(e.Artifacts),
	}
}

func (e Event) templateData() templates.TemplateData {
	return templates.TemplateData{
		"ATTEMPT_ID":        e.AttemptID,
		"BUILD_NAME":        e.BuildName,
		"BUILD_NUMBER":      e.BuildNumber,
		"RELEASE_NUMBER":    e.ReleaseNumber,
		"TARGET_REPOSITORY": e.Target,
		"USER":              e.User,
		"ARTIFACTS":         strconv.Itoa(e.Artifacts),
	}
}

// Notifier announces a promotion
type Notifier interface {
	Name() string
	Notify(ctx context.Context, e Event) error
}

// Dispatcher runs every notifier. A failing notifier is logged and never
// affects the promotion result.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher for the given notifiers
func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, logger: logger}
}

// Len returns the number of notifiers
func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.notifiers)
}

// Dispatch runs the notifiers in order and returns how many failed
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) int {
	if d == nil {
		return 0
	}

	failed := 0
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, e); err != nil {
			failed++
			d.logger.Error("notification failed",
				"notifier", n.Name(),
				"build_name", e.BuildName,
				"release_number", e.ReleaseNumber,
				"error", err,
			)
			continue
		}
		d.logger.Info("notification sent",
			"notifier", n.Name(),
			"build_name", e.BuildName,
			"release_number", e.ReleaseNumber,
		)
	}
	return failed
}
