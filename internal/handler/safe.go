package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FailureMessage is shown to the user when their interaction's handler fails.
const FailureMessage = "There was an error while executing this interaction!"

// Replier is the reply surface of interaction notifications. Gateway events
// have none.
type Replier interface {
	Reply(ctx context.Context, content string, ephemeral bool) error
	FollowUp(ctx context.Context, content string, ephemeral bool) error
	Replied() bool
	Deferred() bool
}

type Outcome int

const (
	Succeeded Outcome = iota
	// Failed means the handler failed and there was no reply surface.
	Failed
	ReplySucceeded
	ReplyAlsoFailed
	// Missed means no handler was registered for the notification.
	Missed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "ok"
	case Failed:
		return "failed"
	case ReplySucceeded:
		return "failed_replied"
	case ReplyAlsoFailed:
		return "failed_unreplied"
	case Missed:
		return "miss"
	default:
		return "unknown"
	}
}

// Guard is the outermost failure boundary of one dispatch.
type Guard struct {
	logger  *zap.Logger
	message string
}

func NewGuard(logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{logger: logger, message: FailureMessage}
}

// Run invokes def and absorbs any error or panic. It never panics itself.
func (g *Guard) Run(ctx context.Context, def *Definition, n Notification, args ...any) Outcome {
	err := invokeSafely(ctx, def, n, args)
	if err == nil {
		return Succeeded
	}
	g.logger.Error("handler failed",
		zap.String("kind", def.Kind.String()),
		zap.String("identifier", def.Identifier),
		zap.Error(err),
	)

	replier, ok := n.(Replier)
	if !ok || replier == nil {
		return Failed
	}
	if err := g.notify(ctx, replier); err != nil {
		g.logger.Warn("failure reply failed",
			zap.String("identifier", def.Identifier),
			zap.Error(err),
		)
		return ReplyAlsoFailed
	}
	return ReplySucceeded
}

func (g *Guard) notify(ctx context.Context, replier Replier) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic recovered: %v", recovered)
		}
	}()
	if replier.Replied() || replier.Deferred() {
		return replier.FollowUp(ctx, g.message, true)
	}
	return replier.Reply(ctx, g.message, true)
}

func invokeSafely(ctx context.Context, def *Definition, n Notification, args []any) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %s: panic recovered: %v", ErrInvocation, def.Identifier, recovered)
		}
	}()
	if err := def.Invoke(ctx, n, args...); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvocation, def.Identifier, err)
	}
	return nil
}
