package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil && s.deps.Rotate.Store != nil
}

func (s Service) Issue(ctx context.Context, userID, sessionID string, permissions []string) IssueResult {
	return RunIssue(ctx, userID, sessionID, permissions, s.deps.Issue)
}

func (s Service) Rotate(ctx context.Context, refreshToken string) RotateResult {
	return RunRotate(ctx, refreshToken, s.deps.Rotate)
}

func (s Service) ValidateAccess(tokenStr string) ValidateResult {
	return RunValidateAccess(tokenStr, s.deps.Validate)
}

func (s Service) ValidateRefresh(ctx context.Context, tokenStr string, checkFamily bool) ValidateResult {
	return RunValidateRefresh(ctx, tokenStr, checkFamily, s.deps.Validate)
}

func (s Service) InvalidateSession(ctx context.Context, sessionID, reason string) InvalidateResult {
	return RunInvalidateSession(ctx, sessionID, reason, s.deps.Invalidate)
}

func (s Service) InvalidateAll(ctx context.Context, userID, keepSessionID, reason string) ([]InvalidateResult, error) {
	return RunInvalidateAll(ctx, userID, keepSessionID, reason, s.deps.Invalidate)
}
