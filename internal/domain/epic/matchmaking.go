package epic

import "context"

type MatchmakingService struct {
	c *Client
}

// FindPlayer looks up targetID's tracked match session. It returns nil when
// the player is not in a tracked session.
func (s *MatchmakingService) FindPlayer(ctx context.Context, accountID, targetID string) (*MatchSession, error) {
	var out []MatchSession
	if err := s.c.authed(ctx, accountID, get(joinURL(s.c.cfg.MatchmakingURL, "findPlayer", targetID), &out)); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}
