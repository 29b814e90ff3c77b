package epic

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// acceptChunkSize bounds how many incoming requests are accepted at once.
const acceptChunkSize = 100

type FriendsService struct {
	c *Client
}

func (s *FriendsService) Summary(ctx context.Context, accountID string) (*FriendsSummary, error) {
	var out FriendsSummary
	if err := s.c.authed(ctx, accountID, get(joinURL(s.c.cfg.FriendsURL, accountID, "summary"), &out)); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *FriendsService) List(ctx context.Context, accountID string) ([]Friend, error) {
	var out []Friend
	if err := s.c.authed(ctx, accountID, get(joinURL(s.c.cfg.FriendsURL, accountID, "friends"), &out)); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns ErrCodeFriendshipNotFound as an *APIError when the two are not
// friends.
func (s *FriendsService) Get(ctx context.Context, accountID, friendID string) (*Friend, error) {
	var out Friend
	if err := s.c.authed(ctx, accountID, get(joinURL(s.c.cfg.FriendsURL, accountID, "friends", friendID), &out)); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *FriendsService) Incoming(ctx context.Context, accountID string) ([]FriendRequest, error) {
	var out []FriendRequest
	if err := s.c.authed(ctx, accountID, get(joinURL(s.c.cfg.FriendsURL, accountID, "incoming"), &out)); err != nil {
		return nil, err
	}
	return out, nil
}

// Add sends a request, or accepts friendID's pending one.
func (s *FriendsService) Add(ctx context.Context, accountID, friendID string) error {
	return s.c.authed(ctx, accountID, call{
		method: http.MethodPost,
		url:    joinURL(s.c.cfg.FriendsURL, accountID, "friends", friendID),
	})
}

func (s *FriendsService) Remove(ctx context.Context, accountID, friendID string) error {
	return s.c.authed(ctx, accountID, call{
		method: http.MethodDelete,
		url:    joinURL(s.c.cfg.FriendsURL, accountID, "friends", friendID),
	})
}

// AcceptIncoming accepts every pending incoming request, acceptChunkSize at
// a time. It returns the ids that were accepted; individual failures are
// skipped.
func (s *FriendsService) AcceptIncoming(ctx context.Context, accountID string) ([]string, error) {
	incoming, err := s.Incoming(ctx, accountID)
	if err != nil {
		return nil, err
	}

	accepted := make([]string, 0, len(incoming))
	for start := 0; start < len(incoming); start += acceptChunkSize {
		end := min(start+acceptChunkSize, len(incoming))
		chunk := incoming[start:end]
		ok := make([]bool, len(chunk))

		var g errgroup.Group
		for i, req := range chunk {
			g.Go(func() error {
				if err := s.Add(ctx, accountID, req.AccountID); err != nil {
					s.c.logger.Warn("accepting friend request %s for %s failed: %v", req.AccountID, accountID, err)
					return nil
				}
				ok[i] = true
				return nil
			})
		}
		_ = g.Wait()

		for i, req := range chunk {
			if ok[i] {
				accepted = append(accepted, req.AccountID)
			}
		}
	}
	return accepted, nil
}
