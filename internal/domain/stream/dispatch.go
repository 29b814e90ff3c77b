package stream

import (
	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/transport/presence"
)

// dispatch decodes one inbound message, applies it to the mirror and then
// publishes it. It runs on the connection's read goroutine.
func (s *Session) dispatch(m presence.Message) {
	if m.Type != "" && m.Type != "normal" {
		return
	}
	if m.Body == "" || m.From != s.registry.cfg.AdminSender {
		return
	}
	if !gjson.Valid(m.Body) {
		s.logger.Debug("dropping non-JSON message for %s", s.accountID)
		return
	}
	topic := gjson.Get(m.Body, "type").String()
	if !eventbus.KnownNotification(topic) {
		return
	}

	payload, err := decodeNotification(topic, m.Body)
	if err != nil {
		s.logger.Warn("decoding %s for %s failed: %v", topic, s.accountID, err)
		return
	}

	if mirror := s.registry.mirror; mirror != nil {
		mirror.Apply(s.ctx, s.accountID, topic, payload)
	}
	s.bus.Publish(topic, payload)
}

func decodeNotification(topic, body string) (any, error) {
	switch topic {
	case eventbus.EventMemberStateUpdated:
		return decodeAs[eventbus.MemberStateUpdated](body)
	case eventbus.EventPartyUpdated:
		return decodeAs[eventbus.PartyUpdated](body)
	case eventbus.EventPartyPing:
		return decodeAs[eventbus.PartyPing](body)
	case eventbus.EventFriendshipRequest:
		return decodeAs[eventbus.FriendshipRequest](body)
	case eventbus.EventFriendshipRemove:
		return decodeAs[eventbus.FriendshipRemove](body)
	default:
		return decodeAs[eventbus.MemberEvent](body)
	}
}

func decodeAs[T any](body string) (any, error) {
	var v T
	if err := sonic.UnmarshalString(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}
