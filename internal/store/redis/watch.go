package redis

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Watch calls onChange with the key of every settings document saved by
// another instance. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func(key string)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "redis subscribe %s", s.channel)
	}
	s.log.Info("watching settings changes", zap.String("channel", s.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, key, found := strings.Cut(msg.Payload, " ")
			if !found || origin == s.instance {
				continue
			}
			s.log.Debug("settings changed elsewhere", zap.String("key", key), zap.String("origin", origin))
			onChange(key)
		}
	}
}
