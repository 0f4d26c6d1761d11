// Package notify содержит реализации ranking.Dispatcher. Доставка
// уведомлений пользователям выполняется внешним сервисом.
package notify

import (
	"context"
	"encoding/json"

	"reservations/internal/ranking"
	"reservations/models"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	_ ranking.Dispatcher = (*Log)(nil)
	_ ranking.Dispatcher = (*RedisStream)(nil)
	_ ranking.Dispatcher = (*RateLimited)(nil)
	_ ranking.Dispatcher = Fanout(nil)
)

// Log пишет события в лог
type Log struct {
	log logrus.FieldLogger
}

func NewLog(log logrus.FieldLogger) *Log {
	return &Log{log: log}
}

func (d *Log) Emit(ctx context.Context, ev models.RankEvent) error {
	fields := logrus.Fields{
		"kind":      ev.Kind,
		"item_id":   ev.ItemID,
		"offer_id":  ev.OfferID,
		"bidder_id": ev.BidderID,
		"amount":    ev.Amount.String(),
		"new_rank":  ev.NewRank,
	}
	if ev.OldRank != nil {
		fields["old_rank"] = *ev.OldRank
	}
	if ev.SupersededByID != nil {
		fields["superseded_by_id"] = *ev.SupersededByID
	}
	if ev.Direction != "" {
		fields["direction"] = ev.Direction
	}
	d.log.WithFields(fields).Info("rank event")
	return nil
}

// StreamAdder часть redis.Cmdable, нужная RedisStream
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream публикует события в Redis Stream для сервиса доставки
type RedisStream struct {
	client StreamAdder
	stream string
	maxLen int64
}

func NewRedisStream(client StreamAdder, stream string, maxLen int64) *RedisStream {
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

func (d *RedisStream) Emit(ctx context.Context, ev models.RankEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal rank event")
	}
	args := &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]interface{}{
			"kind":    string(ev.Kind),
			"item_id": ev.ItemID,
			"payload": string(payload),
		},
	}
	if d.maxLen > 0 {
		args.MaxLen = d.maxLen
		args.Approx = true
	}
	if err := d.client.XAdd(ctx, args).Err(); err != nil {
		return errors.Wrapf(err, "xadd %s", d.stream)
	}
	return nil
}

// RateLimited ограничивает частоту отправки событий
type RateLimited struct {
	next    ranking.Dispatcher
	limiter *rate.Limiter
}

func NewRateLimited(next ranking.Dispatcher, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (d *RateLimited) Emit(ctx context.Context, ev models.RankEvent) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}
	return d.next.Emit(ctx, ev)
}

// Fanout отправляет событие во все диспетчеры и возвращает первую ошибку
type Fanout []ranking.Dispatcher

func (f Fanout) Emit(ctx context.Context, ev models.RankEvent) error {
	var first error
	for _, d := range f {
		if err := d.Emit(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
