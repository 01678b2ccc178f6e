package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Daily output quota lives in Redis so the bot process can show the remaining
// balance too. Keys roll over at local midnight via TTL.

func keyQuota(user int64, ymd string) string {
	return fmt.Sprintf("quota:%d:%s", user, ymd)
}

func today() string { return time.Now().Format("20060102") }

func untilMidnight() time.Duration {
	now := time.Now()
	tom := now.Add(24 * time.Hour)
	mid := time.Date(tom.Year(), tom.Month(), tom.Day(), 0, 0, 0, 0, now.Location())
	return time.Until(mid)
}

func (w *worker) remainingToday(ctx context.Context, user int64) int {
	used, _ := w.rdb.Get(ctx, keyQuota(user, today())).Int()
	if used < 0 {
		used = 0
	}
	rem := w.cfg.DailyMax - used
	if rem < 0 {
		rem = 0
	}
	return rem
}

func (w *worker) chargeDaily(ctx context.Context, user int64, n int) {
	key := keyQuota(user, today())
	if err := w.rdb.IncrBy(ctx, key, int64(n)).Err(); err != nil {
		log.Warn().Err(err).Int64("uid", user).Msg("quota charge failed")
		return
	}
	_ = w.rdb.Expire(ctx, key, untilMidnight()).Err()
}
