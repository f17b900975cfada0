package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/models"
)

const sidCacheTTL = 24 * time.Hour

// sidCache is a read-through redis cache in front of the sid reverse
// index. Status callbacks hammer the same sids in quick succession;
// cache misses and redis outages just fall back to the store.
type sidCache struct {
	client *redis.Client
	logger *zap.Logger
}

func newSidCache(client *redis.Client, logger *zap.Logger) *sidCache {
	return &sidCache{client: client, logger: logger}
}

func (c *sidCache) key(sid string) string {
	return fmt.Sprintf("sid:%s", sid)
}

func (c *sidCache) Get(ctx context.Context, sid string) *models.SidLink {
	if c.client == nil || sid == "" {
		return nil
	}

	raw, err := c.client.Get(ctx, c.key(sid)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Failed to read sid cache", zap.String("sid", sid), zap.Error(err))
		}
		return nil
	}

	var link models.SidLink
	if err := json.Unmarshal(raw, &link); err != nil {
		c.logger.Warn("Corrupt sid cache entry", zap.String("sid", sid), zap.Error(err))
		return nil
	}
	return &link
}

func (c *sidCache) Store(ctx context.Context, sid string, link models.SidLink) {
	if c.client == nil || sid == "" {
		return
	}

	raw, err := json.Marshal(link)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(sid), raw, sidCacheTTL).Err(); err != nil {
		c.logger.Warn("Failed to cache sid link", zap.String("sid", sid), zap.Error(err))
	}
}

func (c *sidCache) Invalidate(ctx context.Context, sid string) {
	if c.client == nil || sid == "" {
		return
	}
	if err := c.client.Del(ctx, c.key(sid)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate sid cache", zap.String("sid", sid), zap.Error(err))
	}
}
