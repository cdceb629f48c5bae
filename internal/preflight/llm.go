package preflight

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/catalogmatch/internal/llm"
)

// CheckLLMCredentials checks that the configured provider has what it
// needs to authenticate. No request is sent.
func (c *Checker) CheckLLMCredentials() CheckResult {
	result := CheckResult{Name: "llm", Required: true}
	l := c.cfg.LLM

	switch l.Provider {
	case "openai", "":
		if l.APIKey == "" {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("no API key for %s", l.BaseURL)
			result.Details = "Set GROQ_API_KEY or CATALOGMATCH_LLM_API_KEY"
			return result
		}
	case "router":
		if l.BaseURL == "" {
			result.Status = StatusFail
			result.Message = "router provider needs llm.base_url"
			return result
		}
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s %s", l.Provider, l.Model)
	result.Details = l.BaseURL
	return result
}

// CheckCache pings Redis when it is the configured cache backend.
func (c *Checker) CheckCache(ctx context.Context) CheckResult {
	result := CheckResult{Name: "cache", Required: true}
	cc := c.cfg.Cache

	if cc.Backend != "redis" {
		result.Status = StatusPass
		result.Message = cc.Backend
		return result
	}

	cache, err := llm.NewRedisCache(ctx, llm.RedisConfig{
		Addr:     cc.RedisAddr,
		Password: cc.RedisPassword,
		DB:       cc.RedisDB,
		TTL:      c.cfg.CacheTTL(),
	})
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("redis at %s unreachable: %v", cc.RedisAddr, err)
		result.Details = "Start Redis or set cache.backend to memory or none"
		return result
	}
	_ = cache.Close()

	result.Status = StatusPass
	result.Message = fmt.Sprintf("redis at %s", cc.RedisAddr)
	return result
}
