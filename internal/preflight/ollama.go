package preflight

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/catalogmatch/internal/config"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
	"github.com/Aman-CERP/catalogmatch/internal/lifecycle"
)

// OllamaModels returns the Ollama hosts in use by cfg and the models each
// must serve. Hosts and models keep config order.
func OllamaModels(cfg *config.Config, retrievalOnly bool) ([]string, map[string][]string) {
	var hosts []string
	models := make(map[string][]string)
	add := func(host, model string) {
		host = strings.TrimRight(host, "/")
		if _, ok := models[host]; !ok {
			hosts = append(hosts, host)
		}
		for _, m := range models[host] {
			if m == model {
				return
			}
		}
		models[host] = append(models[host], model)
	}

	if cfg.Embeddings.Provider == "ollama" {
		host, model := cfg.Embeddings.Host, cfg.Embeddings.Model
		if host == "" {
			host = embed.DefaultOllamaHost
		}
		if model == "" {
			model = embed.DefaultOllamaModel
		}
		add(host, model)
	}
	if !retrievalOnly && cfg.LLM.Provider == "ollama" {
		host := cfg.LLM.BaseURL
		if host == "" || host == config.DefaultGroqBaseURL {
			host = lifecycle.DefaultHost
		}
		add(host, cfg.LLM.Model)
	}
	return hosts, models
}

// CheckOllama verifies every Ollama host in use is reachable and has its
// models pulled.
func (c *Checker) CheckOllama(ctx context.Context) CheckResult {
	result := CheckResult{Name: "ollama", Required: true}

	hosts, models := OllamaModels(c.cfg, c.skipModel)
	var ready []string
	for _, host := range hosts {
		status, err := lifecycle.NewOllamaManager(host).Status(ctx, "")
		if err != nil {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("%s: %v", host, err)
			return result
		}
		if !status.Running {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("not reachable at %s", host)
			result.Details = "Start it with `ollama serve`"
			return result
		}

		var missing []string
		for _, m := range models[host] {
			if !lifecycle.ContainsModel(status.Models, m) {
				missing = append(missing, m)
			}
		}
		if len(missing) > 0 {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("%s is missing %s", host, strings.Join(missing, ", "))
			result.Details = "Run `catalogmatch pull`"
			return result
		}
		ready = append(ready, fmt.Sprintf("%s (%s)", host, strings.Join(models[host], ", ")))
	}

	result.Status = StatusPass
	result.Message = strings.Join(ready, "; ")
	return result
}
