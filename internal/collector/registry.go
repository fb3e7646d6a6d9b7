package collector

import (
	"slices"

	"basegraph.app/radar/core/config"
)

// Registry holds the enabled collectors in the order they run.
type Registry struct {
	collectors []Collector
}

// NewRegistry builds every collector enabled in cfg. opts is applied to all
// of them; its BaseURL is ignored because each source has its own host.
func NewRegistry(cfg config.CollectorsConfig, opts Options) *Registry {
	opts.BaseURL = ""
	timeout := cfg.Timeout()

	var cs []Collector
	if cfg.Docs.Enabled {
		cs = append(cs, NewDocs(cfg.Docs, timeout, opts))
	}
	if cfg.GitHubSignals.Enabled {
		cs = append(cs, NewGitHubSignals(cfg.GitHubSignals, cfg.GitHubToken, timeout, opts))
	}
	if cfg.GitHubEmerging.Enabled {
		cs = append(cs, NewGitHubEmerging(cfg.GitHubEmerging, cfg.GitHubToken, timeout, opts))
	}
	if cfg.GitHubRepos.Enabled {
		cs = append(cs, NewGitHubRepos(cfg.GitHubRepos, cfg.GitHubToken, timeout, opts))
	}
	if cfg.Blogs.Enabled {
		cs = append(cs, NewBlogs(cfg.Blogs, timeout, opts))
	}
	if cfg.StackOverflow.Enabled {
		cs = append(cs, NewStackOverflow(cfg.StackOverflow, timeout, opts))
	}
	if cfg.Reddit.Enabled {
		cs = append(cs, NewReddit(cfg.Reddit, timeout, opts))
	}
	if cfg.HackerNews.Enabled {
		cs = append(cs, NewHackerNews(cfg.HackerNews, timeout, opts))
	}
	return &Registry{collectors: cs}
}

// NewRegistryOf wraps an explicit list, mostly for tests and one-off runs.
func NewRegistryOf(cs ...Collector) *Registry {
	return &Registry{collectors: cs}
}

func (r *Registry) All() []Collector {
	return slices.Clone(r.collectors)
}

func (r *Registry) Get(name string) (Collector, bool) {
	for _, c := range r.collectors {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.collectors))
	for i, c := range r.collectors {
		names[i] = c.Name()
	}
	return names
}
