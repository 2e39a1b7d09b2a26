package compliance

import (
	"sort"
	"time"
)

// DomainUsage is a snapshot of the pacing state of one domain.
type DomainUsage struct {
	Domain          string         `json:"domain" yaml:"domain"`
	LastMinute      int            `json:"last_minute" yaml:"last_minute"`
	LastHour        int            `json:"last_hour" yaml:"last_hour"`
	LastDay         int            `json:"last_day" yaml:"last_day"`
	CrawlDelay      time.Duration  `json:"crawl_delay" yaml:"crawl_delay"`
	LastRequestTime time.Time      `json:"last_request_time,omitzero" yaml:"last_request_time,omitempty"`
	Denials         map[string]int `json:"denials,omitempty" yaml:"denials,omitempty"`
}

// Report is a snapshot of gate activity, used for the compliance section of
// session reports.
type Report struct {
	GeneratedAt    time.Time     `json:"generated_at" yaml:"generated_at"`
	Limits         Limits        `json:"limits" yaml:"limits"`
	RobotsChecks   int64         `json:"robots_checks" yaml:"robots_checks"`
	RobotsFetches  int64         `json:"robots_fetches" yaml:"robots_fetches"`
	RobotsDegraded int64         `json:"robots_degraded" yaml:"robots_degraded"`
	RobotsOrigins  int           `json:"robots_origins" yaml:"robots_origins"`
	Domains        []DomainUsage `json:"domains" yaml:"domains"`
}

// TotalDenials sums denials of all domains for a reason.
func (r *Report) TotalDenials(reason string) int {
	total := 0
	for _, d := range r.Domains {
		total += d.Denials[reason]
	}
	return total
}

// Report returns a snapshot of the gate's counters and per-domain usage,
// sorted by domain.
func (g *Gate) Report() *Report {
	now := g.clock.Now()

	g.mu.Lock()
	keys := make([]string, 0, len(g.domains))
	states := make(map[string]*domainState, len(g.domains))
	for k, st := range g.domains {
		keys = append(keys, k)
		states[k] = st
	}
	g.mu.Unlock()
	sort.Strings(keys)

	usage := make([]DomainUsage, 0, len(keys))
	for _, k := range keys {
		usage = append(usage, states[k].usage(k, now))
	}

	return &Report{
		GeneratedAt:    now,
		Limits:         g.limits,
		RobotsChecks:   g.robotsChecks.Load(),
		RobotsFetches:  g.robotsFetches.Load(),
		RobotsDegraded: g.robotsDegraded.Load(),
		RobotsOrigins:  g.robots.origins(),
		Domains:        usage,
	}
}

func (st *domainState) usage(domain string, now time.Time) DomainUsage {
	st.mu.Lock()
	defer st.mu.Unlock()

	u := DomainUsage{
		Domain:     domain,
		LastMinute: st.countSince(now.Add(-windowMinute)),
		LastHour:   st.countSince(now.Add(-windowHour)),
		LastDay:    st.countSince(now.Add(-windowDay)),
		CrawlDelay: st.crawlDelay,
	}
	if n := len(st.granted); n > 0 {
		u.LastRequestTime = st.granted[n-1]
	}
	if len(st.denied) > 0 {
		u.Denials = make(map[string]int, len(st.denied))
		for reason, count := range st.denied {
			u.Denials[reason] = count
		}
	}
	return u
}
