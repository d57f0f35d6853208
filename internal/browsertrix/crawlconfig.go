package browsertrix

// Wire types for the crawl configuration the service submits. Field
// values mirror what the archive has always requested: a single-page
// crawl with autoscroll behaviors and a generous post-load delay so
// slow media finishes loading before capture.

type seed struct {
	URL       string `json:"url"`
	ScopeType string `json:"scopeType"`
}

type seedsConfig struct {
	Seeds            []seed   `json:"seeds"`
	ScopeType        string   `json:"scopeType"`
	ExtraHops        int      `json:"extraHops"`
	UseSitemap       bool     `json:"useSitemap"`
	FailOnFailedSeed bool     `json:"failOnFailedSeed"`
	PostLoadDelay    int      `json:"postLoadDelay"`
	Lang             string   `json:"lang"`
	Exclude          []string `json:"exclude"`
	Behaviors        string   `json:"behaviors"`
}

type crawlConfig struct {
	JobType            string      `json:"jobType"`
	Name               string      `json:"name"`
	Scale              int         `json:"scale"`
	ProfileID          string      `json:"profileid"`
	RunNow             bool        `json:"runNow"`
	Schedule           string      `json:"schedule"`
	CrawlTimeout       int         `json:"crawlTimeout"`
	MaxCrawlSize       int         `json:"maxCrawlSize"`
	Tags               []string    `json:"tags"`
	AutoAddCollections []string    `json:"autoAddCollections"`
	Config             seedsConfig `json:"config"`
	CrawlerChannel     string      `json:"crawlerChannel"`
}

func newCrawlConfig(targetURL string, browserProfile string) crawlConfig {
	return crawlConfig{
		JobType:            "custom",
		Scale:              1,
		ProfileID:          browserProfile,
		RunNow:             true,
		CrawlTimeout:       0,
		MaxCrawlSize:       1000000000,
		Tags:               []string{},
		AutoAddCollections: []string{},
		Config: seedsConfig{
			Seeds:         []seed{{URL: targetURL, ScopeType: "page"}},
			ScopeType:     "page",
			PostLoadDelay: 120,
			Lang:          "en",
			Exclude:       []string{},
			Behaviors:     "autoscroll,autoplay,autofetch,siteSpecific",
		},
		CrawlerChannel: "default",
	}
}
