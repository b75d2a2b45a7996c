package config

// Default returns the configuration used when no file or environment value
// overrides a field.
func Default() Config {
	return Config{
		HTTP: HTTP{Addr: ":8080"},
		Store: Store{
			Driver:                  "postgres",
			SQLitePath:              "pipeline.db",
			MaxConns:                10,
			StatementTimeoutSeconds: 30,
			Migrate:                 true,
		},
		Redis: Redis{
			Addr:      "localhost:6379",
			KeyPrefix: "handoff:",
		},
		Queue: Queue{
			URL:            "http://localhost:8080",
			LeaseSeconds:   300,
			TimeoutSeconds: 15,
		},
		Worker: Worker{
			BatchSize:       5,
			DirectScanLimit: 3,
			Concurrency:     1,
			TargetLanguage:  "en",
			Next: map[string][]string{
				"extract":   {"vectorize"},
				"vectorize": {"summarize"},
			},
		},
		Remote: Remote{
			TimeoutSeconds: 60,
		},
		Orchestrator: Orchestrator{
			IntervalSeconds:  60,
			WorkerURLs:       map[string]string{},
			Steps:            []string{"extract", "vectorize", "summarize", "translate", "tag-generate"},
			RetryWindowHours: 24,
			RetryLimit:       10,
			LockPath:         "/tmp/article-pipeline-orchestrator.lock",
			SweepEnabled:     true,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}
