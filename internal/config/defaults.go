package config

const (
	defaultDataDir             = "~/.local/share/cadence/data"
	defaultLogDir              = "~/.local/share/cadence/logs"
	defaultAPIBind             = "127.0.0.1:7810"
	defaultLeadTimeMinutes     = 120
	defaultTickIntervalMinutes = 5
	defaultLeaseTTLSeconds     = 300
	defaultMaxPerTick          = 10
	defaultWorkerTimeout       = 30
	defaultPriorMemoryChars    = 4000
	defaultMaxNoteLength       = 2000
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNotifyTimeout       = 10
)

func defaultRetryCheckpoints() []int {
	return []int{105, 75, 30}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Scheduling: Scheduling{
			LeadTimeMinutes:         defaultLeadTimeMinutes,
			TickIntervalMinutes:     defaultTickIntervalMinutes,
			RetryCheckpointsMinutes: defaultRetryCheckpoints(),
		},
		Dispatch: Dispatch{
			LeaseTTLSeconds: defaultLeaseTTLSeconds,
			MaxPerTick:      defaultMaxPerTick,
		},
		Worker: Worker{
			RequestTimeoutSeconds: defaultWorkerTimeout,
			PriorMemoryMaxChars:   defaultPriorMemoryChars,
		},
		PlanningNotes: PlanningNotes{
			MaxNoteLength: defaultMaxNoteLength,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Published:      true,
			Failures:       true,
			CostLimit:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
