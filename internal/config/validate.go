package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScheduling(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateCostGuard(); err != nil {
		return err
	}
	if err := c.validatePlanningNotes(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScheduling() error {
	if c.Scheduling.LeadTimeMinutes <= 0 {
		return errors.New("scheduling.lead_time_minutes must be positive")
	}
	if c.Scheduling.TickIntervalMinutes <= 0 {
		return errors.New("scheduling.tick_interval_minutes must be positive")
	}
	if len(c.Scheduling.RetryCheckpointsMinutes) == 0 {
		return errors.New("scheduling.retry_checkpoints_minutes must contain at least one checkpoint")
	}
	prev := 0
	for i, minutes := range c.Scheduling.RetryCheckpointsMinutes {
		if minutes <= 0 {
			return fmt.Errorf("scheduling.retry_checkpoints_minutes[%d] must be positive", i)
		}
		if i > 0 && minutes >= prev {
			return errors.New("scheduling.retry_checkpoints_minutes must be strictly decreasing (largest offset first)")
		}
		prev = minutes
	}
	return nil
}

func (c *Config) validateDispatch() error {
	if c.Dispatch.LeaseTTLSeconds <= 0 {
		return errors.New("dispatch.lease_ttl_seconds must be positive")
	}
	if c.Dispatch.LeaseTTLSeconds < c.Worker.RequestTimeoutSeconds {
		return errors.New("dispatch.lease_ttl_seconds must exceed worker.request_timeout_seconds")
	}
	if c.Dispatch.MaxPerTick <= 0 {
		return errors.New("dispatch.max_per_tick must be positive")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.InvokeURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/cadence/config.toml"
		}
		return fmt.Errorf("worker.invoke_url is required. Edit %s (create with 'cadence config init')", defaultPath)
	}
	if c.Worker.CallbackBaseURL == "" {
		return errors.New("worker.callback_base_url is required so the worker can report results")
	}
	if c.Worker.RequestTimeoutSeconds <= 0 {
		return errors.New("worker.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateCostGuard() error {
	if c.CostGuard.DailyLimitUSD < 0 {
		return errors.New("cost_guard.daily_limit_usd must not be negative")
	}
	return nil
}

func (c *Config) validatePlanningNotes() error {
	if c.PlanningNotes.MaxNoteLength <= 0 {
		return errors.New("planning_notes.max_note_length must be positive")
	}
	if c.PlanningNotes.MaxRollovers < 0 {
		return errors.New("planning_notes.max_rollovers must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
