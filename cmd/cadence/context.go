package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"cadence/internal/config"
	"cadence/internal/store"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the scheduling database directly for read and maintenance
// commands. WAL mode keeps this safe alongside a running daemon.
func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open scheduling store: %w", err)
	}
	defer st.Close()
	return fn(st)
}

func (c *commandContext) apiBase() (string, error) {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimSuffix(strings.TrimSpace(*c.apiFlag), "/"), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return "", errors.New("api bind address not configured; pass --api")
	}
	return "http://" + bind, nil
}

func (c *commandContext) apiGet(path string, out any) error {
	base, err := c.apiBase()
	if err != nil {
		return err
	}
	resp, err := apiHTTPClient().Get(base + path)
	if err != nil {
		return wrapAPIError(err, base)
	}
	return decodeAPIResponse(resp, out)
}

func (c *commandContext) apiPost(path string, body, out any) error {
	base, err := c.apiBase()
	if err != nil {
		return err
	}
	payload := []byte("{}")
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	resp, err := apiHTTPClient().Post(base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return wrapAPIError(err, base)
	}
	return decodeAPIResponse(resp, out)
}

func apiHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func decodeAPIResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func wrapAPIError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start the daemon with `cadenced`", base)
	}
	return fmt.Errorf("connect to daemon at %s: %w", base, err)
}
