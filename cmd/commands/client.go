package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/editthread/internal/config"
)

// gatewayFlag lets client commands reach a gateway other than the configured one.
var gatewayFlag = &cli.StringFlag{
	Name:  "gateway",
	Usage: "Gateway address host:port (default from config)",
}

// loadConfig reads the --config file, falling back to defaults when it is missing.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func gatewayAddr(cmd *cli.Command) (string, error) {
	if cmd.IsSet("gateway") {
		return cmd.String("gateway"), nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port), nil
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(cmd *cli.Command) (*apiClient, error) {
	addr, err := gatewayAddr(cmd)
	if err != nil {
		return nil, err
	}
	return &apiClient{base: "http://" + addr, http: &http.Client{}}, nil
}

// do sends body as JSON and decodes a JSON answer into out. Non-2xx answers
// become errors carrying the gateway's error text.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("gateway: %s", e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func optionalTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return formatTime(t)
}
