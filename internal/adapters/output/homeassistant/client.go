package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"hydrocore/internal/domain/model"
)

var errNotConfigured = errors.New("home assistant not configured")

// Entities maps one device's actuators onto Home Assistant entity IDs,
// e.g. switch.basil_pump and light.basil_grow.
type Entities struct {
	Pump  string `yaml:"pump" json:"pump"`
	Light string `yaml:"light" json:"light"`
}

// Client mirrors dispatched commands onto Home Assistant services.
type Client struct {
	url        string
	token      string
	entities   map[string]Entities
	httpClient *http.Client
	mu         sync.RWMutex
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		entities:   map[string]Entities{},
	}
}

func (c *Client) Configure(url, token string, entities map[string]Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = strings.TrimSuffix(url, "/")
	c.token = token
	c.entities = make(map[string]Entities, len(entities))
	for name, e := range entities {
		c.entities[name] = e
	}
}

func (c *Client) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url != "" && c.token != ""
}

func (c *Client) Name() string { return "home_assistant" }

// Mirror calls <domain>.turn_on/turn_off on the entity mapped to the
// command's actuator. Devices without a mapping are skipped.
func (c *Client) Mirror(ctx context.Context, device *model.Device, cmd model.Command) error {
	c.mu.RLock()
	urlBase := c.url
	token := c.token
	mapping, ok := c.entities[device.Name]
	c.mu.RUnlock()

	if urlBase == "" || token == "" {
		return errNotConfigured
	}
	if !ok {
		return nil
	}

	entityID := mapping.Light
	if cmd.IsPump() {
		entityID = mapping.Pump
	}
	if entityID == "" {
		return nil
	}

	service := "turn_off"
	if cmd.TurnsOn() {
		service = "turn_on"
	}
	return c.callService(ctx, urlBase, token, entityID, service)
}

// CheckConnection hits the API root so a bad URL or token shows up at startup.
func (c *Client) CheckConnection(ctx context.Context) error {
	c.mu.RLock()
	urlBase := c.url
	token := c.token
	c.mu.RUnlock()

	if urlBase == "" || token == "" {
		return errNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlBase+"/api/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HA API error: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) callService(ctx context.Context, urlBase, token, entityID, service string) error {
	domain, _, found := strings.Cut(entityID, ".")
	if !found || domain == "" {
		return fmt.Errorf("invalid entity id %q", entityID)
	}

	body, err := json.Marshal(map[string]string{"entity_id": entityID})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/services/%s/%s", urlBase, domain, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HA API error: %d", resp.StatusCode)
	}
	return nil
}
