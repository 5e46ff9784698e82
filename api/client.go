// Package api is the client for the backend case management REST API.
// The backend is best effort: a failed call is logged by the caller and
// never blocks recording.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/roadeye/ivms/config"
)

const requestTimeout = 10 * time.Second

// Client talks to the backend using cookie based CSRF authentication
type Client struct {
	cfg  config.API
	http *http.Client

	token     string
	csrfToken string
	sessionID string

	log zerolog.Logger
}

func NewClient(cfg config.API, log zerolog.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: requestTimeout},
		log:  log,
	}
}

// Login authenticates with the credentials file and captures the session
// cookies used on every subsequent call
func (c *Client) Login() error {

	v := viper.New()
	v.SetConfigFile(c.cfg.CredsFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"username": v.GetString("user"),
		"password": v.GetString("pass"),
	})

	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.cfg.BaseURL+c.cfg.AuthPath,
		"application/json", bytes.NewReader(body))

	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authenticating: status %d", resp.StatusCode)
	}

	var auth struct {
		Key string `json:"key"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return fmt.Errorf("decoding auth response: %w", err)
	}

	c.token = auth.Key

	for _, cookie := range resp.Cookies() {
		switch cookie.Name {
		case "csrftoken":
			c.csrfToken = cookie.Value
		case "sessionid":
			c.sessionID = cookie.Value
		}
	}

	c.log.Info().Str("url", c.cfg.BaseURL).Msg("backend login ok")

	return nil
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("X-CSRFToken", c.csrfToken)
	req.Header.Set("Cookie", fmt.Sprintf("csrftoken=%s; sessionid=%s",
		c.csrfToken, c.sessionID))
}

// EventStatusID resolves a status name to its backend id, -1 when unknown
func (c *Client) EventStatusID(status string) int {

	var items []struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	}

	if err := c.getJSON(c.cfg.StatusPath, &items); err != nil {
		c.log.Error().Err(err).Msg("listing event statuses failed")
		return -1
	}

	for _, item := range items {
		if item.Status == status {
			return item.ID
		}
	}

	return -1
}

// ViolationTypeID resolves a violation type name to its backend id, -1
// when unknown
func (c *Client) ViolationTypeID(vtype string) int {

	var items []struct {
		ID            int    `json:"id"`
		ViolationType string `json:"violationType"`
	}

	if err := c.getJSON(c.cfg.ViolationTypes, &items); err != nil {
		c.log.Error().Err(err).Msg("listing violation types failed")
		return -1
	}

	for _, item := range items {
		if item.ViolationType == vtype {
			return item.ID
		}
	}

	return -1
}

// UpdateEvent marks an event recorded and attaches its recording path
func (c *Client) UpdateEvent(eventID int, recordingPath,
	violationType string) error {

	payload := map[string]any{
		"statusId":        c.EventStatusID("Recorded"),
		"recordingPath":   recordingPath,
		"violationTypeId": c.ViolationTypeID(violationType),
		"plateNum":        "-",
		"plateType":       "-",
		"plateState":      "-",
	}

	return c.postJSON(c.cfg.EventsPath, payload)
}

// UpdatePlate reports a confirmed plate read with its cropped image path
func (c *Client) UpdatePlate(imagePath, plateNum string, plateType int,
	plateState, plateCountry string) error {

	payload := map[string]any{
		"image_path":    imagePath,
		"plate_num":     plateNum,
		"plate_type":    plateType,
		"plate_state":   plateState,
		"plate_country": plateCountry,
	}

	return c.postJSON(c.cfg.PlatesPath, payload)
}

func (c *Client) getJSON(path string, out any) error {

	req, err := http.NewRequest(http.MethodGet, c.cfg.BaseURL+path, nil)

	if err != nil {
		return err
	}

	c.setAuth(req)

	resp, err := c.http.Do(req)

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(path string, payload any) error {

	body, err := json.Marshal(payload)

	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+path,
		bytes.NewReader(body))

	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.http.Do(req)

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}

	return nil
}
