package groupme

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"local/groupmebridge/bridge"
)

const (
	defaultAPIBase        = "https://api.groupme.com/v3"
	defaultImageUploadURL = "https://image.groupme.com/pictures"

	// Explicit request timeout; the API contract has no retry policy, so a
	// hung call must fail fast.
	requestTimeout = 10 * time.Second
)

// Client talks to the GroupMe REST API. Every call is fire-and-forget from
// the caller's perspective: fresh request, no retries, non-2xx surfaces as an
// error.
type Client struct {
	botID       string
	accessToken string
	groupID     string

	apiBase        string
	imageUploadURL string
	http           *http.Client
}

func NewClient(botID, accessToken, groupID string) *Client {
	return &Client{
		botID:          botID,
		accessToken:    accessToken,
		groupID:        groupID,
		apiBase:        defaultAPIBase,
		imageUploadURL: defaultImageUploadURL,
		http:           &http.Client{Timeout: requestTimeout},
	}
}

// PostMessage sends a bot message, optionally with an image attachment.
// GroupMe acknowledges with 202 and returns no message id.
func (c *Client) PostMessage(text, imageURL string) error {
	payload := map[string]interface{}{
		"bot_id": c.botID,
		"text":   text,
	}
	if imageURL != "" {
		payload["attachments"] = []map[string]string{
			{"type": "image", "url": imageURL},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.apiBase+"/bots/post", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to GroupMe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("GroupMe bot post returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// UploadImage downloads an image from its source URL and uploads it to the
// GroupMe image service, returning the hosted URL.
func (c *Client) UploadImage(sourceURL string) (string, error) {
	if c.accessToken == "" {
		return "", fmt.Errorf("GROUPME_ACCESS_TOKEN not set")
	}

	resp, err := c.http.Get(sourceURL)
	if err != nil {
		return "", fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "discord_image.png")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, c.imageUploadURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Access-Token", c.accessToken)

	uploadResp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}
	defer uploadResp.Body.Close()

	if uploadResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image upload returned HTTP %d", uploadResp.StatusCode)
	}

	var result struct {
		Payload struct {
			URL string `json:"url"`
		} `json:"payload"`
	}
	if err := json.NewDecoder(uploadResp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Payload.URL == "" {
		return "", fmt.Errorf("image upload response missing url")
	}
	return result.Payload.URL, nil
}

type pollEnvelope struct {
	Response struct {
		Poll struct {
			Data Poll `json:"data"`
		} `json:"poll"`
	} `json:"response"`
}

// CreatePoll creates a native GroupMe poll in the monitored group and returns
// its poll id. Expects 201 Created.
func (c *Client) CreatePoll(subject string, options []string, expiresAt time.Time) (string, error) {
	if c.accessToken == "" || c.groupID == "" {
		return "", fmt.Errorf("GROUPME_ACCESS_TOKEN or GROUPME_GROUP_ID not set")
	}

	opts := make([]map[string]string, len(options))
	for i, title := range options {
		opts[i] = map[string]string{"title": title}
	}
	payload := map[string]interface{}{
		"subject":    subject,
		"options":    opts,
		"expiration": expiresAt.Unix(),
		"type":       "single",
		"visibility": "public",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/poll/%s?token=%s", c.apiBase, c.groupID, url.QueryEscape(c.accessToken))
	resp, err := c.http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating GroupMe poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("GroupMe poll creation returned HTTP %d", resp.StatusCode)
	}

	var envelope pollEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", err
	}
	if envelope.Response.Poll.Data.ID == "" {
		return "", fmt.Errorf("poll creation response missing poll id")
	}
	return envelope.Response.Poll.Data.ID, nil
}

// GetPoll fetches a poll's status and per-option vote counts.
func (c *Client) GetPoll(pollID string) (*Poll, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("GROUPME_ACCESS_TOKEN not set")
	}

	endpoint := fmt.Sprintf("%s/poll/%s?token=%s", c.apiBase, pollID, url.QueryEscape(c.accessToken))
	resp, err := c.http.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching GroupMe poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GroupMe poll fetch returned HTTP %d", resp.StatusCode)
	}

	var envelope pollEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	poll := envelope.Response.Poll.Data
	return &poll, nil
}

// PollResults adapts GetPoll to the bridge port: question plus ordered
// per-option tallies.
func (c *Client) PollResults(pollID string) (string, []bridge.PollTally, error) {
	poll, err := c.GetPoll(pollID)
	if err != nil {
		return "", nil, err
	}
	tallies := make([]bridge.PollTally, len(poll.Options))
	for i, opt := range poll.Options {
		tallies[i] = bridge.PollTally{Option: opt.Title, Votes: opt.Votes}
	}
	return poll.Subject, tallies, nil
}

// ListPolls lists the polls of the monitored group.
func (c *Client) ListPolls() ([]Poll, error) {
	if c.accessToken == "" || c.groupID == "" {
		return nil, fmt.Errorf("GROUPME_ACCESS_TOKEN or GROUPME_GROUP_ID not set")
	}

	endpoint := fmt.Sprintf("%s/groups/%s/polls?token=%s", c.apiBase, c.groupID, url.QueryEscape(c.accessToken))
	resp, err := c.http.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("listing GroupMe polls: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GroupMe poll list returned HTTP %d", resp.StatusCode)
	}

	var envelope struct {
		Response struct {
			Polls []struct {
				Data Poll `json:"data"`
			} `json:"polls"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}

	polls := make([]Poll, len(envelope.Response.Polls))
	for i, p := range envelope.Response.Polls {
		polls[i] = p.Data
	}
	return polls, nil
}

// MessageContext looks up a group message by id, scanning the most recent
// page, and returns its author and text for reaction context.
func (c *Client) MessageContext(messageID string) (string, string, error) {
	if c.accessToken == "" || c.groupID == "" {
		return "", "", fmt.Errorf("GROUPME_ACCESS_TOKEN or GROUPME_GROUP_ID not set")
	}

	endpoint := fmt.Sprintf("%s/groups/%s/messages?token=%s&limit=100", c.apiBase, c.groupID, url.QueryEscape(c.accessToken))
	resp, err := c.http.Get(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("fetching GroupMe messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("GroupMe message fetch returned HTTP %d", resp.StatusCode)
	}

	var envelope struct {
		Response struct {
			Messages []CallbackMessage `json:"messages"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", "", err
	}

	for _, msg := range envelope.Response.Messages {
		if msg.ID == messageID {
			return msg.Name, msg.Text, nil
		}
	}
	return "", "", fmt.Errorf("message %s not found in recent history", messageID)
}
