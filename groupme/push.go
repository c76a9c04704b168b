package groupme

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pushURL           = "wss://push.groupme.com/faye"
	reconnectInterval = 7 * time.Second
	heartbeatInterval = 30 * time.Second
)

// fayeMessage is one frame of the Faye protocol GroupMe's push service
// speaks. Frames travel in JSON arrays.
type fayeMessage struct {
	Channel      string                 `json:"channel"`
	ClientID     string                 `json:"clientId,omitempty"`
	ID           string                 `json:"id,omitempty"`
	Version      string                 `json:"version,omitempty"`
	ConnTypes    []string               `json:"supportedConnectionTypes,omitempty"`
	ConnType     string                 `json:"connectionType,omitempty"`
	Subscription string                 `json:"subscription,omitempty"`
	Successful   bool                   `json:"successful,omitempty"`
	Ext          map[string]interface{} `json:"ext,omitempty"`
	Data         json.RawMessage        `json:"data,omitempty"`
}

type pushData struct {
	Type    string          `json:"type"`
	Subject json.RawMessage `json:"subject"`
}

// PushClient subscribes to GroupMe's push (Faye) channel for the monitored
// group, an optional second inbound path alongside the HTTP webhook. It owns
// its websocket lifecycle: write queue, heartbeat, reconnect on drop.
type PushClient struct {
	accessToken string
	groupID     string

	conn      *websocket.Conn
	connected bool
	connMu    sync.RWMutex

	clientID string
	seq      int

	writeQueue        chan []fayeMessage
	stopChan          chan struct{}
	wg                sync.WaitGroup
	reconnectAttempts int
	lastMessageTime   time.Time

	onMessage    func(CallbackMessage)
	onConnect    func()
	onDisconnect func()
}

func NewPushClient(accessToken, groupID string) *PushClient {
	return &PushClient{
		accessToken:     accessToken,
		groupID:         groupID,
		writeQueue:      make(chan []fayeMessage, 100),
		stopChan:        make(chan struct{}),
		lastMessageTime: time.Now(),
	}
}

// OnMessage registers the callback invoked for each group message delivered
// over push. Must be set before Connect.
func (pc *PushClient) OnMessage(fn func(CallbackMessage)) { pc.onMessage = fn }

func (pc *PushClient) OnConnect(fn func())    { pc.onConnect = fn }
func (pc *PushClient) OnDisconnect(fn func()) { pc.onDisconnect = fn }

func (pc *PushClient) Connect() error {
	pc.connMu.Lock()
	if pc.connected {
		pc.connMu.Unlock()
		return nil
	}
	pc.connMu.Unlock()

	log.Printf("Connecting to GroupMe push for group %s", pc.groupID)
	conn, _, err := websocket.DefaultDialer.Dial(pushURL, nil)
	if err != nil {
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	pc.connMu.Lock()
	pc.conn = conn
	pc.connected = true
	pc.connMu.Unlock()

	if err := pc.handshake(); err != nil {
		pc.closeConn()
		return fmt.Errorf("faye handshake failed: %w", err)
	}
	pc.subscribe()

	pc.wg.Add(3)
	go pc.readLoop()
	go pc.writeLoop()
	go pc.heartbeatLoop()

	log.Printf("✅ Successfully connected to GroupMe push (group %s)", pc.groupID)
	pc.reconnectAttempts = 0
	if pc.onConnect != nil {
		pc.onConnect()
	}
	return nil
}

func (pc *PushClient) Disconnect() {
	log.Println("Disconnecting from GroupMe push")

	pc.connMu.Lock()
	pc.connected = false
	if pc.conn != nil {
		pc.conn.Close()
	}
	pc.connMu.Unlock()

	close(pc.stopChan)
	pc.wg.Wait()
}

func (pc *PushClient) nextID() string {
	pc.seq++
	return strconv.Itoa(pc.seq)
}

// handshake negotiates the Faye session synchronously on the fresh
// connection, before the read loop takes over.
func (pc *PushClient) handshake() error {
	req := []fayeMessage{{
		Channel:   "/meta/handshake",
		Version:   "1.0",
		ConnTypes: []string{"websocket"},
		ID:        pc.nextID(),
	}}
	if err := pc.conn.WriteJSON(req); err != nil {
		return err
	}

	var resp []fayeMessage
	if err := pc.conn.ReadJSON(&resp); err != nil {
		return err
	}
	for _, msg := range resp {
		if msg.Channel == "/meta/handshake" && msg.Successful && msg.ClientID != "" {
			pc.clientID = msg.ClientID
			return nil
		}
	}
	return fmt.Errorf("no successful handshake response")
}

func (pc *PushClient) subscribe() {
	pc.enqueue([]fayeMessage{{
		Channel:      "/meta/subscribe",
		ClientID:     pc.clientID,
		Subscription: "/group/" + pc.groupID,
		ID:           pc.nextID(),
		Ext: map[string]interface{}{
			"access_token": pc.accessToken,
			"timestamp":    time.Now().Unix(),
		},
	}})
	pc.enqueueConnect()
}

func (pc *PushClient) enqueueConnect() {
	pc.enqueue([]fayeMessage{{
		Channel:  "/meta/connect",
		ClientID: pc.clientID,
		ConnType: "websocket",
		ID:       pc.nextID(),
	}})
}

func (pc *PushClient) enqueue(frames []fayeMessage) {
	select {
	case pc.writeQueue <- frames:
	default:
		log.Println("Push write queue full")
	}
}

func (pc *PushClient) readLoop() {
	defer pc.wg.Done()
	defer pc.handleDisconnect()

	for {
		select {
		case <-pc.stopChan:
			return
		default:
		}

		pc.connMu.RLock()
		conn := pc.conn
		pc.connMu.RUnlock()
		if conn == nil {
			return
		}

		var frames []fayeMessage
		if err := conn.ReadJSON(&frames); err != nil {
			log.Printf("GroupMe push read error: %v", err)
			return
		}

		pc.lastMessageTime = time.Now()
		for _, frame := range frames {
			pc.handleFrame(frame)
		}
	}
}

func (pc *PushClient) handleFrame(frame fayeMessage) {
	switch frame.Channel {
	case "/meta/connect":
		// Long-poll acknowledged; issue the next connect.
		pc.enqueueConnect()
	case "/meta/subscribe":
		if !frame.Successful {
			log.Printf("❌ Push subscription to group %s rejected", pc.groupID)
		}
	case "/group/" + pc.groupID:
		if len(frame.Data) == 0 {
			return
		}
		var data pushData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return
		}
		if data.Type != "line.create" || len(data.Subject) == 0 {
			return
		}
		var msg CallbackMessage
		if err := json.Unmarshal(data.Subject, &msg); err != nil {
			return
		}
		if pc.onMessage != nil {
			pc.onMessage(msg)
		}
	}
}

func (pc *PushClient) writeLoop() {
	defer pc.wg.Done()

	for {
		select {
		case frames := <-pc.writeQueue:
			pc.connMu.RLock()
			conn := pc.conn
			connected := pc.connected
			pc.connMu.RUnlock()

			if !connected || conn == nil {
				continue
			}
			if err := conn.WriteJSON(frames); err != nil {
				log.Printf("GroupMe push write error: %v", err)
				return
			}

		case <-pc.stopChan:
			return
		}
	}
}

func (pc *PushClient) heartbeatLoop() {
	defer pc.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pc.connMu.RLock()
			connected := pc.connected
			pc.connMu.RUnlock()

			if connected && time.Since(pc.lastMessageTime) > 2*heartbeatInterval {
				pc.enqueueConnect()
			}

		case <-pc.stopChan:
			return
		}
	}
}

func (pc *PushClient) closeConn() {
	pc.connMu.Lock()
	pc.connected = false
	if pc.conn != nil {
		pc.conn.Close()
	}
	pc.connMu.Unlock()
}

func (pc *PushClient) handleDisconnect() {
	select {
	case <-pc.stopChan:
		return
	default:
	}

	pc.reconnectAttempts++
	pc.closeConn()

	log.Println("🔴 GroupMe push disconnected")
	if pc.onDisconnect != nil {
		pc.onDisconnect()
	}

	time.Sleep(reconnectInterval)
	if err := pc.Connect(); err != nil {
		log.Printf("GroupMe push reconnect failed: %v", err)
	}
}
