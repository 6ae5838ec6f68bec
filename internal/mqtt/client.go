package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client owns the broker connection. Subscriber and Publisher share it.
type Client struct {
	client mqtt.Client
	config ClientConfig

	mu          sync.Mutex
	connected   bool // first connect done
	onReconnect []func()
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// PresenceTopic, when set, carries "online" while connected and
	// "offline" as the broker-published will
	PresenceTopic string
}

// NewClient creates a new MQTT client connection
func NewClient(config ClientConfig) (*Client, error) {
	c := &Client{config: config}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetDefaultPublishHandler(messagePubHandler)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(connectLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	if config.PresenceTopic != "" {
		opts.SetWill(config.PresenceTopic, "offline", 1, true)
	}

	c.client = mqtt.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Println("MQTT Client: Connected to broker:", config.Broker)

	return c, nil
}

// GetNativeClient returns the underlying paho MQTT client
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// OnReconnect registers fn to run after every reconnect. With a clean
// session the broker forgets subscriptions, so subscribers re-register here.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = append(c.onReconnect, fn)
}

// Close announces offline presence and closes the connection
func (c *Client) Close() {
	if c.config.PresenceTopic != "" && c.client.IsConnected() {
		c.client.Publish(c.config.PresenceTopic, 1, true, "offline").WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
	log.Println("MQTT Client: Disconnected")
}

func (c *Client) handleConnect(client mqtt.Client) {
	c.mu.Lock()
	reconnect := c.connected
	c.connected = true
	hooks := append([]func(){}, c.onReconnect...)
	c.mu.Unlock()

	if c.config.PresenceTopic != "" {
		client.Publish(c.config.PresenceTopic, 1, true, "online")
	}

	if !reconnect {
		log.Println("MQTT: Connection established")
		return
	}

	log.Printf("MQTT: Reconnected, restoring %d subscription set(s)", len(hooks))
	for _, fn := range hooks {
		// paho runs this handler on its own goroutine; blocking here is fine
		fn()
	}
}

var messagePubHandler mqtt.MessageHandler = func(client mqtt.Client, msg mqtt.Message) {
	log.Printf("MQTT: Received message from unexpected topic: %s", msg.Topic())
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Printf("MQTT: Connection lost: %v", err)
}
