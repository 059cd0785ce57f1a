package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/waggle-sensor/registration-agent/pkg/file"
)

// connectTimeout bounds the broker handshake.
const connectTimeout = 10 * time.Second

// MQTTClient defines the interface for an MQTT client.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Session is a connect-publish-disconnect MQTT session.
type Session interface {
	Initialize(broker, clientID, caCertPath string) error
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MqttService provides methods for MQTT operations.
type MqttService struct {
	client         MQTTClient
	fileClient     file.FileOperations
	newClient      func(*mqtt.ClientOptions) MQTTClient
	connectTimeout time.Duration
}

// NewMqttService creates a new MqttService instance.
func NewMqttService(fileClient file.FileOperations) *MqttService {
	return &MqttService{
		fileClient:     fileClient,
		newClient:      func(opts *mqtt.ClientOptions) MQTTClient { return mqtt.NewClient(opts) },
		connectTimeout: connectTimeout,
	}
}

// Initialize sets up the MQTT client, with TLS when a CA certificate is given,
// and connects to the broker.
func (s *MqttService) Initialize(broker, clientID, caCertPath string) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(s.connectTimeout)
	opts.SetAutoReconnect(false)

	if caCertPath != "" {
		caCert, err := s.fileClient.ReadFileRaw(caCertPath)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}

		// Create a CA certificate pool and append the CA certificate to it
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return errors.New("failed to append CA certificate")
		}
		opts.SetTLSConfig(&tls.Config{RootCAs: caCertPool, MinVersion: tls.VersionTLS12})
	}

	s.client = s.newClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(s.connectTimeout) {
		s.abandon()
		return fmt.Errorf("timed out connecting to %s", broker)
	}
	if err := token.Error(); err != nil {
		s.abandon()
		return err
	}
	return nil
}

// abandon stops a client whose connection attempt failed.
func (s *MqttService) abandon() {
	s.client.Disconnect(0)
	s.client = nil
}

// Publish sends a message to the specified topic.
func (s *MqttService) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return s.client.Publish(topic, qos, retained, payload)
}

// Disconnect gracefully disconnects the MQTT client.
func (s *MqttService) Disconnect(quiesce uint) {
	if s.client != nil {
		s.client.Disconnect(quiesce)
	}
}
