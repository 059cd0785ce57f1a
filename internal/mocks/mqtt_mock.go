package mocks

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MQTTSession is a mock implementation of the mqtt Session interface
type MQTTSession struct {
	mock.Mock
}

// Initialize mocks connecting to the broker
func (m *MQTTSession) Initialize(broker, clientID, caCertPath string) error {
	args := m.Called(broker, clientID, caCertPath)
	return args.Error(0)
}

// Publish mocks publishing a message to a topic
func (m *MQTTSession) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

// Disconnect mocks closing the broker connection
func (m *MQTTSession) Disconnect(quiesce uint) {
	m.Called(quiesce)
}
