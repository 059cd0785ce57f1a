package mqtt

import (
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"

	"github.com/waggle-sensor/registration-agent/internal/mocks"
)

// fakeClient records how a connection attempt ended.
type fakeClient struct {
	connectToken paho.Token
	disconnects  []uint
}

func (c *fakeClient) Connect() paho.Token {
	return c.connectToken
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	return mocks.NewCompletedToken(nil)
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.disconnects = append(c.disconnects, quiesce)
}

func newServiceWithClient(client *fakeClient) *MqttService {
	service := NewMqttService(new(mocks.FileOperations))
	service.newClient = func(*paho.ClientOptions) MQTTClient { return client }
	service.connectTimeout = 20 * time.Millisecond
	return service
}

// TestMqttService_Initialize_FailedConnectStopsClient disconnects a client whose connect failed.
func TestMqttService_Initialize_FailedConnectStopsClient(t *testing.T) {
	tests := []struct {
		name  string
		token paho.Token
		want  string
	}{
		{"connect error", mocks.NewCompletedToken(errors.New("not authorized")), "not authorized"},
		{"connect timeout", mocks.NewPendingToken(), "timed out connecting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{connectToken: tt.token}
			service := newServiceWithClient(client)

			err := service.Initialize("tcp://localhost:1883", "registration-agent", "")

			assert.ErrorContains(t, err, tt.want)
			assert.Equal(t, []uint{0}, client.disconnects)

			// A later Disconnect does not reach the abandoned client.
			service.Disconnect(250)
			assert.Equal(t, []uint{0}, client.disconnects)
		})
	}
}

// TestMqttService_Initialize_Connected keeps the client for publishing.
func TestMqttService_Initialize_Connected(t *testing.T) {
	client := &fakeClient{connectToken: mocks.NewCompletedToken(nil)}
	service := newServiceWithClient(client)

	assert.NoError(t, service.Initialize("tcp://localhost:1883", "registration-agent", ""))
	assert.Empty(t, client.disconnects)

	service.Disconnect(250)
	assert.Equal(t, []uint{250}, client.disconnects)
}
