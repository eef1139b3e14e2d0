// Package portal provides publish-subscribe communication over MQTT.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/lefinal/masc-devices/errors"
	"github.com/lefinal/masc-devices/event"
	"go.uber.org/zap"
	"net/url"
	"sync"
	"time"
)

// BaseTopic is the prefix for all topics.
const BaseTopic = "lefinal/masc"

const mqttClientIDPrefix = "masc-devices"
const mqttKeepAlive = 8

const mqttQOS = 0

// Topic is an MQTT topic.
type Topic string

// Config is the config for the Base.
type Config struct {
	// MQTTAddr is the address where the MQTT-server is found.
	MQTTAddr string
	// ClientID is the MQTT client id. If not set, a random one is generated.
	ClientID string
}

// Newsletter is used with Portal.Subscribe in order to subscribe to topics.
type Newsletter[payloadT any] struct {
	unregisterFn func()
	// Receive receives when a new message for the subscribed topic was received.
	// When the Newsletter is unsubscribed, the Receive-channel will be closed.
	Receive <-chan event.Event[payloadT]
}

// Unsubscribe the Newsletter.
func (sub *Newsletter[payload]) Unsubscribe() {
	sub.unregisterFn()
}

// publisher is used for publishing MQTT events.
type publisher interface {
	Publish(ctx context.Context, publish *paho.Publish) (*paho.PublishResponse, error)
}

// Base is a wrapper for all connection related stuff for a Portal. Using the
// Base, you only need to Open the Base and then use portals via NewPortal.
type Base interface {
	// Open the connection. Stays opened until the given context.Context is done.
	Open(ctx context.Context) error
	// NewPortal creates a new Portal that uses the connection from the Base. The
	// given fields are added to the portal's logger.
	NewPortal(name string, loggerFields ...zap.Field) Portal
}

type basePortal struct {
	logger *zap.Logger
	config Config
	// brokerURL is the URL of the MQTT broker.
	brokerURL *url.URL
	// mqttRouter is the paho.Router that is used by router.
	mqttRouter *paho.StandardRouter
	// router is responsible for registering subscription requests as well as
	// multiplexing and forwarding messages.
	router *router
	// publisher is used for publishing MQTT messages. It is nil until the
	// connection is established.
	publisher publisher
	// publisherMutex locks publisher.
	publisherMutex sync.RWMutex
}

// Portal is used for publishing and subscribing.
type Portal interface {
	// Subscribe returns a Newsletter for the given Topic.
	Subscribe(ctx context.Context, topic Topic) *Newsletter[any]
	// Publish the given payload to the Topic. It will catch any errors during
	// publishing and log them using the Logger.
	Publish(ctx context.Context, topic Topic, payload interface{})
	// Logger is needed in order to provide error logging for Subscribe as generics
	// are not supported for methods.
	Logger() *zap.Logger
}

// NewBase creates a Base with the given Config. Open it with Base.Open.
// Portals can be created before opening.
func NewBase(logger *zap.Logger, config Config) (Base, error) {
	// Parse URL.
	brokerURL, err := url.Parse(config.MQTTAddr)
	if err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "invalid mqtt addr", errors.Details{"was": config.MQTTAddr})
	}
	if config.ClientID == "" {
		config.ClientID = fmt.Sprintf("%s-%s", mqttClientIDPrefix, uuid.New().String())
	}
	mqttRouter := paho.NewStandardRouter()
	return &basePortal{
		logger:     logger,
		config:     config,
		brokerURL:  brokerURL,
		mqttRouter: mqttRouter,
		router:     newRouter(logger.Named("router"), mqttRouter),
	}, nil
}

// Open the base portal and keep the connection to the MQTT server until the
// given context.Context is done.
func (p *basePortal) Open(ctx context.Context) error {
	// Establish MQTT connection.
	conn, err := autopaho.NewConnection(ctx, p.genClientConfig(ctx))
	if err != nil {
		return errors.Error{
			Code:    errors.ErrCommunication,
			Err:     err,
			Message: "create mqtt server connection failed",
		}
	}
	p.publisherMutex.Lock()
	p.publisher = conn
	p.publisherMutex.Unlock()
	// Wait until we are done.
	<-ctx.Done()
	p.publisherMutex.Lock()
	p.publisher = nil
	p.publisherMutex.Unlock()
	// Shutdown MQTT connection.
	disconnectTimeout, cancelDisconnectTimeout := context.WithTimeout(context.Background(), 3*time.Second)
	err = conn.Disconnect(disconnectTimeout)
	cancelDisconnectTimeout()
	if err != nil {
		return errors.Error{
			Code:    errors.ErrCommunication,
			Err:     err,
			Message: "disconnect from mqtt server failed",
		}
	}
	return nil
}

// genClientConfig generates the autopaho.ClientConfig that is ready to launch
// and will use the basePortal's paho.Router. All topics below BaseTopic are
// subscribed each time the connection is up.
func (p *basePortal) genClientConfig(ctx context.Context) autopaho.ClientConfig {
	return autopaho.ClientConfig{
		BrokerUrls: []*url.URL{p.brokerURL},
		KeepAlive:  mqttKeepAlive,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt server connection established")
			_, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: map[string]paho.SubscribeOptions{
					BaseTopic + "/#": {QoS: mqttQOS},
				},
			})
			if err != nil {
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Err:     err,
					Message: "subscribe to base topic failed",
					Details: errors.Details{"topic": BaseTopic + "/#"},
				})
			}
		},
		OnConnectError: func(err error) {
			errors.Log(p.logger, errors.Error{
				Code:    errors.ErrCommunication,
				Err:     err,
				Message: "mqtt server connection failed",
			})
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.config.ClientID,
			Router:   p.mqttRouter,
			OnServerDisconnect: func(disconnect *paho.Disconnect) {
				reason := fmt.Sprintf("reason code %d", disconnect.ReasonCode)
				if disconnect.Properties != nil && disconnect.Properties.ReasonString != "" {
					reason = disconnect.Properties.ReasonString
				}
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Message: fmt.Sprintf("mqtt server requested disconnect: %s", reason),
				})
			},
			OnClientError: func(err error) {
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Err:     err,
					Message: "mqtt server connection client error",
				})
			},
		},
	}
}

// currentPublisher returns the publisher for the current connection or nil if
// not connected.
func (p *basePortal) currentPublisher() publisher {
	p.publisherMutex.RLock()
	defer p.publisherMutex.RUnlock()
	return p.publisher
}

// NewPortal creates a new Portal that can be used to subscribe to topics and
// events.
func (p *basePortal) NewPortal(name string, loggerFields ...zap.Field) Portal {
	return &portal{
		logger:    p.logger.Named(name).With(loggerFields...),
		router:    p.router,
		publisher: p.currentPublisher,
	}
}

// Subscribe to the given Portal for the Topic. The returned Newsletter contains
// an already unmarshalled payload. Messages that fail to unmarshal, are
// dropped. However, the error is logged to Portal.Logger.
func Subscribe[payloadT any](ctx context.Context, portal Portal, topic Topic) *Newsletter[payloadT] {
	rawSub := portal.Subscribe(ctx, topic)
	receiveParsed := make(chan event.Event[payloadT])
	go func() {
		defer close(receiveParsed)
		for e := range rawSub.Receive {
			// Parse payload.
			var payload payloadT
			if e.Publish != nil && len(e.Publish.Payload) > 0 {
				err := json.Unmarshal(e.Publish.Payload, &payload)
				if err != nil {
					errors.Log(portal.Logger(), errors.Error{
						Code:    errors.ErrBadRequest,
						Kind:    errors.KindDecodeJSON,
						Err:     err,
						Message: "parse payload failed",
						Details: errors.Details{
							"topic":   e.Publish.Topic,
							"payload": string(e.Publish.Payload),
						},
					})
					continue
				}
			}
			// Forward.
			select {
			case <-ctx.Done():
				return
			case receiveParsed <- event.Event[payloadT]{
				Publish: e.Publish,
				Payload: payload,
			}:
			}
		}
	}()
	return &Newsletter[payloadT]{
		unregisterFn: rawSub.unregisterFn,
		Receive:      receiveParsed,
	}
}

// portal provides a higher-level API for Base that makes it easier to conduct
// tests, etc.
type portal struct {
	logger *zap.Logger
	// router is used for subscribing to MQTT topics via Subscribe.
	router *router
	// publisher returns the publisher to use for Publish or nil if not connected.
	publisher func() publisher
}

// Subscribe for the given Topic using the portal's router.
func (p *portal) Subscribe(ctx context.Context, topic Topic) *Newsletter[any] {
	subLifetime, cancelSub := context.WithCancel(ctx)
	forward := make(chan event.Event[any])
	p.router.subscribe(subLifetime, topic, forward)
	return &Newsletter[any]{
		unregisterFn: cancelSub,
		Receive:      forward,
	}
}

// Publish the given payload to the Topic using the portal's publisher.
func (p *portal) Publish(ctx context.Context, topic Topic, payload interface{}) {
	// Marshal payload.
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		errors.Log(p.logger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "marshal payload for publishing",
			Details: errors.Details{"topic": topic},
		})
		return
	}
	pub := p.publisher()
	if pub == nil {
		errors.Log(p.logger, errors.Error{
			Code:    errors.ErrCommunication,
			Message: "publish without mqtt connection",
			Details: errors.Details{"topic": topic},
		})
		return
	}
	// Publish.
	_, err = pub.Publish(ctx, &paho.Publish{
		QoS:     mqttQOS,
		Topic:   string(topic),
		Payload: payloadRaw,
	})
	if err != nil {
		errors.Log(p.logger, errors.Error{
			Code:    errors.ErrCommunication,
			Err:     err,
			Message: "publish message failed",
			Details: errors.Details{
				"topic":   topic,
				"payload": string(payloadRaw),
			},
		})
		return
	}
}

// Logger returns the portal's logger.
func (p *portal) Logger() *zap.Logger {
	return p.logger
}
