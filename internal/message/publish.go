package message

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/erilali/troubleflipper/internal/bus"
	"github.com/erilali/troubleflipper/internal/logger"
)

// Option tunes ParseReceivedMessage and PublishMessageToTopic.
type Option func(*options)

type options struct {
	log    *logger.Logger
	strict bool
	mode   bus.DeliveryMode
}

func newOptions(opts []Option) *options {
	o := &options{mode: bus.DeliveryModeDirect}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.NewLogger("messaging")
	}
	return o
}

// WithLogger sends diagnostics to l instead of the "messaging" component logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithStrictFields makes ParseReceivedMessage reject keys the target shape does not define.
func WithStrictFields() Option {
	return func(o *options) { o.strict = true }
}

// WithDeliveryMode overrides the direct delivery mode used when publishing.
func WithDeliveryMode(mode bus.DeliveryMode) Option {
	return func(o *options) { o.mode = mode }
}

// PublishMessageToTopic serializes msg as JSON and sends it to topic through
// session. A nil session means the caller is not connected yet and nothing
// happens. A msg that is not a struct or map is logged and dropped.
//
// Errors from session.Send are returned unchanged; retrying is up to the caller.
func PublishMessageToTopic(topic string, msg any, session bus.Session, client bus.Client, opts ...Option) error {
	if isNil(session) {
		return nil
	}
	o := newOptions(opts)

	if !isObject(msg) {
		o.log.Warnf("Invalid type for parameter: msg (%v), should be a struct or map", msg)
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", topic, err)
	}
	o.log.Debugf("Publishing msg (%s) to topic (%s)", payload, topic)

	m := client.CreateMessage()
	m.SetDestination(client.CreateTopicDestination(topic))
	m.SetBinaryAttachment(payload)
	m.SetDeliveryMode(o.mode)
	return session.Send(m)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func isObject(v any) bool {
	if isNil(v) {
		return false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Struct || rv.Kind() == reflect.Map
}
