// Package telemetry sends readings to the local broker topic and to the cloud
// ingestion topic.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"vitals-agent/internal/sensor"
)

// Link is one logical pub/sub connection. *mqtt.Session implements it.
type Link interface {
	Name() string
	EnsureConnected(ctx context.Context) error
	IsConnected() bool
	Publish(topic string, payload []byte) error
}

// Bindings map logical channels to destinations. Fixed at startup.
type Bindings struct {
	LocalTopic      string
	CloudTopic      string
	CloudVariableID string
}

// Publisher owns the local and the cloud link. They may be the same session;
// callers never need to know.
type Publisher struct {
	local    Link
	cloud    Link
	bindings Bindings
	logger   *slog.Logger
}

// NewPublisher wires both links. A nil cloud link forwards over the local one.
func NewPublisher(local, cloud Link, bindings Bindings, logger *slog.Logger) *Publisher {
	if cloud == nil {
		cloud = local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		local:    local,
		cloud:    cloud,
		bindings: bindings,
		logger:   logger,
	}
}

func (p *Publisher) Bindings() Bindings { return p.bindings }

func (p *Publisher) shared() bool { return p.cloud == p.local }

// EnsureConnected brings up the local link, then the cloud link when it is a
// separate session.
func (p *Publisher) EnsureConnected(ctx context.Context) error {
	var errs []error
	if err := p.local.EnsureConnected(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s link: %w", p.local.Name(), err))
	}
	if !p.shared() && ctx.Err() == nil {
		if err := p.cloud.EnsureConnected(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s link: %w", p.cloud.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LinkStates reports the connectivity of each distinct link by name.
func (p *Publisher) LinkStates() map[string]bool {
	states := map[string]bool{p.local.Name(): p.local.IsConnected()}
	if !p.shared() {
		states[p.cloud.Name()] = p.cloud.IsConnected()
	}
	return states
}

func (p *Publisher) Publish(topic, payload string) error {
	return p.local.Publish(topic, []byte(payload))
}

// ForwardToCloud publishes {"<variableID>": <value>} to the cloud ingestion
// topic. value must be a JSON number literal.
func (p *Publisher) ForwardToCloud(variableID, value string) error {
	payload, err := CloudPayload(variableID, value)
	if err != nil {
		return err
	}
	return p.cloud.Publish(p.bindings.CloudTopic, payload)
}

// PublishReading sends r to both destinations. The second send is attempted
// even when the first fails.
func (p *Publisher) PublishReading(r sensor.Reading) error {
	value := r.String()
	return errors.Join(
		p.Publish(p.bindings.LocalTopic, value),
		p.ForwardToCloud(p.bindings.CloudVariableID, value),
	)
}

// CloudPayload builds the single-key ingestion object with value embedded as
// a number, not a string.
func CloudPayload(variableID, value string) ([]byte, error) {
	if variableID == "" {
		return nil, errors.New("cloud payload: empty variable id")
	}
	if value == "" {
		return nil, errors.New("cloud payload: empty value")
	}
	b, err := json.Marshal(map[string]json.Number{variableID: json.Number(value)})
	if err != nil {
		return nil, fmt.Errorf("cloud payload for %q: %w", value, err)
	}
	return b, nil
}
