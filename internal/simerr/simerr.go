// Package simerr defines the error taxonomy shared by every subsystem:
// configuration failures, plug-in implementation failures, service
// failures, and bus/network failures. All satisfy errors.Is against their
// sentinel and errors.As against their concrete type, following the
// teacher's fmt.Errorf("...: %w", err) wrapping convention throughout
// internal/config and internal/events.
package simerr

import (
	"errors"
	"fmt"
)

// Sentinel errors usable with errors.Is.
var (
	// ErrConfig marks a malformed or inconsistent configuration.
	ErrConfig = errors.New("config error")
	// ErrImplementation marks a plug-in (physics/navigator/controller/
	// state_estimator/sensors) that panicked or violated its contract.
	ErrImplementation = errors.New("implementation error")
	// ErrServiceClosed marks a service whose host node is gone.
	ErrServiceClosed = errors.New("service closed")
	// ErrServiceClientSide marks a malformed or misdirected request.
	ErrServiceClientSide = errors.New("service client error")
	// ErrServiceOther marks a handler failure not attributable to the client.
	ErrServiceOther = errors.New("service error")
	// ErrChannelNotFound marks a reference to an unregistered channel.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrClosedChannel marks a send/subscribe on a closed channel.
	ErrClosedChannel = errors.New("channel closed")
	// ErrNodeUnknown marks a reference to a node the scheduler does not track.
	ErrNodeUnknown = errors.New("node unknown")
)

// ConfigError wraps a configuration problem with the offending field path.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return errors.Join(ErrConfig, e.Err) }

// NewConfigError builds a ConfigError for the named field.
func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}

// ImplementationError wraps a panic or contract violation recovered from a
// strategy plug-in, naming which module and node raised it.
type ImplementationError struct {
	NodeID string
	Module string
	Err    error
}

func (e *ImplementationError) Error() string {
	return fmt.Sprintf("implementation error in %s for node %s: %v", e.Module, e.NodeID, e.Err)
}

func (e *ImplementationError) Unwrap() error { return errors.Join(ErrImplementation, e.Err) }

// NewImplementationError builds an ImplementationError.
func NewImplementationError(nodeID, module string, err error) *ImplementationError {
	return &ImplementationError{NodeID: nodeID, Module: module, Err: err}
}

// ServiceErrorKind classifies why a service call failed.
type ServiceErrorKind int

const (
	// ServiceClosed reports the host node tore down before responding.
	ServiceClosed ServiceErrorKind = iota
	// ServiceClientSide reports a malformed or misdirected request.
	ServiceClientSide
	// ServiceOther reports any other handler-side failure.
	ServiceOther
)

func (k ServiceErrorKind) String() string {
	switch k {
	case ServiceClosed:
		return "closed"
	case ServiceClientSide:
		return "client"
	default:
		return "other"
	}
}

// ServiceError reports a failed Service[Req,Resp] call.
type ServiceError struct {
	Kind    ServiceErrorKind
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("service %q error (%s)", e.Service, e.Kind)
	}
	return fmt.Sprintf("service %q error (%s): %v", e.Service, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	switch e.Kind {
	case ServiceClosed:
		return errors.Join(ErrServiceClosed, e.Err)
	case ServiceClientSide:
		return errors.Join(ErrServiceClientSide, e.Err)
	default:
		return errors.Join(ErrServiceOther, e.Err)
	}
}

// NewServiceError builds a ServiceError.
func NewServiceError(service string, kind ServiceErrorKind, err error) *ServiceError {
	return &ServiceError{Service: service, Kind: kind, Err: err}
}

// NetworkErrorKind classifies a bus-level failure.
type NetworkErrorKind int

const (
	// NetworkChannelNotFound reports a reference to an unregistered channel.
	NetworkChannelNotFound NetworkErrorKind = iota
	// NetworkClosedChannel reports a send/subscribe on a closed channel.
	NetworkClosedChannel
	// NetworkNodeUnknown reports a reference to an untracked node.
	NetworkNodeUnknown
)

func (k NetworkErrorKind) String() string {
	switch k {
	case NetworkChannelNotFound:
		return "channel_not_found"
	case NetworkClosedChannel:
		return "closed_channel"
	default:
		return "node_unknown"
	}
}

// NetworkError reports a bus/broker-level failure.
type NetworkError struct {
	Kind NetworkErrorKind
	Key  string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error (%s): %s", e.Kind, e.Key)
}

func (e *NetworkError) Unwrap() error {
	switch e.Kind {
	case NetworkChannelNotFound:
		return ErrChannelNotFound
	case NetworkClosedChannel:
		return ErrClosedChannel
	default:
		return ErrNodeUnknown
	}
}

// NewNetworkError builds a NetworkError for the given key (channel path or node id).
func NewNetworkError(kind NetworkErrorKind, key string) *NetworkError {
	return &NetworkError{Kind: kind, Key: key}
}
