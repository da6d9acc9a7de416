package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/payment-lifecycle/internal/gateway/manual"
	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// Gateway holds the operation settings of one gateway.
// A nil allow flag means the operation is enabled.
type Gateway struct {
	AllowVoid            *bool `yaml:"allow_void"`
	AllowCapture         *bool `yaml:"allow_capture"`
	AllowRefund          *bool `yaml:"allow_refund"`
	UseAsyncNotification bool  `yaml:"use_async_notification"`
	// Manual exempts the gateway from needing a transaction reference.
	Manual bool `yaml:"manual"`
	// Rules maps an operation to a boolean expression over amount, currency,
	// gateway and status that must hold for the operation to start.
	Rules map[payment.Operation]string `yaml:"rules"`
}

// Allows reports whether op is administratively enabled.
func (g Gateway) Allows(op payment.Operation) bool {
	var flag *bool
	switch op {
	case payment.OperationVoid:
		flag = g.AllowVoid
	case payment.OperationCapture:
		flag = g.AllowCapture
	case payment.OperationRefund:
		flag = g.AllowRefund
	default:
		return false
	}
	return flag == nil || *flag
}

// Gateways maps gateway names to their settings.
type Gateways map[string]Gateway

// Settings returns the settings for the named gateway, with defaults when the
// gateway is not configured. The Manual gateway is always reference exempt.
func (gs Gateways) Settings(name string) Gateway {
	g := gs[name]
	if name == manual.Name {
		g.Manual = true
	}
	return g
}

// LoadGateways reads gateway settings from path. An empty path yields no settings.
func LoadGateways(path string) (Gateways, error) {
	if path == "" {
		return Gateways{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gateways file: %w", err)
	}
	return ParseGateways(data)
}

// ParseGateways decodes a YAML document of the form
//
//	gateways:
//	  Stripe:
//	    allow_void: false
//	    use_async_notification: true
//	    rules:
//	      refund: "amount <= 50000"
func ParseGateways(data []byte) (Gateways, error) {
	var doc struct {
		Gateways Gateways `yaml:"gateways"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode gateways: %w", err)
	}
	if doc.Gateways == nil {
		doc.Gateways = Gateways{}
	}
	for name, g := range doc.Gateways {
		for op := range g.Rules {
			if !op.Valid() {
				return nil, fmt.Errorf("gateway %q: rule for unknown operation %q", name, op)
			}
		}
	}
	return doc.Gateways, nil
}
