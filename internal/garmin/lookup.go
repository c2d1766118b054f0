package garmin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Properties is a key=value table fetched once per run, used to turn type
// keys into display names. Keys may carry a literal prefix that gets
// stripped on load.
type Properties struct {
	values map[string]string
}

func parseProperties(data []byte, trimPrefix string) *Properties {
	p := &Properties{values: make(map[string]string)}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if trimPrefix != "" {
			key = strings.TrimPrefix(key, trimPrefix)
		}
		p.values[key] = value
	}
	return p
}

// Get resolves a key, falling back to the key itself so an unknown type still
// produces something readable.
func (p *Properties) Get(key string) string {
	if p == nil {
		return key
	}
	if v, ok := p.values[key]; ok {
		return v
	}
	return key
}

// TypeTable maps numeric type ids to display names.
type TypeTable struct {
	names map[int64]string
}

// DisplayName resolves a type id, or "" when unknown.
func (t *TypeTable) DisplayName(id int64) string {
	if t == nil {
		return ""
	}
	return t.names[id]
}

func loadTypeTable(ctx context.Context, s *Session, rawurl string, props *Properties) (*TypeTable, error) {
	body, err := s.Get(ctx, rawurl, nil)
	if err != nil {
		return nil, err
	}
	var types []struct {
		TypeID  int64  `json:"typeId"`
		TypeKey string `json:"typeKey"`
	}
	if err := json.Unmarshal(body, &types); err != nil {
		return nil, fmt.Errorf("decoding type table: %w", err)
	}
	table := &TypeTable{names: make(map[int64]string, len(types))}
	for _, t := range types {
		table.names[t.TypeID] = props.Get(t.TypeKey)
	}
	return table, nil
}

// DeviceTable maps device ids to a "name firmware" display string.
type DeviceTable struct {
	devices map[int64]deviceEntry
}

type deviceEntry struct {
	name     string
	firmware string
}

// DisplayName resolves a device id, or "" when the device is unknown.
func (d *DeviceTable) DisplayName(id int64) string {
	if d == nil {
		return ""
	}
	dev, ok := d.devices[id]
	if !ok {
		return ""
	}
	return strings.TrimSpace(dev.name + " " + dev.firmware)
}

func loadDeviceTable(ctx context.Context, s *Session, rawurl string) (*DeviceTable, error) {
	body, err := s.Get(ctx, rawurl, nil)
	if err != nil {
		return nil, err
	}
	var devices []struct {
		DeviceID        int64  `json:"deviceId"`
		DisplayName     string `json:"displayName"`
		FirmwareVersion string `json:"currentFirmwareVersion"`
	}
	if err := json.Unmarshal(body, &devices); err != nil {
		return nil, fmt.Errorf("decoding device table: %w", err)
	}
	table := &DeviceTable{devices: make(map[int64]deviceEntry, len(devices))}
	for _, dev := range devices {
		table.devices[dev.DeviceID] = deviceEntry{name: dev.DisplayName, firmware: dev.FirmwareVersion}
	}
	return table, nil
}

// Lookups bundles the auxiliary tables used to annotate summary rows. All
// methods tolerate a nil receiver or nil tables, so a failed fetch just means
// blank annotations.
type Lookups struct {
	ActivityTypes *TypeTable
	EventTypes    *TypeTable
	Devices       *DeviceTable
}

// ActivityTypeName resolves the display name for a type id.
func (l *Lookups) ActivityTypeName(id int64) string {
	if l == nil {
		return ""
	}
	return l.ActivityTypes.DisplayName(id)
}

// EventTypeName resolves the display name for an event type id.
func (l *Lookups) EventTypeName(id int64) string {
	if l == nil {
		return ""
	}
	return l.EventTypes.DisplayName(id)
}

// DeviceName resolves the display name for a device id.
func (l *Lookups) DeviceName(id int64) string {
	if l == nil {
		return ""
	}
	return l.Devices.DisplayName(id)
}

// LoadLookups fetches every auxiliary table once. Failures are logged and
// leave the affected table nil; annotation quality is not worth aborting an
// export over.
func (c *Client) LoadLookups(ctx context.Context) *Lookups {
	lookups := &Lookups{}

	activityProps := c.fetchProperties(ctx, c.activityPropertiesURL(), "activity_type_")
	if table, err := loadTypeTable(ctx, c.session, c.activityTypesURL(), activityProps); err != nil {
		slog.Warn("activity type table unavailable", "err", err)
	} else {
		lookups.ActivityTypes = table
	}

	eventProps := c.fetchProperties(ctx, c.eventPropertiesURL(), "")
	if table, err := loadTypeTable(ctx, c.session, c.eventTypesURL(), eventProps); err != nil {
		slog.Warn("event type table unavailable", "err", err)
	} else {
		lookups.EventTypes = table
	}

	if table, err := loadDeviceTable(ctx, c.session, c.devicesURL()); err != nil {
		slog.Warn("device table unavailable", "err", err)
	} else {
		lookups.Devices = table
	}

	return lookups
}

func (c *Client) fetchProperties(ctx context.Context, rawurl, trimPrefix string) *Properties {
	body, err := c.session.Get(ctx, rawurl, nil)
	if err != nil {
		slog.Warn("properties unavailable", "url", rawurl, "err", err)
		return nil
	}
	return parseProperties(body, trimPrefix)
}
