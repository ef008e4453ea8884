package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/floorcast/floorcast/internal/domain"
)

type wireFloor struct {
	FloorID string `json:"floor_id"`
	Name    string `json:"name"`
	Level   *int   `json:"level"`
}

type wireArea struct {
	AreaID  string  `json:"area_id"`
	Name    string  `json:"name"`
	FloorID *string `json:"floor_id"`
}

type wireDevice struct {
	ID         string  `json:"id"`
	AreaID     *string `json:"area_id"`
	Name       string  `json:"name"`
	NameByUser *string `json:"name_by_user"`
}

type wireEntity struct {
	EntityID       string  `json:"entity_id"`
	DeviceID       string  `json:"device_id"`
	AreaID         *string `json:"area_id"`
	Name           *string `json:"name"`
	OriginalName   *string `json:"original_name"`
	EntityCategory *string `json:"entity_category"`
}

// FetchRegistry lists the four upstream registries and assembles the
// topology. Called once per connection, before subscribing to events.
func (c *Client) FetchRegistry(ctx context.Context) (*domain.Registry, error) {
	reg := domain.EmptyRegistry()

	var floors []wireFloor
	if err := c.listRegistry(ctx, "config/floor_registry/list", &floors); err != nil {
		return nil, err
	}
	for _, f := range floors {
		reg.Floors[f.FloorID] = domain.Floor{
			ID:          f.FloorID,
			DisplayName: f.Name,
			Level:       f.Level,
		}
	}

	var entities []wireEntity
	if err := c.listRegistry(ctx, "config/entity_registry/list", &entities); err != nil {
		return nil, err
	}
	for _, e := range entities {
		name := e.EntityID
		if e.Name != nil && *e.Name != "" {
			name = *e.Name
		} else if e.OriginalName != nil && *e.OriginalName != "" {
			name = *e.OriginalName
		}
		reg.Entities[e.EntityID] = domain.Entity{
			ID:             e.EntityID,
			DeviceID:       e.DeviceID,
			Domain:         domain.EntityDomain(e.EntityID),
			DisplayName:    name,
			AreaID:         e.AreaID,
			EntityCategory: e.EntityCategory,
		}
	}

	var areas []wireArea
	if err := c.listRegistry(ctx, "config/area_registry/list", &areas); err != nil {
		return nil, err
	}
	for _, a := range areas {
		reg.Areas[a.AreaID] = domain.Area{
			ID:          a.AreaID,
			DisplayName: a.Name,
			FloorID:     a.FloorID,
		}
	}

	var devices []wireDevice
	if err := c.listRegistry(ctx, "config/device_registry/list", &devices); err != nil {
		return nil, err
	}
	for _, d := range devices {
		name := d.Name
		if d.NameByUser != nil && *d.NameByUser != "" {
			name = *d.NameByUser
		}
		reg.Devices[d.ID] = domain.Device{
			ID:          d.ID,
			AreaID:      d.AreaID,
			DisplayName: name,
		}
	}

	return reg, nil
}

func (c *Client) listRegistry(ctx context.Context, requestType string, out any) error {
	result, err := c.request(ctx, map[string]any{"type": requestType})
	if err != nil {
		return err
	}
	if result.Success == nil || !*result.Success {
		return fmt.Errorf("%w: %s rejected", ErrConnection, requestType)
	}
	if err := json.Unmarshal(result.Result, out); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", ErrConnection, requestType, err)
	}
	return nil
}
