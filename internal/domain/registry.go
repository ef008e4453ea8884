package domain

// Registry is the read-mostly topology fetched from the upstream hub.
// It is replaced wholesale on reconnect; only the registry cache mutates
// the process-wide copy.
type Registry struct {
	Entities map[string]Entity `json:"entities"`
	Devices  map[string]Device `json:"devices"`
	Areas    map[string]Area   `json:"areas"`
	Floors   map[string]Floor  `json:"floors"`
}

// Entity is an addressable thing in the upstream system.
type Entity struct {
	ID             string  `json:"id"`
	DeviceID       string  `json:"device_id"`
	Domain         string  `json:"domain"`
	DisplayName    string  `json:"display_name"`
	AreaID         *string `json:"area_id"`
	EntityCategory *string `json:"entity_category"`
}

// Device groups entities under a physical unit.
type Device struct {
	ID          string  `json:"id"`
	AreaID      *string `json:"area_id"`
	DisplayName string  `json:"display_name"`
}

// Area is a room or zone, optionally placed on a floor.
type Area struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	FloorID     *string `json:"floor_id"`
}

// Floor is a level of the building.
type Floor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Level       *int   `json:"level"`
}

// EmptyRegistry returns a registry with no topology, used until the first
// upstream fetch completes.
func EmptyRegistry() *Registry {
	return &Registry{
		Entities: map[string]Entity{},
		Devices:  map[string]Device{},
		Areas:    map[string]Area{},
		Floors:   map[string]Floor{},
	}
}
