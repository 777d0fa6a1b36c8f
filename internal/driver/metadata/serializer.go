package metadata

import "encoding/json"

// ToJSON renders driver metadata as indented JSON
func (d *DriverMetadata) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON parses driver metadata from JSON
func FromJSON(data []byte) (*DriverMetadata, error) {
	var d DriverMetadata
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
