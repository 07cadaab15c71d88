package config

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/grid"
)

// Trains are the trains placed on the world at start, keyed by id.
type Trains struct {
	Trains map[uuid.UUID]Train
}

type trainsJSON map[string]Train

func (t Trains) MarshalJSON() ([]byte, error) {
	t2 := trainsJSON{}
	for key, tr := range t.Trains {
		t2[key.String()] = tr
	}
	return json.Marshal(t2)
}

func (t *Trains) UnmarshalJSON(data []byte) error {
	var t2 trainsJSON
	err := json.Unmarshal(data, &t2)
	if err != nil {
		return err
	}
	res := Trains{Trains: map[uuid.UUID]Train{}}
	for key, tr := range t2 {
		id, err := uuid.Parse(key)
		if err != nil {
			return fmt.Errorf("key %s: parse key as UUID: %w", key, err)
		}
		res.Trains[id] = tr
	}
	*t = res
	return nil
}

type Train struct {
	Comment string `json:"comment,omitempty"`
	// Positions are the rails the train is on, front first.
	Positions   []grid.Pos      `json:"positions"`
	Heading     railnet.Heading `json:"heading"`
	Destination string          `json:"destination,omitempty"`
}
