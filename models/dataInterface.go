package models

import "time"

type Identifier interface {
	GetId() string
}

// interface for dataloader result
type Data interface {
	Identifier
	GetDefault(string) Data
}

func (w Warehouse) GetId() string {
	return w.ID
}

// GetDefault stands in for a warehouse id that no longer resolves.
func (w Warehouse) GetDefault(id string) Data {
	inactive := false
	return Warehouse{
		ID:        id,
		IsActive:  &inactive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}
